package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TransportError marks a failure worth retrying: a network-level error or a
// 5xx from the model API. Everything else (including a well-formed refusal)
// is terminal.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generation api status %d", e.Status)
	}
	return fmt.Sprintf("generation api unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the third-party image model over its chat-completions style
// HTTP API and returns the raw text of the first choice.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClient(httpClient *http.Client, baseURL, apiKey, model string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, model: model}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Generate sends the rendered prompt (and source image, when present) and
// returns the model's raw reply text. The reply is unstructured; callers run
// it through ExtractImageRef.
func (c *Client) Generate(ctx context.Context, prompt, imageRef string) (string, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	if imageRef != "" {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: imageRef}})
	}
	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": parts},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", &TransportError{Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generation api status %d: %s", resp.StatusCode, snippet)
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("generation response has no choices")
	}
	return apiResp.Choices[0].Message.Content, nil
}
