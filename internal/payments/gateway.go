package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a minimal payment-gateway API client used to verify whether an
// order was actually paid. Requests are HMAC-signed with the merchant secret.
type Client struct {
	httpClient *http.Client
	baseURL    string
	merchantID string
	secret     string
}

func NewClient(httpClient *http.Client, baseURL, merchantID, secret string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		merchantID: merchantID,
		secret:     secret,
	}
}

// VerifyPayment asks the gateway for the order's status. confirmed is true
// only for a definitive "paid" answer; anything else means "not yet".
func (c *Client) VerifyPayment(ctx context.Context, orderNo string) (bool, error) {
	payload := map[string]interface{}{
		"merchant_id": c.merchantID,
		"order_no":    orderNo,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment/status", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", c.sign(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("gateway: unexpected status %s", resp.Status)
	}

	var apiResp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return false, err
	}
	return apiResp.Success && apiResp.Status == "paid", nil
}

func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
