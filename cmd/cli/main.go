// Command cli is a small client for the API: it submits work or waits on it
// from the terminal, polling on the same backoff schedule the web client uses.
//
//	cli -api http://localhost:8080 -token $JWT -wait-task <task-id>
//	cli -api http://localhost:8080 -token $JWT -wait-order <order-no>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/styleforge/backend/internal/models"
	"github.com/styleforge/backend/internal/payments"
	"github.com/styleforge/backend/internal/poller"
)

// apiClient implements the poller's TaskGetter and PaymentReconciler over
// the HTTP API.
type apiClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func (c *apiClient) Task(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := c.getJSON(ctx, http.MethodGet, "/v1/tasks/"+id.String(), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *apiClient) Reconcile(ctx context.Context, orderNo string) (payments.Outcome, error) {
	var resp struct {
		Outcome string `json:"outcome"`
	}
	if err := c.getJSON(ctx, http.MethodPost, "/v1/orders/"+orderNo+"/reconcile", &resp); err != nil {
		return "", err
	}
	return payments.Outcome(resp.Outcome), nil
}

func (c *apiClient) getJSON(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	_ = godotenv.Load()

	var (
		apiURL    = flag.String("api", envOr("API_URL", "http://localhost:8080"), "API base URL")
		token     = flag.String("token", os.Getenv("API_TOKEN"), "bearer token")
		waitTask  = flag.String("wait-task", "", "task ID to wait for")
		waitOrder = flag.String("wait-order", "", "order number to wait for")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *token == "" {
		logger.Error("a bearer token is required (-token or API_TOKEN)")
		os.Exit(2)
	}
	if (*waitTask == "") == (*waitOrder == "") {
		logger.Error("pass exactly one of -wait-task or -wait-order")
		os.Exit(2)
	}

	client := &apiClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    *apiURL,
		token:      *token,
	}
	p := poller.New(client, client, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *waitTask != "" {
		id, err := uuid.Parse(*waitTask)
		if err != nil {
			logger.Error("invalid task id", "error", err)
			os.Exit(2)
		}
		task, err := p.WaitForTask(ctx, id)
		if err != nil {
			logger.Error("wait for task", "error", err)
			if task != nil {
				printJSON(task)
			}
			os.Exit(1)
		}
		printJSON(task)
		return
	}

	outcome, err := p.WaitForPayment(ctx, *waitOrder)
	if err != nil {
		logger.Error("wait for payment", "outcome", outcome, "error", err)
		os.Exit(1)
	}
	printJSON(map[string]string{"order_no": *waitOrder, "outcome": string(outcome)})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
