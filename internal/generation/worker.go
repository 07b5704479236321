// Package generation drives one pending task to a terminal state: charge the
// credit, call the external model with bounded retry, persist the extracted
// result, and resolve the task, refunding on any failure after the charge.
package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/styleforge/backend/internal/models"
)

type GenerateJobArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (GenerateJobArgs) Kind() string { return "generate_image" }

// TaskService is the contract the worker needs to read and resolve a task.
// The bool returns report whether the operation applied; false means the
// task moved on without us (terminal, or balance too low) and is never an
// inconsistency.
type TaskService interface {
	Task(ctx context.Context, id uuid.UUID) (*models.Task, error)
	BeginProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	ChargeTask(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteTask(ctx context.Context, id uuid.UUID, resultRef string) error
	FailTask(ctx context.Context, id uuid.UUID, reason string) error
	RefundIfCharged(ctx context.Context, id uuid.UUID) error
}

// Generator is the external model call.
type Generator interface {
	Generate(ctx context.Context, prompt, imageRef string) (string, error)
}

// BlobStore persists result bytes and returns a stable reference.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

const (
	generateAttempts  = 3
	generateRetryWait = 2 * time.Second
	maxResultBytes    = 16 << 20
)

type GenerateWorker struct {
	river.WorkerDefaults[GenerateJobArgs]
	tasks      TaskService
	generator  Generator
	blobs      BlobStore
	httpClient *http.Client
	logger     *slog.Logger
}

func NewGenerateWorker(tasks TaskService, generator Generator, blobs BlobStore, logger *slog.Logger) *GenerateWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateWorker{
		tasks:      tasks,
		generator:  generator,
		blobs:      blobs,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (w *GenerateWorker) Work(ctx context.Context, job *river.Job[GenerateJobArgs]) error {
	id := job.Args.TaskID

	started, err := w.tasks.BeginProcessing(ctx, id)
	if err != nil {
		return fmt.Errorf("begin processing: %w", err)
	}
	if !started {
		// A re-delivered job can find its task resolved while still holding
		// the charge from an earlier run.
		w.logger.Info("task no longer runnable, skipping", "task_id", id)
		return w.tasks.RefundIfCharged(ctx, id)
	}

	task, err := w.tasks.Task(ctx, id)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	charged, err := w.tasks.ChargeTask(ctx, id)
	if err != nil {
		return fmt.Errorf("charge task: %w", err)
	}
	if !charged {
		cur, err := w.tasks.Task(ctx, id)
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		if cur.Terminal() {
			w.logger.Info("task resolved before charge, skipping", "task_id", id)
			return nil
		}
		return w.failTask(ctx, id, "insufficient credits")
	}

	raw, err := w.generateWithRetry(ctx, task)
	if err != nil {
		return w.failTask(ctx, id, err.Error())
	}

	candidate, err := ExtractImageRef(raw)
	if err != nil {
		return w.failTask(ctx, id, err.Error())
	}

	data, contentType, err := w.fetchResult(ctx, candidate)
	if err != nil {
		return w.failTask(ctx, id, fmt.Sprintf("fetch result: %v", err))
	}
	ref, err := w.blobs.Put(ctx, data, contentType)
	if err != nil {
		return w.failTask(ctx, id, fmt.Sprintf("store result: %v", err))
	}

	if err := w.tasks.CompleteTask(ctx, id, ref); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// generateWithRetry calls the model up to generateAttempts times with a fixed
// inter-attempt wait. Only transport-class failures are retried; a refusal or
// malformed-request error is returned immediately.
func (w *GenerateWorker) generateWithRetry(ctx context.Context, task *models.Task) (string, error) {
	imageRef := ""
	if task.InputImageRef != nil {
		imageRef = *task.InputImageRef
	}
	prompt := renderPrompt(task)

	var lastErr error
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		raw, err := w.generator.Generate(ctx, prompt, imageRef)
		if err == nil {
			return raw, nil
		}
		var tErr *TransportError
		if !errors.As(err, &tErr) {
			return "", err
		}
		lastErr = err
		w.logger.Warn("generation call failed", "task_id", task.ID, "attempt", attempt, "error", err)
		if attempt < generateAttempts {
			select {
			case <-time.After(generateRetryWait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", generateAttempts, lastErr)
}

// failTask resolves the task failed (refunding inside). If even that fails,
// the combined error is returned so the job is retried for the bookkeeping.
func (w *GenerateWorker) failTask(ctx context.Context, id uuid.UUID, reason string) error {
	if err := w.tasks.FailTask(ctx, id, reason); err != nil {
		return fmt.Errorf("generation failed (%s) AND failed to mark task failed: %w", reason, err)
	}
	return nil
}

// fetchResult resolves an extracted candidate to raw bytes: data URIs are
// decoded in place, remote URLs are downloaded with a size cap.
func (w *GenerateWorker) fetchResult(ctx context.Context, candidate string) ([]byte, string, error) {
	if strings.HasPrefix(candidate, "data:") {
		return decodeDataURI(candidate)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("result fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("result fetch returned empty body")
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}

func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	contentType := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI: %w", err)
	}
	return data, contentType, nil
}

func renderPrompt(t *models.Task) string {
	if t.Style != nil && *t.Style != "" {
		if t.Prompt == "" {
			return fmt.Sprintf("Restyle this image in the %s style.", *t.Style)
		}
		return fmt.Sprintf("%s (render in the %s style)", t.Prompt, *t.Style)
	}
	return t.Prompt
}
