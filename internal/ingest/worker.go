package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/replydesk/internal/knowledge"
	"github.com/kalambet/replydesk/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id string, errMsg string) error
}

// ProductImporter performs one import.
type ProductImporter interface {
	Import(ctx context.Context, asin, marketplace string) (knowledge.Product, error)
}

// ImportRecorder receives import job outcomes.
type ImportRecorder interface {
	ImportJob(outcome string)
}

// Worker processes catalog_import jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	importer ProductImporter
	metrics  ImportRecorder
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, importer ProductImporter, metrics ImportRecorder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		importer: importer,
		metrics:  metrics,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single catalog_import job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeImport})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	result, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("import job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		if job.Attempts+1 >= job.MaxAttempts {
			w.record("failed")
		} else {
			w.record("retried")
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID, result); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.record("completed")
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	var payload importPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	p, err := w.importer.Import(ctx, payload.ASIN, payload.Marketplace)
	if err != nil {
		return "", fmt.Errorf("importing %s: %w", payload.ASIN, err)
	}
	w.logger.Info("imported listing", "job_id", job.ID, "asin", p.ASIN, "product_id", p.ID)

	b, err := json.Marshal(importResult{ProductID: p.ID})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (w *Worker) record(outcome string) {
	if w.metrics != nil {
		w.metrics.ImportJob(outcome)
	}
}
