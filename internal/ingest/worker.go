package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lumenhq/lumen/internal/retrieval"
	"github.com/lumenhq/lumen/internal/storage"
)

// JobStore abstracts the queue and file operations the worker uses.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetFile(id string) (storage.AttachedFile, error)
	UpdateFileIndexStatus(id, status, indexError string) error
}

// ChunkEmbedder generates embeddings for chunk batches.
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the chunk store the worker writes to.
type VectorIndex interface {
	Insert(ctx context.Context, records []retrieval.Record) error
	DeleteFile(ctx context.Context, fileID string) error
}

// Worker processes index_file jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	embedder  ChunkEmbedder
	vectors   VectorIndex
	chunkSize int
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ChunkEmbedder, vectors VectorIndex, chunkSize int, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		chunkSize: chunkSize,
		poll:      pollInterval,
		logger:    slog.Default(),
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

// RunOnce claims and processes a single index_file job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeIndexFile})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		w.logger.Warn("job has bad payload", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.indexFile(ctx, payload.FileID); err != nil {
		w.logger.Warn("indexing failed", "job_id", job.ID, "file_id", payload.FileID, "error", err)
		// A later retry can still flip the file back to ready.
		if statusErr := w.store.UpdateFileIndexStatus(payload.FileID, storage.IndexStatusError, err.Error()); statusErr != nil {
			w.logger.Error("failed to record index error", "file_id", payload.FileID, "error", statusErr)
		}
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.UpdateFileIndexStatus(payload.FileID, storage.IndexStatusReady, ""); err != nil {
		return true, fmt.Errorf("marking file %s ready: %w", payload.FileID, err)
	}
	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) indexFile(ctx context.Context, fileID string) error {
	file, err := w.store.GetFile(fileID)
	if err != nil {
		return fmt.Errorf("loading file %s: %w", fileID, err)
	}

	pieces := Split(file.ExtractedText, w.chunkSize)
	if len(pieces) == 0 {
		return fmt.Errorf("file %s extracted to no indexable text", fileID)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	records := make([]retrieval.Record, len(pieces))
	now := time.Now().UTC()
	for i, p := range pieces {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			FileID:     fileID,
			ChunkIndex: p.Index,
			Section:    p.Section,
			TextChunk:  p.Text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	// Re-indexing replaces any chunks from a previous attempt.
	if err := w.vectors.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("clearing old chunks: %w", err)
	}
	if err := w.vectors.Insert(ctx, records); err != nil {
		return fmt.Errorf("inserting chunks: %w", err)
	}

	return nil
}
