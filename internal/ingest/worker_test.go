package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumenhq/lumen/internal/retrieval"
	"github.com/lumenhq/lumen/internal/storage"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return vecs, nil
}

func uploadIndexedFile(t *testing.T, s *storage.Store) storage.AttachedFile {
	t.Helper()
	ing := NewIngestor(s, 100)
	file, err := ing.SaveUpload(context.Background(), "th-1", "big.txt",
		[]byte(strings.Repeat("alpha beta gamma\n\n", 30)))
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if file.RetrievalMode != storage.RetrievalModeIndexed {
		t.Fatalf("fixture file should be indexed, got %q", file.RetrievalMode)
	}
	return file
}

func TestWorkerIndexesFile(t *testing.T) {
	s := openTestStore(t)
	file := uploadIndexedFile(t, s)

	vectors := retrieval.NewSQLiteStore(s.DB())
	w := NewWorker(s, &stubEmbedder{}, vectors, 100, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("worker did not claim the queued job")
	}

	got, err := s.GetFile(file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.IndexStatus != storage.IndexStatusReady {
		t.Errorf("status = %q, want ready", got.IndexStatus)
	}

	n, err := vectors.CountFile(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("CountFile: %v", err)
	}
	if n == 0 {
		t.Error("no chunks indexed")
	}

	// Queue is drained.
	done, err = w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if done {
		t.Error("queue should be empty after completion")
	}
}

func TestWorkerRecordsIndexError(t *testing.T) {
	s := openTestStore(t)
	file := uploadIndexedFile(t, s)

	vectors := retrieval.NewSQLiteStore(s.DB())
	w := NewWorker(s, &stubEmbedder{err: errors.New("embeddings down")}, vectors, 100, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("worker did not claim the queued job")
	}

	got, err := s.GetFile(file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.IndexStatus != storage.IndexStatusError {
		t.Errorf("status = %q, want error", got.IndexStatus)
	}
	if !strings.Contains(got.IndexError, "embeddings down") {
		t.Errorf("IndexError = %q", got.IndexError)
	}
}
