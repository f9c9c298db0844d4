package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lumenhq/lumen/internal/storage"
)

// JobTypeIndexFile is the queue type for background chunk indexing.
const JobTypeIndexFile = "index_file"

// FileStore is the slice of storage the Ingestor needs.
type FileStore interface {
	SaveFile(f storage.AttachedFile) error
	EnqueueJob(job storage.Job) error
}

// Ingestor accepts uploads: it extracts text, fixes the retrieval mode
// and either marks the file ready (direct) or queues it for indexing.
type Ingestor struct {
	store          FileStore
	directMaxChars int
}

func NewIngestor(store FileStore, directMaxChars int) *Ingestor {
	return &Ingestor{store: store, directMaxChars: directMaxChars}
}

type indexPayload struct {
	FileID string `json:"file_id"`
}

// SaveUpload processes one uploaded file and persists it. Direct-mode
// files are usable immediately; indexed files become usable when the
// worker flips their status to ready.
func (in *Ingestor) SaveUpload(ctx context.Context, threadID, filename string, data []byte) (storage.AttachedFile, error) {
	text, err := ExtractText(filename, data)
	if err != nil {
		return storage.AttachedFile{}, fmt.Errorf("extracting %s: %w", filename, err)
	}

	chars := utf8.RuneCountInString(text)
	mode := DecideMode(chars, in.directMaxChars)

	file := storage.AttachedFile{
		ID:             uuid.New().String(),
		ThreadID:       threadID,
		Filename:       filename,
		ExtractedText:  text,
		ExtractedChars: chars,
		RetrievalMode:  mode,
		IndexStatus:    storage.IndexStatusReady,
		CreatedAt:      time.Now().UTC(),
	}
	if mode == storage.RetrievalModeIndexed {
		file.IndexStatus = storage.IndexStatusPending
	}

	if err := in.store.SaveFile(file); err != nil {
		return storage.AttachedFile{}, fmt.Errorf("saving file: %w", err)
	}

	if mode == storage.RetrievalModeIndexed {
		payload, err := json.Marshal(indexPayload{FileID: file.ID})
		if err != nil {
			return storage.AttachedFile{}, err
		}
		if err := in.store.EnqueueJob(storage.Job{
			ID:          uuid.New().String(),
			Type:        JobTypeIndexFile,
			PayloadJSON: string(payload),
		}); err != nil {
			return storage.AttachedFile{}, fmt.Errorf("enqueueing index job: %w", err)
		}
	}

	return file, nil
}
