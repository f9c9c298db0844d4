package retrieval

import (
	"context"
	"time"
)

// VectorStore stores embedded file chunks and answers per-file
// similarity queries. The default implementation is SQLite with
// brute-force cosine similarity; the interface keeps the backend
// swappable for an ANN-capable store once chunk counts grow past what
// a linear scan tolerates.
type VectorStore interface {
	// Insert adds chunk records for a file.
	Insert(ctx context.Context, records []Record) error

	// SearchFile returns the top-K chunks of one file most similar to
	// the query vector. An empty result is not an error.
	SearchFile(ctx context.Context, fileID string, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteFile removes all chunk records of a file.
	DeleteFile(ctx context.Context, fileID string) error

	// CountFile returns the number of chunk records stored for a file.
	CountFile(ctx context.Context, fileID string) (int, error)
}

// Record is one embedded chunk of an attached file.
type Record struct {
	ID         string
	FileID     string
	ChunkIndex int
	Section    string
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a cosine similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
