package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/lumenhq/lumen/internal/storage"
)

func openChunkStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLiteStore(s.DB())
}

func chunkRecord(fileID string, idx int, text string, embedding []float32) Record {
	return Record{
		ID:         fmt.Sprintf("%s-%d", fileID, idx),
		FileID:     fileID,
		ChunkIndex: idx,
		TextChunk:  text,
		Embedding:  embedding,
	}
}

func TestSearchFileRanksByCosineSimilarity(t *testing.T) {
	store := openChunkStore(t)
	ctx := context.Background()

	records := []Record{
		chunkRecord("file-1", 0, "exact match", []float32{1, 0, 0}),
		chunkRecord("file-1", 1, "close match", []float32{0.9, 0.1, 0}),
		chunkRecord("file-1", 2, "orthogonal", []float32{0, 1, 0}),
		chunkRecord("file-2", 0, "other file", []float32{1, 0, 0}),
	}
	if err := store.Insert(ctx, records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := store.SearchFile(ctx, "file-1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchFile: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].TextChunk != "exact match" {
		t.Errorf("top result = %q, want the exact match", results[0].TextChunk)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted: %f < %f", results[0].Score, results[1].Score)
	}
	for _, r := range results {
		if r.FileID != "file-1" {
			t.Errorf("search leaked chunk from %s", r.FileID)
		}
	}
}

func TestSearchFileEmptyIndex(t *testing.T) {
	store := openChunkStore(t)
	results, err := store.SearchFile(context.Background(), "nothing", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("SearchFile: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil for empty index, got %v", results)
	}
}

func TestDeleteAndCountFile(t *testing.T) {
	store := openChunkStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, []Record{
		chunkRecord("file-1", 0, "a", []float32{1, 0}),
		chunkRecord("file-1", 1, "b", []float32{0, 1}),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := store.CountFile(ctx, "file-1")
	if err != nil || n != 2 {
		t.Fatalf("CountFile = %d, %v; want 2", n, err)
	}

	if err := store.DeleteFile(ctx, "file-1"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	n, err = store.CountFile(ctx, "file-1")
	if err != nil || n != 0 {
		t.Errorf("CountFile after delete = %d, %v; want 0", n, err)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
