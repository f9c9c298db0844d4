// Package retrieval indexes attached-file chunks and serves similarity
// queries for context assembly. The Gateway is the only retrieval
// surface the rest of the system sees.
package retrieval

import (
	"context"
	"fmt"
	"sort"
)

// Chunk is one retrieved piece of an indexed file.
type Chunk struct {
	FileID     string
	ChunkIndex int
	Section    string
	Text       string
	Score      float32
}

// Gateway answers retrieval queries over a set of indexed files. An
// empty result is not an error; callers treat gateway failures as
// degradation, not request failures.
type Gateway interface {
	Retrieve(ctx context.Context, fileIDs []string, query string, topKPerFile int, minScore float32) ([]Chunk, error)
}

// queryEmbedder is the slice of Embedder the gateway needs.
type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexGateway is the default Gateway over the SQLite chunk store.
type IndexGateway struct {
	embedder queryEmbedder
	store    VectorStore
}

// NewIndexGateway builds a Gateway from an embedder and a chunk store.
func NewIndexGateway(embedder queryEmbedder, store VectorStore) *IndexGateway {
	return &IndexGateway{embedder: embedder, store: store}
}

// Retrieve embeds the query once, searches each file independently and
// returns the merged matches above minScore, highest score first.
func (g *IndexGateway) Retrieve(ctx context.Context, fileIDs []string, query string, topKPerFile int, minScore float32) ([]Chunk, error) {
	if len(fileIDs) == 0 || query == "" {
		return nil, nil
	}

	vector, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var chunks []Chunk
	for _, fileID := range fileIDs {
		records, err := g.store.SearchFile(ctx, fileID, vector, topKPerFile)
		if err != nil {
			return nil, fmt.Errorf("searching file %s: %w", fileID, err)
		}
		for _, r := range records {
			if r.Score < minScore {
				continue
			}
			chunks = append(chunks, Chunk{
				FileID:     r.FileID,
				ChunkIndex: r.ChunkIndex,
				Section:    r.Section,
				Text:       r.TextChunk,
				Score:      r.Score,
			})
		}
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	return chunks, nil
}
