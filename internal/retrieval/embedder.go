package retrieval

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// embeddingsAPI is the slice of the OpenAI client the Embedder uses.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder generates text embeddings through the OpenAI embeddings API.
type Embedder struct {
	client embeddingsAPI
	model  string
}

// NewEmbedder creates an Embedder for the given API key and model name.
func NewEmbedder(apiKey, model string) *Embedder {
	return &Embedder{client: openai.NewClient(apiKey), model: model}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding text: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid hammering the API.

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
