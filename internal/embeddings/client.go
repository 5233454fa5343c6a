// Package embeddings defines the embedding client contract shared by the indexer, RAG and topic pipeline.
package embeddings

import "context"

// Client generates embedding vectors for text.
// Implemented by provider-specific clients (OpenAI, Google Gemini).
type Client interface {
	// CreateEmbedding returns the vector for a single text.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// CreateEmbeddings returns one vector per input, in input order.
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
}
