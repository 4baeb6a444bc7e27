package embed

import (
	"context"
	"time"
)

const (
	// DefaultBaseURL targets a local OpenAI-compatible server.
	DefaultBaseURL = "http://localhost:1234/v1"

	// DefaultTimeout bounds a single embedding request attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the total number of attempts per text.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving
	// input order. Empty texts yield zero vectors without a request.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension, or 0 if not yet known.
	Dimensions() int

	// ModelName returns the model identifier, or "" when the endpoint
	// auto-selects.
	ModelName() string

	// Available checks if the embedding endpoint is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
