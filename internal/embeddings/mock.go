package embeddings

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ErrEmptyText is returned by MockClient for blank input.
var ErrEmptyText = errors.New("text cannot be empty")

// MockClient implements Client for tests.
// Texts registered with Set get fixed vectors; all others get a deterministic hash-based vector.
type MockClient struct {
	dimensions int

	mu     sync.RWMutex
	fixed  map[string][]float32
	calls  atomic.Int64
	failOn string
}

// NewMockClient creates a mock client producing vectors of the given dimension.
func NewMockClient(dimensions int) *MockClient {
	return &MockClient{dimensions: dimensions, fixed: make(map[string][]float32)}
}

// Set pins the vector returned for text.
func (c *MockClient) Set(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fixed[text] = vector
}

// FailOn makes every call that includes text return an error.
func (c *MockClient) FailOn(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failOn = text
}

// Calls returns how many CreateEmbedding/CreateEmbeddings calls were made.
func (c *MockClient) Calls() int {
	return int(c.calls.Load())
}

// CreateEmbedding returns the vector for text.
func (c *MockClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)

	return c.embed(text)
}

// CreateEmbeddings returns one vector per text. Returns an error if any text is empty.
func (c *MockClient) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embed(text)
		if err != nil {
			return nil, fmt.Errorf("text at index %d: %w", i, err)
		}

		out[i] = vec
	}

	return out, nil
}

func (c *MockClient) embed(text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	c.mu.RLock()
	vec, ok := c.fixed[text]
	failOn := c.failOn
	c.mu.RUnlock()

	if failOn != "" && text == failOn {
		return nil, fmt.Errorf("mock embedding failure for %q", text)
	}

	if ok {
		return vec, nil
	}

	return c.hashEmbedding(text), nil
}

// hashEmbedding creates a unit-length vector from the SHA-256 of text.
func (c *MockClient) hashEmbedding(text string) []float32 {
	hash := sha256.Sum256([]byte(text))
	embedding := make([]float32, c.dimensions)

	var norm float64

	for i := range embedding {
		v := float64(hash[i%len(hash)])/127.5 - 1
		embedding[i] = float32(v)
		norm += v * v
	}

	if norm == 0 {
		return embedding
	}

	norm = math.Sqrt(norm)
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}

	return embedding
}
