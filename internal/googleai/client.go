// Package googleai wraps the Google Gen AI SDK for Gemini embeddings.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

const vendor = "google"

var (
	// ErrEmptyInput is returned when an embedding call gets empty input.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response has fewer embeddings than inputs.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	defaultDimension = 3072
	defaultModel     = "gemini-embedding-001"
	maxBatch         = 100
)

// Client calls the Gemini embeddings API via the Google Gen AI SDK.
type Client struct {
	client     *genai.Client
	model      string
	dimensions int
	metrics    observability.VendorMetrics
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match the vector column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithMetrics records every call on m.
func WithMetrics(m observability.VendorMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Gemini embeddings client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:     genaiClient,
		model:      defaultModel,
		dimensions: defaultDimension,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.model == "" {
		client.model = defaultModel
	}

	return client, nil
}

// CreateEmbedding returns the embedding vector for the given text.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	out, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}

	return out[0], nil
}

// CreateEmbeddings returns one vector per input, in input order, sending maxBatch inputs per request.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if c.dimensions <= 0 || c.dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	out := make([][]float32, 0, len(inputs))

	for start := 0; start < len(inputs); start += maxBatch {
		end := min(start+maxBatch, len(inputs))

		contents := make([]*genai.Content, 0, end-start)
		for i, in := range inputs[start:end] {
			if strings.TrimSpace(in) == "" {
				return nil, fmt.Errorf("%w (index %d)", ErrEmptyInput, start+i)
			}

			contents = append(contents, genai.NewContentFromText(in, genai.RoleUser))
		}

		vectors, err := c.embed(ctx, contents)
		if err != nil {
			return nil, err
		}

		out = append(out, vectors...)
	}

	return out, nil
}

func (c *Client) embed(ctx context.Context, contents []*genai.Content) ([][]float32, error) {
	//nolint:gosec // G115: c.dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	var resp *genai.EmbedContentResponse

	err := observability.TimeVendorCall(ctx, c.metrics, vendor, "embed", func() error {
		var err error

		resp, err = c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: &dimInt32,
		})

		return err
	})
	if err != nil {
		return nil, apperrors.NewUpstreamError(vendor, "embed", err)
	}

	if len(resp.Embeddings) != len(contents) {
		return nil, fmt.Errorf("%w: got %d for %d inputs", ErrNoEmbeddingInResponse, len(resp.Embeddings), len(contents))
	}

	out := make([][]float32, len(resp.Embeddings))

	for i, emb := range resp.Embeddings {
		if len(emb.Values) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb.Values), c.dimensions)
		}

		vec := make([]float32, len(emb.Values))
		copy(vec, emb.Values)
		out[i] = vec
	}

	return out, nil
}
