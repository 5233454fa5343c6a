// Package openai wraps the official OpenAI Go SDK for embeddings, chat completions and image generation.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"golang.org/x/time/rate"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

const vendor = "openai"

var (
	// ErrEmptyInput is returned when an embedding or chat call gets empty input.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("openai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
	// ErrNoChoices is returned when a chat completion has no choices.
	ErrNoChoices = errors.New("openai: no choices in response")
	// ErrNoImage is returned when an image generation response carries no URL.
	ErrNoImage = errors.New("openai: no image in response")
)

const (
	defaultDimension      = 3072
	defaultEmbeddingModel = "text-embedding-3-large"
	defaultImageModel     = "dall-e-3"
	// maxEmbeddingBatch is the number of inputs sent per embeddings request.
	maxEmbeddingBatch = 512
)

// Client calls the OpenAI API via the official SDK.
// Every call is rate limited, timed on the vendor metrics and wrapped in an UpstreamError on failure.
type Client struct {
	sdk            openaisdk.Client
	embeddingModel string
	imageModel     string
	dimensions     int
	limiter        *rate.Limiter
	metrics        observability.VendorMetrics
	sdkOpts        []option.RequestOption

	// schemaRejected holds chat models that refused a JSON schema response format.
	schemaRejected sync.Map
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match the vector column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithEmbeddingModel sets the embedding model name. Empty keeps the default.
func WithEmbeddingModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithImageModel sets the image generation model name. Empty keeps the default.
func WithImageModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.imageModel = model
		}
	}
}

// WithRateLimit caps outbound requests per second. Non-positive disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMetrics records every call on m.
func WithMetrics(m observability.VendorMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBaseURL points the SDK at another endpoint (tests, proxies).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.sdkOpts = append(c.sdkOpts, option.WithBaseURL(baseURL))
	}
}

// WithOrganization sends the OpenAI-Organization header. Empty is ignored.
func WithOrganization(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.sdkOpts = append(c.sdkOpts, option.WithOrganization(id))
		}
	}
}

// WithProject sends the OpenAI-Project header. Empty is ignored.
func WithProject(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.sdkOpts = append(c.sdkOpts, option.WithProject(id))
		}
	}
}

// NewClient creates an OpenAI client using the official SDK.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		embeddingModel: defaultEmbeddingModel,
		imageModel:     defaultImageModel,
		dimensions:     defaultDimension,
	}

	for _, opt := range opts {
		opt(client)
	}

	sdkOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, client.sdkOpts...)
	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client
}

func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("openai rate limiter: %w", err)
		}
	}

	err := observability.TimeVendorCall(ctx, c.metrics, vendor, op, fn)
	if err != nil {
		return apperrors.NewUpstreamError(vendor, op, err)
	}

	return nil
}

// CreateEmbedding returns the embedding vector for the given text.
// The returned slice length equals the configured dimensions.
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

// CreateEmbeddings returns one vector per input, in input order.
// Inputs are sent in batches of maxEmbeddingBatch.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	out := make([][]float32, 0, len(inputs))

	for start := 0; start < len(inputs); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(inputs))

		batch := inputs[start:end]
		for i, in := range batch {
			if strings.TrimSpace(in) == "" {
				return nil, fmt.Errorf("%w (index %d)", ErrEmptyInput, start+i)
			}
		}

		vectors, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}

		out = append(out, vectors...)
	}

	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var resp *openaisdk.CreateEmbeddingResponse

	err := c.call(ctx, "embed", func() error {
		var err error

		resp, err = c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
			Input: openaisdk.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: batch,
			},
			Model:      openaisdk.EmbeddingModel(c.embeddingModel),
			Dimensions: param.NewOpt(int64(c.dimensions)),
		})

		return err
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: got %d for %d inputs", ErrNoEmbeddingInResponse, len(resp.Data), len(batch))
	}

	out := make([][]float32, len(batch))

	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(batch) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", item.Index)
		}

		if len(item.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(item.Embedding), c.dimensions)
		}

		vec := make([]float32, len(item.Embedding))
		for i := range item.Embedding {
			vec[i] = float32(item.Embedding[i])
		}

		out[item.Index] = vec
	}

	return out, nil
}

// Chat sends prompt as a single user message to model and returns the assistant's text.
func (c *Client) Chat(ctx context.Context, model, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	return c.complete(ctx, "chat", openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(prompt)},
	})
}

// StructuredChat asks model for a JSON object matching the schema reflected from out, then decodes into out.
// out must be a pointer to a struct. Output that does not decode is a MalformedOutputError.
// A model that rejects JSON schemas yields apperrors.ErrStructuredOutputUnsupported, and later calls
// for that model fail the same way without a request.
func (c *Client) StructuredChat(ctx context.Context, model, prompt, schemaName string, out any) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyInput
	}

	if _, rejected := c.schemaRejected.Load(model); rejected {
		return fmt.Errorf("openai %s: %w", model, apperrors.ErrStructuredOutputUnsupported)
	}

	reflector := jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	schema := reflector.Reflect(out)

	content, err := c.complete(ctx, "structured_chat", openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(prompt)},
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openaisdk.ResponseFormatJSONSchemaParam{
				JSONSchema: openaisdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openaisdk.Bool(true),
				},
			},
		},
	})
	if err != nil {
		if isSchemaRejection(err) {
			c.schemaRejected.Store(model, struct{}{})

			return fmt.Errorf("%w: %w", apperrors.ErrStructuredOutputUnsupported, err)
		}

		return err
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return apperrors.NewMalformedOutputError(fmt.Sprintf("decode %s: %v", schemaName, err), content)
	}

	return nil
}

// isSchemaRejection reports whether err is a 400 about the response_format parameter.
func isSchemaRejection(err error) bool {
	var apiErr *openaisdk.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		return false
	}

	if apiErr.Param == "response_format" {
		return true
	}

	msg := strings.ToLower(apiErr.Message + " " + err.Error())

	return strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format")
}

func (c *Client) complete(ctx context.Context, op string, params openaisdk.ChatCompletionNewParams) (string, error) {
	var resp *openaisdk.ChatCompletion

	err := c.call(ctx, op, func() error {
		var err error

		resp, err = c.sdk.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}

		if len(resp.Choices) == 0 {
			return ErrNoChoices
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateImage renders one 1024x1024 image for prompt and returns its temporary vendor URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	var url string

	err := c.call(ctx, "image", func() error {
		resp, err := c.sdk.Images.Generate(ctx, openaisdk.ImageGenerateParams{
			Prompt:         prompt,
			Model:          openaisdk.ImageModel(c.imageModel),
			N:              openaisdk.Int(1),
			Size:           openaisdk.ImageGenerateParamsSize1024x1024,
			Quality:        openaisdk.ImageGenerateParamsQualityStandard,
			ResponseFormat: openaisdk.ImageGenerateParamsResponseFormatURL,
		})
		if err != nil {
			return err
		}

		if len(resp.Data) == 0 || resp.Data[0].URL == "" {
			return ErrNoImage
		}

		url = resp.Data[0].URL

		return nil
	})
	if err != nil {
		return "", err
	}

	return url, nil
}
