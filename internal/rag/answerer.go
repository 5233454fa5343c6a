// Package rag answers questions from the vector store: retrieve the nearest chunks,
// render them into the persona prompt and ask the chat model once.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/embeddings"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
	"github.com/sdt-zeiss/prototype-ai/internal/prompts"
	"github.com/sdt-zeiss/prototype-ai/pkg/cache"
)

const (
	defaultTopK      = 20
	defaultCacheSize = 1000
	queryCacheName   = "rag_query_embedding"
	passageSeparator = "\n\n"
)

// Retriever returns the k chunks nearest to a query vector.
type Retriever interface {
	Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error)
}

// ChatClient sends a single-message prompt to a chat model.
type ChatClient interface {
	Chat(ctx context.Context, model, prompt string) (string, error)
}

// Options configures an Answerer.
type Options struct {
	Model        string
	TopK         int
	Template     string
	CacheSize    int
	CacheMetrics observability.CacheMetrics
}

// Answerer is a stateless question answerer. Each call is independent; there is no conversation memory.
type Answerer struct {
	retriever    Retriever
	chat         ChatClient
	model        string
	template     string
	topK         int
	queryCache   *cache.LoaderCache[[]float32]
	cacheMetrics observability.CacheMetrics
}

// NewAnswerer creates an Answerer. Question embeddings are cached by exact question text.
func NewAnswerer(retriever Retriever, embedder embeddings.Client, chat ChatClient, opts Options) (*Answerer, error) {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	if opts.Template == "" {
		opts.Template = prompts.Default().RAGText
	}

	queryCache, err := cache.NewLoaderCache(opts.CacheSize, embedder.CreateEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	return &Answerer{
		retriever:    retriever,
		chat:         chat,
		model:        opts.Model,
		template:     opts.Template,
		topK:         opts.TopK,
		queryCache:   queryCache,
		cacheMetrics: opts.CacheMetrics,
	}, nil
}

// Answer returns the model's reply to question, verbatim.
func (a *Answerer) Answer(ctx context.Context, question string) (answer string, err error) {
	if strings.TrimSpace(question) == "" {
		return "", apperrors.NewValidationError("question", "question is required")
	}

	ctx, span := observability.StartSpan(ctx, "rag.Answer", attribute.Int("top_k", a.topK))
	defer func() { observability.EndSpan(span, err) }()

	queryVec, err := a.embedQuestion(ctx, question)
	if err != nil {
		return "", err
	}

	chunks, err := a.retriever.Search(ctx, queryVec, a.topK)

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		// Nothing indexed yet: answer without context.
		chunks = nil
	case err != nil:
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	prompt, err := prompts.Render(a.template, map[string]any{
		"context":  FormatDocs(chunks),
		"question": question,
	})
	if err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "Answering question", "chunks", len(chunks), "prompt_chars", len(prompt))

	answer, err = a.chat.Chat(ctx, a.model, prompt)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	return answer, nil
}

func (a *Answerer) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	vec, hit, err := a.queryCache.Get(ctx, question)

	if a.cacheMetrics != nil {
		a.cacheMetrics.RecordLookup(ctx, queryCacheName, hit)

		if err != nil && ctx.Err() == nil {
			a.cacheMetrics.RecordLoadError(ctx, queryCacheName)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	return vec, nil
}

// FormatDocs joins chunk texts with a blank line, in retrieval order.
func FormatDocs(chunks []models.ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}

	return strings.Join(texts, passageSeparator)
}
