// Package indexer loads documents into pgvector collections: split, embed, then replace or append.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/embeddings"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
	"github.com/sdt-zeiss/prototype-ai/internal/observability"
)

// Chunking parameters for the recursive character splitter.
const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// ErrEmptyContent is returned by AddVector for blank content.
var ErrEmptyContent = apperrors.NewValidationError("content", "content is empty")

// VectorStore is the write and read side of the collection store.
type VectorStore interface {
	ReplaceCollection(ctx context.Context, name string, chunks []models.EmbeddedChunk) (int, error)
	AppendToCollection(ctx context.Context, name string, chunks []models.EmbeddedChunk) (int, error)
	SimilaritySearch(ctx context.Context, name string, query []float32, k int) ([]models.ScoredChunk, error)
}

// CommentSource reads the externally owned comments table.
type CommentSource interface {
	ListAll(ctx context.Context) ([]models.Comment, error)
}

// Indexer splits, embeds and stores documents.
type Indexer struct {
	store             VectorStore
	embedder          embeddings.Client
	comments          CommentSource
	defaultCollection string
	splitter          textsplitter.RecursiveCharacter
	metrics           observability.PipelineMetrics
}

// NewIndexer creates an indexer writing to defaultCollection unless told otherwise. metrics may be nil.
func NewIndexer(
	store VectorStore, embedder embeddings.Client, comments CommentSource,
	defaultCollection string, metrics observability.PipelineMetrics,
) *Indexer {
	return &Indexer{
		store:             store,
		embedder:          embedder,
		comments:          comments,
		defaultCollection: defaultCollection,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(ChunkSize),
			textsplitter.WithChunkOverlap(ChunkOverlap),
		),
		metrics: metrics,
	}
}

// AddData splits rows, embeds every chunk and writes them to collection (the default when empty).
// With preDelete the collection is replaced atomically; otherwise chunks are appended.
// Returns the number of chunks written.
func (ix *Indexer) AddData(ctx context.Context, rows []models.Document, collection string, preDelete bool) (n int, err error) {
	if collection == "" {
		collection = ix.defaultCollection
	}

	ctx, span := observability.StartSpan(ctx, "indexer.AddData",
		attribute.String("collection", collection),
		attribute.Int("rows", len(rows)),
		attribute.Bool("pre_delete", preDelete),
	)
	defer func() { observability.EndSpan(span, err) }()

	chunks, err := ix.Split(rows)
	if err != nil {
		return 0, err
	}

	embedded, err := ix.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	if preDelete {
		n, err = ix.store.ReplaceCollection(ctx, collection, embedded)
	} else {
		n, err = ix.store.AppendToCollection(ctx, collection, embedded)
	}

	if err != nil {
		return 0, fmt.Errorf("write collection %q: %w", collection, err)
	}

	if ix.metrics != nil {
		ix.metrics.RecordChunksIndexed(ctx, n)
	}

	slog.InfoContext(ctx, "Indexed documents",
		"collection", collection, "rows", len(rows), "chunks", n, "replaced", preDelete)

	return n, nil
}

// Split breaks every row into overlapping chunks. Each chunk keeps a copy of its row's metadata and
// records its start_index, the character offset of the chunk in the row's text. Blank rows are skipped.
func (ix *Indexer) Split(rows []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for i, row := range rows {
		if strings.TrimSpace(row.PageContent) == "" {
			continue
		}

		parts, err := ix.splitter.SplitText(row.PageContent)
		if err != nil {
			return nil, fmt.Errorf("split row %d: %w", i, err)
		}

		searchFrom := 0

		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}

			start := -1
			if idx := strings.Index(row.PageContent[searchFrom:], part); idx >= 0 {
				byteStart := searchFrom + idx
				start = utf8.RuneCountInString(row.PageContent[:byteStart])
				searchFrom = byteStart + 1
			}

			metadata := make(map[string]any, len(row.Metadata))
			for k, v := range row.Metadata {
				metadata[k] = v
			}

			chunks = append(chunks, models.Chunk{PageContent: part, Metadata: metadata, StartIndex: start})
		}
	}

	return chunks, nil
}

func (ix *Indexer) embed(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}

	start := time.Now()
	vectors, err := ix.embedder.CreateEmbeddings(ctx, texts)
	ix.recordStage(ctx, "embed", err, time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	out := make([]models.EmbeddedChunk, len(chunks))
	for i := range chunks {
		out[i] = models.EmbeddedChunk{Chunk: chunks[i], Embedding: vectors[i]}
	}

	return out, nil
}

func (ix *Indexer) recordStage(ctx context.Context, stage string, err error, d time.Duration) {
	if ix.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	ix.metrics.RecordStage(ctx, stage, status, d)
}

// PreprocessComments re-indexes the whole comments table into collection, replacing its contents.
// Each comment's content becomes the chunk text and its id is kept in the metadata.
func (ix *Indexer) PreprocessComments(ctx context.Context, collection string) (int, error) {
	if ix.comments == nil {
		return 0, errors.New("indexer has no comment source")
	}

	comments, err := ix.comments.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load comments: %w", err)
	}

	rows := make([]models.Document, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, models.Document{
			PageContent: c.Content,
			Metadata:    map[string]any{"id": c.ID},
		})
	}

	return ix.AddData(ctx, rows, collection, true)
}

// AddVector appends a single text to the default collection.
func (ix *Indexer) AddVector(ctx context.Context, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyContent
	}

	return ix.AddData(ctx, []models.Document{{PageContent: content}}, "", false)
}

// VectorStore returns a read-only handle on collection (the default when empty).
func (ix *Indexer) VectorStore(collection string) *Retriever {
	if collection == "" {
		collection = ix.defaultCollection
	}

	return &Retriever{store: ix.store, collection: collection}
}

// Retriever runs similarity searches against one collection. It never writes.
type Retriever struct {
	store      VectorStore
	collection string
}

// Collection returns the collection name searched by r.
func (r *Retriever) Collection() string {
	return r.collection
}

// Search returns the k chunks nearest to query.
func (r *Retriever) Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	results, err := r.store.SimilaritySearch(ctx, r.collection, query, k)
	if err != nil {
		return nil, fmt.Errorf("search collection %q: %w", r.collection, err)
	}

	return results, nil
}
