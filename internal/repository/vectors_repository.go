package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// VectorsRepository stores embedded chunks in named pgvector collections.
type VectorsRepository struct {
	db *pgxpool.Pool
}

// NewVectorsRepository creates a new vectors repository.
func NewVectorsRepository(db *pgxpool.Pool) *VectorsRepository {
	return &VectorsRepository{db: db}
}

// ReplaceCollection drops the named collection with all of its rows, recreates it and inserts chunks.
// The whole replacement is one transaction: readers see either the old or the new collection.
func (r *VectorsRepository) ReplaceCollection(ctx context.Context, name string, chunks []models.EmbeddedChunk) (int, error) {
	return r.write(ctx, name, chunks, true)
}

// AppendToCollection inserts chunks into the named collection, creating it if needed.
func (r *VectorsRepository) AppendToCollection(ctx context.Context, name string, chunks []models.EmbeddedChunk) (int, error) {
	return r.write(ctx, name, chunks, false)
}

func (r *VectorsRepository) write(ctx context.Context, name string, chunks []models.EmbeddedChunk, replace bool) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin vectors transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if replace {
		if _, err := tx.Exec(ctx, `DELETE FROM langchain_pg_collection WHERE name = $1`, name); err != nil {
			return 0, fmt.Errorf("delete collection %q: %w", name, err)
		}
	}

	collectionID, err := getOrCreateCollection(ctx, tx, name)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}

	for _, chunk := range chunks {
		metadata := make(map[string]any, len(chunk.Metadata)+1)
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}

		metadata["start_index"] = chunk.StartIndex

		metaJSON, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal chunk metadata: %w", err)
		}

		batch.Queue(`
			INSERT INTO langchain_pg_embedding (id, collection_id, embedding, document, cmetadata)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.Must(uuid.NewV7()).String(), collectionID, pgvector.NewVector(chunk.Embedding), chunk.PageContent, metaJSON,
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit vectors transaction: %w", err)
	}

	return len(chunks), nil
}

func getOrCreateCollection(ctx context.Context, tx pgx.Tx, name string) (uuid.UUID, error) {
	var id uuid.UUID

	err := tx.QueryRow(ctx, `
		INSERT INTO langchain_pg_collection (uuid, name, cmetadata)
		VALUES ($1, $2, '{}')
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING uuid`,
		uuid.Must(uuid.NewV7()), name,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get or create collection %q: %w", name, err)
	}

	return id, nil
}

// SimilaritySearch returns the k chunks of the collection nearest to query by cosine distance.
// A collection that does not exist yet holds no chunks.
func (r *VectorsRepository) SimilaritySearch(
	ctx context.Context, name string, query []float32, k int,
) ([]models.ScoredChunk, error) {
	var collectionID uuid.UUID

	err := r.db.QueryRow(ctx, `SELECT uuid FROM langchain_pg_collection WHERE name = $1`, name).Scan(&collectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []models.ScoredChunk{}, nil
		}

		return nil, fmt.Errorf("lookup collection: %w", err)
	}

	queryVec := pgvector.NewVector(query)

	rows, err := r.db.Query(ctx, `
		SELECT e.id, e.document, e.cmetadata, (1 - (e.embedding <=> $1)) AS score
		FROM langchain_pg_embedding e
		WHERE e.collection_id = $2
		ORDER BY e.embedding <=> $1
		LIMIT $3`, queryVec, collectionID, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredChunk

	for rows.Next() {
		var (
			chunk    models.ScoredChunk
			document *string
			metaJSON []byte
		)

		if err := rows.Scan(&chunk.ID, &document, &metaJSON, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		if document != nil {
			chunk.PageContent = *document
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}

		results = append(results, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return results, nil
}

// CountChunks returns the number of chunks stored in the named collection (0 when it does not exist).
func (r *VectorsRepository) CountChunks(ctx context.Context, name string) (int, error) {
	var count int

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM langchain_pg_embedding e
		JOIN langchain_pg_collection c ON c.uuid = e.collection_id
		WHERE c.name = $1`, name,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}

	return count, nil
}
