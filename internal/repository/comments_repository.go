package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // registers the "postgres" driver wrapped by otelsql
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// OpenCommentsDB opens a traced database/sql handle on the comments database.
// Each query becomes a span and pool stats are exported as metrics.
func OpenCommentsDB(databaseURL string) (*sql.DB, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.TraceQueryWithoutArgs(),
		otelsql.TraceRowsClose(),
		otelsql.TraceRowsAffected(),
		otelsql.WithSystem(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql driver: %w", err)
	}

	db, err := sql.Open(driverName, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open comments database: %w", err)
	}

	if err := otelsql.RecordStats(db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("record comments db stats: %w", err)
	}

	return db, nil
}

// CommentsRepository reads the comments table, which another system owns.
type CommentsRepository struct {
	db *sql.DB
}

// NewCommentsRepository creates a new comments repository.
func NewCommentsRepository(db *sql.DB) *CommentsRepository {
	return &CommentsRepository{db: db}
}

// ListAll returns every comment. Empty content is returned as "".
func (r *CommentsRepository) ListAll(ctx context.Context) ([]models.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id::text, COALESCE(content, '') FROM comments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment

	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		comments = append(comments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}
