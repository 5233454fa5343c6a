package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sdt-zeiss/prototype-ai/internal/apperrors"
	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

const defaultPostsLimit = 20

// PostsRepository handles data access for generated posts.
type PostsRepository struct {
	db *pgxpool.Pool
}

// NewPostsRepository creates a new posts repository.
func NewPostsRepository(db *pgxpool.Pool) *PostsRepository {
	return &PostsRepository{db: db}
}

// CreateMany inserts all posts in a single transaction. Either every post is stored or none is.
func (r *PostsRepository) CreateMany(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin posts transaction: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range posts {
		p := &posts[i]
		batch.Queue(`
			INSERT INTO posts (id, created_at, updated_at, title, content, type, author_id, status, image_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, p.CreatedAt, p.UpdatedAt, p.Title, p.Content, p.Type, p.AuthorID, p.Status, p.ImageID,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert posts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit posts transaction: %w", err)
	}

	return nil
}

// Get returns one post by ID.
func (r *PostsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post

	err := r.db.QueryRow(ctx, `
		SELECT id, created_at, updated_at, title, content, type, author_id, status, image_id
		FROM posts
		WHERE id = $1`, id,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt, &post.Title, &post.Content,
		&post.Type, &post.AuthorID, &post.Status, &post.ImageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("post", "post not found")
		}

		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return &post, nil
}

// List returns posts matching filters, newest first.
func (r *PostsRepository) List(ctx context.Context, filters *models.ListPostsFilters) ([]models.Post, error) {
	whereClause, args := buildPostFilterConditions(filters)

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultPostsLimit
	}

	argCount := len(args) + 1
	query := fmt.Sprintf(`
		SELECT id, created_at, updated_at, title, content, type, author_id, status, image_id
		FROM posts%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, whereClause, argCount, argCount+1)

	args = append(args, limit, filters.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}

	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt, &post.Title, &post.Content,
			&post.Type, &post.AuthorID, &post.Status, &post.ImageID); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	return posts, nil
}

// Count returns the number of posts matching filters (limit and offset ignored).
func (r *PostsRepository) Count(ctx context.Context, filters *models.ListPostsFilters) (int64, error) {
	whereClause, args := buildPostFilterConditions(filters)

	var count int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM posts"+whereClause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}

	return count, nil
}

// buildPostFilterConditions builds the WHERE clause (with a leading space) and its positional args.
func buildPostFilterConditions(filters *models.ListPostsFilters) (whereClause string, args []any) {
	var conditions []string

	argCount := 1

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, filters.Status)
		argCount++
	}

	if filters.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argCount))
		args = append(args, *filters.Since)
	}

	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}
