package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/sdt-zeiss/prototype-ai/internal/models"
)

// Paging bounds for post listings.
const (
	DefaultPostsLimit = 20
	MaxPostsLimit     = 100
)

// PostsRepository defines the read side of posts data access.
type PostsRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Post, error)
	List(ctx context.Context, filters *models.ListPostsFilters) ([]models.Post, error)
	Count(ctx context.Context, filters *models.ListPostsFilters) (int64, error)
}

// PostsService serves generated posts for review.
type PostsService struct {
	repo PostsRepository
}

// NewPostsService creates a new posts service.
func NewPostsService(repo PostsRepository) *PostsService {
	return &PostsService{repo: repo}
}

// GetPost returns one post by ID.
func (s *PostsService) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return s.repo.Get(ctx, id)
}

// ListPosts returns a page of posts, newest first, with the total matching count.
func (s *PostsService) ListPosts(ctx context.Context, filters *models.ListPostsFilters) (*models.ListPostsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultPostsLimit
	}

	if filters.Limit > MaxPostsLimit {
		filters.Limit = MaxPostsLimit
	}

	posts, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	if posts == nil {
		posts = []models.Post{}
	}

	return &models.ListPostsResponse{
		Data:   posts,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}
