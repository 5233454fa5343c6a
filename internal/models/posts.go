package models

import (
	"time"

	"github.com/google/uuid"
)

// Post type and status values written by the topic pipeline.
const (
	PostTypeStory                   = "Story"
	PostStatusAIGeneratedUnreviewed = "ai_generated_unreviewed"
)

// Post is one row of the append-only posts table.
type Post struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	AuthorID  string    `json:"author_id"`
	Status    string    `json:"status"`
	ImageID   string    `json:"image_id"`
	// ImageURL is the vendor URL the image was generated at; it is not persisted.
	ImageURL string `json:"image_url,omitempty"`
}

// ListPostsFilters are the query filters for GET /posts.
type ListPostsFilters struct {
	Limit  int        `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int        `form:"offset" validate:"omitempty,min=0"`
	Status string     `form:"status" validate:"omitempty,no_null_bytes,max=64"`
	Since  *time.Time `form:"since"`
}

// ListPostsResponse is the response for GET /posts.
type ListPostsResponse struct {
	Data   []Post `json:"data"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
