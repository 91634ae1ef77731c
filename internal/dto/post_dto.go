package dto

import (
	"time"

	"github.com/pulse-social/pulse-api/internal/models"
)

// PostCreateRequest is the payload to publish a new post.
type PostCreateRequest struct {
	Title      string `json:"title" validate:"omitempty,max=255"`
	Body       string `json:"body" validate:"required,min=1,max=20000"`
	Public     *bool  `json:"public" validate:"omitempty"`
	RepostOfID *uint  `json:"repost_of_id" validate:"omitempty"`
}

// PostResponse is the serialized representation of a post.
type PostResponse struct {
	ID         uint      `json:"id"`
	AuthorID   string    `json:"author_id"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	Public     bool      `json:"public"`
	RepostOfID *uint     `json:"repost_of_id,omitempty"`
	Views      uint      `json:"views"`
	Liked      bool      `json:"liked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewPostResponse converts a model into a DTO.
func NewPostResponse(post models.Post) PostResponse {
	return PostResponse{
		ID:         post.ID,
		AuthorID:   post.AuthorID,
		Title:      post.Title,
		Body:       post.Body,
		Public:     post.Public,
		RepostOfID: post.RepostOfID,
		Views:      post.Views,
		CreatedAt:  post.CreatedAt,
		UpdatedAt:  post.UpdatedAt,
	}
}

// LikeToggleResponse reports the resulting like state after a toggle.
type LikeToggleResponse struct {
	PostID uint  `json:"post_id"`
	Liked  bool  `json:"liked"`
	Likes  int64 `json:"likes"`
}
