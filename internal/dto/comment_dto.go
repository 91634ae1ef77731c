package dto

import (
	"time"

	"github.com/pulse-social/pulse-api/internal/models"
)

// CommentCreateRequest creates a top-level comment under a post.
type CommentCreateRequest struct {
	PostID uint   `json:"post_id" validate:"required"`
	Body   string `json:"body" validate:"required,min=1,max=5000"`
}

// ReplyCreateRequest creates a reply to an existing comment (root or nested).
type ReplyCreateRequest struct {
	ParentID uint   `json:"parent_id" validate:"required"`
	Body     string `json:"body" validate:"required,min=1,max=5000"`
}

// ThreadEntry is one linearized record of a reply thread. Level is the
// distance from the root and drives indentation only, never ordering.
type ThreadEntry struct {
	ID          uint      `json:"id"`
	PostID      uint      `json:"post_id"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name,omitempty"`
	ParentID    *uint     `json:"parent_id,omitempty"`
	Level       int       `json:"level"`
	MentionName string    `json:"mention_name,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// ThreadResponse is the root-first, then-chronological listing of a thread.
type ThreadResponse struct {
	RootID  uint          `json:"root_id"`
	Entries []ThreadEntry `json:"entries"`
}

// RootSummary aggregates who responded under one top-level comment.
type RootSummary struct {
	RootID                uint   `json:"root_id"`
	RespondersUniqueCount int    `json:"responders_unique_count"`
	RespondedByMe         bool   `json:"responded_by_me"`
	FollowedResponderName string `json:"followed_responder_name,omitempty"`
	Summary               string `json:"summary,omitempty"`
}

// CommentResponse is the serialized representation of a stored comment.
type CommentResponse struct {
	ID            uint      `json:"id"`
	PostID        uint      `json:"post_id"`
	AuthorID      string    `json:"author_id"`
	ParentID      *uint     `json:"parent_id,omitempty"`
	MentionUserID *string   `json:"mention_user_id,omitempty"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewCommentResponse converts a model into a DTO.
func NewCommentResponse(comment models.Comment) CommentResponse {
	return CommentResponse{
		ID:            comment.ID,
		PostID:        comment.PostID,
		AuthorID:      comment.AuthorID,
		ParentID:      comment.ParentID,
		MentionUserID: comment.MentionUserID,
		Body:          comment.Body,
		CreatedAt:     comment.CreatedAt,
	}
}
