package dto

import (
	"time"

	"github.com/pulse-social/pulse-api/internal/models"
)

// NotificationCreateRequest describes the payload to record a notification.
type NotificationCreateRequest struct {
	ActorID     string `json:"actor_id" validate:"required,max=64"`
	RecipientID string `json:"recipient_id" validate:"required,max=64"`
	Type        string `json:"type" validate:"required,oneof=post_like post_comment comment_reply mention follow"`
	PostID      *uint  `json:"post_id" validate:"omitempty"`
	CommentID   *uint  `json:"comment_id" validate:"omitempty"`
}

// NotificationResponse represents one raw notification row.
type NotificationResponse struct {
	ID          uint      `json:"id"`
	ActorID     string    `json:"actor_id"`
	RecipientID string    `json:"recipient_id"`
	Type        string    `json:"type"`
	PostID      *uint     `json:"post_id,omitempty"`
	CommentID   *uint     `json:"comment_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          model.ID,
		ActorID:     model.ActorID,
		RecipientID: model.RecipientID,
		Type:        model.Type,
		PostID:      model.PostID,
		CommentID:   model.CommentID,
		Read:        model.Read,
		CreatedAt:   model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// NotificationGroup is one display unit: either a single raw notification or
// several compatible rows merged by (type, post).
type NotificationGroup struct {
	Key        string    `json:"key"`
	Type       string    `json:"type"`
	PostID     *uint     `json:"post_id,omitempty"`
	CommentID  *uint     `json:"comment_id,omitempty"`
	ActorIDs   []string  `json:"actor_ids"`
	ActorCount int       `json:"actor_count"`
	Summary    string    `json:"summary"`
	Read       bool      `json:"read"`
	LatestAt   time.Time `json:"latest_at"`
}
