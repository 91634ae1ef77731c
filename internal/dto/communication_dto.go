package dto

import (
	"time"

	"github.com/pulse-social/pulse-api/internal/models"
)

// ConversationStartRequest opens a conversation with another account.
type ConversationStartRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,max=64"`
}

// MessageSendRequest is the payload sent from clients to post a chat message.
// Body may be empty when an image is attached.
type MessageSendRequest struct {
	ConversationID uint   `json:"conversation_id" validate:"required"`
	Body           string `json:"body" validate:"omitempty,max=4000"`
	ImageURL       string `json:"image_url" validate:"omitempty,url,max=512"`
}

// ChatHistoryQuery represents query filters for retrieving message history.
type ChatHistoryQuery struct {
	ConversationID uint       `query:"conversation_id" validate:"required"`
	Before         *time.Time `query:"before"`
	Limit          int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           message.Body,
		ImageURL:       message.ImageURL,
		CreatedAt:      message.CreatedAt,
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// ConversationResponse describes a conversation with its unread count for the
// requesting user.
type ConversationResponse struct {
	ID          uint      `json:"id"`
	StarterID   string    `json:"starter_id"`
	RecipientID string    `json:"recipient_id"`
	UnreadCount int64     `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnreadSummary carries per-conversation unread counts plus the global badge
// value (number of conversations with unread, not number of messages).
type UnreadSummary struct {
	Conversations map[uint]int64 `json:"conversations"`
	Badge         int            `json:"badge"`
}
