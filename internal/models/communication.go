package models

import "time"

// Conversation is a two-party chat thread. StarterID and RecipientID are the
// participants as of creation; messages flow both ways.
type Conversation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StarterID   string    `gorm:"size:64;index;not null" json:"starter_id"`
	RecipientID string    `gorm:"size:64;index;not null" json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is a single chat payload inside a conversation.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	SenderID       string    `gorm:"size:64;index;not null" json:"sender_id"`
	Body           string    `gorm:"type:text" json:"body"`
	ImageURL       string    `gorm:"size:512" json:"image_url,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// ReadMarker holds a user's last-read position in a conversation. A missing
// row is treated as epoch (never read).
type ReadMarker struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"size:64;index:idx_marker_user_conv,unique;not null" json:"user_id"`
	ConversationID uint      `gorm:"index:idx_marker_user_conv,unique;not null" json:"conversation_id"`
	LastReadAt     time.Time `gorm:"not null" json:"last_read_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
