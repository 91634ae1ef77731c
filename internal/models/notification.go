package models

import "time"

// Notification types. PostLike and PostComment are the only groupable types;
// grouping is an allow-list rather than a rule derived from the type shape.
const (
	NotificationPostLike     = "post_like"
	NotificationPostComment  = "post_comment"
	NotificationCommentReply = "comment_reply"
	NotificationMention      = "mention"
	NotificationFollow       = "follow"
)

// Notification is a single raw notification row. Compatible rows referencing
// the same post are merged into one display unit at read time.
type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ActorID     string    `gorm:"size:64;index;not null" json:"actor_id"`
	RecipientID string    `gorm:"size:64;index;not null" json:"recipient_id"`
	Type        string    `gorm:"size:64;not null" json:"type"`
	PostID      *uint     `gorm:"index" json:"post_id,omitempty"`
	CommentID   *uint     `gorm:"index" json:"comment_id,omitempty"`
	Read        bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
