package models

import (
	"time"

	"gorm.io/datatypes"
)

// Post represents a content item published to the feed.
type Post struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	AuthorID   string            `gorm:"size:64;index;not null" json:"author_id"`
	Title      string            `gorm:"size:255" json:"title"`
	Body       string            `gorm:"type:text" json:"body"`
	Public     bool              `gorm:"not null;default:true;index" json:"public"`
	RepostOfID *uint             `gorm:"index" json:"repost_of_id,omitempty"`
	Views      uint              `gorm:"not null;default:0" json:"views"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Like records a user's like state on a post. Toggling flips the Liked flag
// instead of deleting the row, so the like count is the count of rows with
// Liked = true, not the count of rows.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index:idx_like_post_user,unique;not null" json:"post_id"`
	UserID    string    `gorm:"size:64;index:idx_like_post_user,unique;not null" json:"user_id"`
	Liked     bool      `gorm:"not null;default:true" json:"liked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Follow is a directed edge from one account to another.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID string    `gorm:"size:64;index:idx_follow_pair,unique;not null" json:"follower_id"`
	FolloweeID string    `gorm:"size:64;index:idx_follow_pair,unique;not null" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}
