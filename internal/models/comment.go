package models

import "time"

// Comment is a node in the reply forest under a post. A nil ParentID marks a
// root comment; every other comment belongs to exactly one ancestor chain
// terminating at a root. Depth is unbounded in storage and bounded only at
// traversal time.
type Comment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PostID        uint      `gorm:"index;not null" json:"post_id"`
	AuthorID      string    `gorm:"size:64;index;not null" json:"author_id"`
	ParentID      *uint     `gorm:"index" json:"parent_id,omitempty"`
	MentionUserID *string   `gorm:"size:64" json:"mention_user_id,omitempty"`
	Body          string    `gorm:"type:text;not null" json:"body"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
