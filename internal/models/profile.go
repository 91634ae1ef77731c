package models

import "time"

// Profile is the public identity projection of an account, used for batch
// display-name resolution in threads and summaries.
type Profile struct {
	UserID      string    `gorm:"primaryKey;size:64" json:"user_id"`
	DisplayName string    `gorm:"size:128;not null" json:"display_name"`
	AvatarURL   string    `gorm:"size:512" json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
