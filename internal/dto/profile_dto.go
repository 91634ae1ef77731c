package dto

import (
	"time"

	"github.com/pulse-social/pulse-api/internal/models"
)

// ProfileUpdateRequest is the payload to set the caller's public identity.
type ProfileUpdateRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=1,max=128"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url,max=512"`
}

// ProfileResponse is the serialized representation of a profile.
type ProfileResponse struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProfileResponse converts a model into a DTO.
func NewProfileResponse(profile models.Profile) ProfileResponse {
	return ProfileResponse{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		UpdatedAt:   profile.UpdatedAt,
	}
}
