package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
)

// ProfileService manages the caller's public identity projection.
type ProfileService interface {
	Get(ctx context.Context, userID string) (dto.ProfileResponse, error)
	Update(ctx context.Context, userID string, payload dto.ProfileUpdateRequest) (dto.ProfileResponse, error)
}

type profileService struct {
	repo      repository.ProfileRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewProfileService constructs a profile service.
func NewProfileService(repo repository.ProfileRepository, validate *validator.Validate, logger zerolog.Logger) ProfileService {
	return &profileService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "profile_service").Logger(),
	}
}

func (s *profileService) Get(ctx context.Context, userID string) (dto.ProfileResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.ProfileResponse{}, errors.New("user id is required")
	}

	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return dto.ProfileResponse{}, err
	}
	return dto.NewProfileResponse(profile), nil
}

func (s *profileService) Update(ctx context.Context, userID string, payload dto.ProfileUpdateRequest) (dto.ProfileResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.ProfileResponse{}, errors.New("user id is required")
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProfileResponse{}, err
	}

	profile := models.Profile{
		UserID:      userID,
		DisplayName: strings.TrimSpace(s.sanitizer.Sanitize(payload.DisplayName)),
		AvatarURL:   strings.TrimSpace(payload.AvatarURL),
	}
	if profile.DisplayName == "" {
		return dto.ProfileResponse{}, errors.New("display name is required")
	}

	if err := s.repo.Upsert(ctx, &profile); err != nil {
		return dto.ProfileResponse{}, err
	}

	stored, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return dto.ProfileResponse{}, err
	}

	s.logger.Info().Str("user_id", userID).Msg("profile updated")
	return dto.NewProfileResponse(stored), nil
}
