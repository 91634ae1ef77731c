package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
)

// ErrSelfFollow is returned when a user attempts to follow themselves.
var ErrSelfFollow = errors.New("cannot follow yourself")

// FollowService manages the directed follow graph.
type FollowService interface {
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	Following(ctx context.Context, userID string) ([]string, error)
}

type followService struct {
	repo          repository.FollowRepository
	notifications NotificationPublisher
	logger        zerolog.Logger
}

// NewFollowService constructs a follow service.
func NewFollowService(repo repository.FollowRepository, notifications NotificationPublisher, logger zerolog.Logger) FollowService {
	return &followService{
		repo:          repo,
		notifications: notifications,
		logger:        logger.With().Str("component", "follow_service").Logger(),
	}
}

func (s *followService) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}

	already, err := s.repo.IsFollowing(ctx, followerID, followeeID)
	if err != nil {
		return err
	}

	if err := s.repo.Follow(ctx, followerID, followeeID); err != nil {
		return err
	}

	// Only a fresh edge notifies; re-following is silent.
	if !already && s.notifications != nil {
		payload := dto.NotificationCreateRequest{
			ActorID:     followerID,
			RecipientID: followeeID,
			Type:        models.NotificationFollow,
		}
		if _, err := s.notifications.Publish(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("followee_id", followeeID).Msg("failed to publish follow notification")
		}
	}

	return nil
}

func (s *followService) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return s.repo.Unfollow(ctx, followerID, followeeID)
}

func (s *followService) Following(ctx context.Context, userID string) ([]string, error) {
	return s.repo.ListFollowing(ctx, userID)
}
