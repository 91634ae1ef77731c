package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/models"
)

// FollowRepository persists directed follow edges.
type FollowRepository interface {
	// Follow creates the edge if absent; following twice is a no-op.
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowing(ctx context.Context, followerID string) ([]string, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository constructs a GORM-backed follow repository.
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Follow(ctx context.Context, followerID, followeeID string) error {
	var existing models.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	edge := models.Follow{FollowerID: followerID, FolloweeID: followeeID}
	return r.db.WithContext(ctx).Create(&edge).Error
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followeeID string) error {
	return r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{}).
		Error
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

func (r *followRepository) ListFollowing(ctx context.Context, followerID string) ([]string, error) {
	var followees []string
	if err := r.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("follower_id = ?", followerID).
		Order("created_at ASC").
		Pluck("followee_id", &followees).Error; err != nil {
		return nil, err
	}
	return followees, nil
}
