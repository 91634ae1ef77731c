package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/models"
)

// LikeRepository manages per-user like state on posts.
type LikeRepository interface {
	// Toggle flips the user's like flag for a post, creating the row on first
	// use. It returns the resulting liked state.
	Toggle(ctx context.Context, postID uint, userID string) (bool, error)
	Get(ctx context.Context, postID uint, userID string) (models.Like, error)
	CountByPost(ctx context.Context, postID uint) (int64, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository constructs a GORM-backed like repository.
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) Toggle(ctx context.Context, postID uint, userID string) (bool, error) {
	var state bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var like models.Like
		err := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&like).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			like = models.Like{PostID: postID, UserID: userID, Liked: true}
			if err := tx.Create(&like).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			like.Liked = !like.Liked
			if err := tx.Save(&like).Error; err != nil {
				return err
			}
		}
		state = like.Liked
		return nil
	})
	if err != nil {
		return false, err
	}
	return state, nil
}

func (r *likeRepository) Get(ctx context.Context, postID uint, userID string) (models.Like, error) {
	var like models.Like
	if err := r.db.WithContext(ctx).Where("post_id = ? AND user_id = ?", postID, userID).First(&like).Error; err != nil {
		return models.Like{}, err
	}
	return like, nil
}

func (r *likeRepository) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("post_id = ? AND liked = ?", postID, true).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
