package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/models"
)

// ProfileRepository resolves account identity projections.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, userID string) (models.Profile, error)
	// FindByIDs resolves a batch of user ids in one query. Missing ids are
	// simply absent from the result map.
	FindByIDs(ctx context.Context, userIDs []string) (map[string]models.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository constructs a GORM-backed profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	var existing models.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", profile.UserID).First(&existing).Error
	if err == nil {
		existing.DisplayName = profile.DisplayName
		existing.AvatarURL = profile.AvatarURL
		return r.db.WithContext(ctx).Save(&existing).Error
	}
	return r.db.WithContext(ctx).Create(profile).Error
}

func (r *profileRepository) FindByID(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (r *profileRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	result := make(map[string]models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var profiles []models.Profile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}

	for _, profile := range profiles {
		result[profile.UserID] = profile
	}

	return result, nil
}
