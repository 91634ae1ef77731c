package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/models"
)

// EngagementCounts aggregates derived counters for a post. Views live on the
// post row itself; likes and comments are counted from related rows.
type EngagementCounts struct {
	Likes    int64
	Comments int64
}

// PostRepository persists feed content items.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id uint) (models.Post, error)
	ListRecentPublic(ctx context.Context, limit, offset int) ([]models.Post, error)
	ListByAuthors(ctx context.Context, authorIDs []string, limit, offset int) ([]models.Post, error)
	IncrementViews(ctx context.Context, id uint) error
	Engagement(ctx context.Context, postIDs []uint) (map[uint]EngagementCounts, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository constructs a GORM-backed post repository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) FindByID(ctx context.Context, id uint) (models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func (r *postRepository) ListRecentPublic(ctx context.Context, limit, offset int) ([]models.Post, error) {
	limit, offset = clampPage(limit, offset, 20)

	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Where("public = ?", true).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) ListByAuthors(ctx context.Context, authorIDs []string, limit, offset int) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return []models.Post{}, nil
	}
	limit, offset = clampPage(limit, offset, 20)

	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Where("public = ? AND author_id IN ?", true, authorIDs).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *postRepository) IncrementViews(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).
		Error
}

func (r *postRepository) Engagement(ctx context.Context, postIDs []uint) (map[uint]EngagementCounts, error) {
	counts := make(map[uint]EngagementCounts, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	type row struct {
		PostID uint
		Total  int64
	}

	var likeRows []row
	if err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ? AND liked = ?", postIDs, true).
		Group("post_id").
		Scan(&likeRows).Error; err != nil {
		return nil, err
	}
	for _, entry := range likeRows {
		current := counts[entry.PostID]
		current.Likes = entry.Total
		counts[entry.PostID] = current
	}

	var commentRows []row
	if err := r.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&commentRows).Error; err != nil {
		return nil, err
	}
	for _, entry := range commentRows {
		current := counts[entry.PostID]
		current.Comments = entry.Total
		counts[entry.PostID] = current
	}

	return counts, nil
}

func clampPage(limit, offset, fallback int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
