package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/models"
)

// ChatRepository persists conversations, messages and per-user read markers.
type ChatRepository interface {
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	FindConversation(ctx context.Context, id uint) (models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)

	SaveMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, conversationID uint, before time.Time, limit int) ([]models.Message, error)
	LatestMessage(ctx context.Context, conversationID uint) (models.Message, error)
	CountMessagesAfter(ctx context.Context, conversationID uint, excludeSenderID string, after time.Time) (int64, error)

	GetMarker(ctx context.Context, userID string, conversationID uint) (models.ReadMarker, error)
	UpsertMarker(ctx context.Context, userID string, conversationID uint, readAt time.Time) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a GORM-backed chat repository.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *chatRepository) FindConversation(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).First(&conversation, id).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *chatRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := r.db.WithContext(ctx).
		Where("starter_id = ? OR recipient_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *chatRepository) SaveMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			UpdateColumn("updated_at", message.CreatedAt).
			Error
	})
}

func (r *chatRepository) ListMessages(ctx context.Context, conversationID uint, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) LatestMessage(ctx context.Context, conversationID uint) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&message).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *chatRepository) CountMessagesAfter(ctx context.Context, conversationID uint, excludeSenderID string, after time.Time) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND created_at > ?", conversationID, excludeSenderID, after).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *chatRepository) GetMarker(ctx context.Context, userID string, conversationID uint) (models.ReadMarker, error) {
	var marker models.ReadMarker
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		First(&marker).Error; err != nil {
		return models.ReadMarker{}, err
	}
	return marker, nil
}

func (r *chatRepository) UpsertMarker(ctx context.Context, userID string, conversationID uint, readAt time.Time) error {
	var marker models.ReadMarker
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		First(&marker).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		marker = models.ReadMarker{UserID: userID, ConversationID: conversationID, LastReadAt: readAt}
		return r.db.WithContext(ctx).Create(&marker).Error
	case err != nil:
		return err
	default:
		marker.LastReadAt = readAt
		return r.db.WithContext(ctx).Save(&marker).Error
	}
}
