package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/observability"
	"github.com/pulse-social/pulse-api/internal/repository"
)

// UnreadService computes per-conversation unread counts and the global badge
// for a user. Every trigger (initial load, message insert, own marker update)
// runs a full recomputation across all of the user's conversations; the
// conversation count per user is assumed small enough that incremental
// patching is not worth the consistency risk.
type UnreadService interface {
	Summary(ctx context.Context, userID string) dto.UnreadSummary
	ConversationUnread(ctx context.Context, userID string, conversationID uint) int64
	MarkRead(ctx context.Context, userID string, conversationID uint) (dto.UnreadSummary, error)
}

type unreadService struct {
	repo   repository.ChatRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewUnreadService constructs the unread aggregator.
func NewUnreadService(repo repository.ChatRepository, logger zerolog.Logger) UnreadService {
	return &unreadService{
		repo:   repo,
		logger: logger.With().Str("component", "unread_service").Logger(),
		now:    time.Now,
	}
}

// Summary recomputes unread counts for every conversation the user takes part
// in. Fetch failures degrade to zero counts so the badge renders.
func (s *unreadService) Summary(ctx context.Context, userID string) dto.UnreadSummary {
	observability.UnreadRecomputeTotal().Inc()

	summary := dto.UnreadSummary{Conversations: make(map[uint]int64)}

	conversations, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("conversation list failed, unread degraded to zero")
		return summary
	}

	for _, conversation := range conversations {
		count := s.ConversationUnread(ctx, userID, conversation.ID)
		summary.Conversations[conversation.ID] = count
		if count > 0 {
			summary.Badge++
		}
	}

	return summary
}

// ConversationUnread counts messages from the other participant newer than
// the user's last-read marker. A conversation whose most recent message was
// sent by the user themself always reads as zero, regardless of the marker.
func (s *unreadService) ConversationUnread(ctx context.Context, userID string, conversationID uint) int64 {
	latest, err := s.repo.LatestMessage(ctx, conversationID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0
	case err != nil:
		s.logger.Warn().Err(err).Uint("conversation_id", conversationID).Msg("latest message fetch failed")
		return 0
	}

	if latest.SenderID == userID {
		return 0
	}

	lastRead := time.Time{}
	marker, err := s.repo.GetMarker(ctx, userID, conversationID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no marker row means never read: epoch
	case err != nil:
		s.logger.Warn().Err(err).Uint("conversation_id", conversationID).Msg("read marker fetch failed")
	default:
		lastRead = marker.LastReadAt
	}

	count, err := s.repo.CountMessagesAfter(ctx, conversationID, userID, lastRead)
	if err != nil {
		s.logger.Warn().Err(err).Uint("conversation_id", conversationID).Msg("unread count failed")
		return 0
	}

	return count
}

// MarkRead upserts the user's marker to now, then recomputes the whole
// summary rather than patching a single conversation.
func (s *unreadService) MarkRead(ctx context.Context, userID string, conversationID uint) (dto.UnreadSummary, error) {
	if err := s.repo.UpsertMarker(ctx, userID, conversationID, s.now()); err != nil {
		return dto.UnreadSummary{}, err
	}

	return s.Summary(ctx, userID), nil
}
