package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
)

func newChatFixture(t *testing.T) (*chatService, *gorm.DB) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db := newTestDB(t)
	repo := repository.NewChatRepository(db)
	unread := NewUnreadService(repo, testLogger())

	svc, ok := NewChatService(repo, unread, redisClient, "pulse", time.Minute, nil, validator.New(validator.WithRequiredStructEnabled()), testLogger()).(*chatService)
	require.True(t, ok)

	return svc, db
}

func TestStartConversationRejectsSelf(t *testing.T) {
	svc, _ := newChatFixture(t)

	_, err := svc.StartConversation(context.Background(), "alice", dto.ConversationStartRequest{RecipientID: "alice"})
	require.ErrorIs(t, err, ErrSelfConversation)
}

func TestSendRequiresParticipant(t *testing.T) {
	svc, db := newChatFixture(t)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	_, err := svc.Send(context.Background(), "mallory", dto.MessageSendRequest{
		ConversationID: conversation.ID,
		Body:           "hi",
	})
	require.ErrorIs(t, err, ErrChatNotParticipant)

	_, err = svc.Send(context.Background(), "mallory", dto.MessageSendRequest{
		ConversationID: 999,
		Body:           "hi",
	})
	require.ErrorIs(t, err, ErrChatNotParticipant)
}

func TestSendRequiresBodyOrImage(t *testing.T) {
	svc, db := newChatFixture(t)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	_, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ConversationID: conversation.ID,
		Body:           "   ",
	})
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendPersistsAndCachesLastMessage(t *testing.T) {
	svc, db := newChatFixture(t)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	ctx := context.Background()
	sent, err := svc.Send(ctx, "alice", dto.MessageSendRequest{
		ConversationID: conversation.ID,
		Body:           "hello bob",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", sent.SenderID)
	require.Equal(t, "hello bob", sent.Body)

	var stored models.Message
	require.NoError(t, db.First(&stored, sent.ID).Error)
	require.Equal(t, conversation.ID, stored.ConversationID)

	cached := svc.fetchLastMessage(ctx, conversation.ID)
	require.NotNil(t, cached)
	require.Equal(t, sent.ID, cached.ID)
}

func TestSendSanitizesMarkup(t *testing.T) {
	svc, db := newChatFixture(t)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	sent, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ConversationID: conversation.ID,
		Body:           `look <script>alert("x")</script>here`,
	})
	require.NoError(t, err)
	require.NotContains(t, sent.Body, "<script>")
}

func TestListConversationsAttachesUnreadCounts(t *testing.T) {
	svc, db := newChatFixture(t)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	ctx := context.Background()
	_, err := svc.Send(ctx, "alice", dto.MessageSendRequest{ConversationID: conversation.ID, Body: "one"})
	require.NoError(t, err)
	_, err = svc.Send(ctx, "alice", dto.MessageSendRequest{ConversationID: conversation.ID, Body: "two"})
	require.NoError(t, err)

	forBob, err := svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	require.EqualValues(t, 2, forBob[0].UnreadCount)

	forAlice, err := svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	require.EqualValues(t, 0, forAlice[0].UnreadCount)
}

func TestHistoryPagesBackwards(t *testing.T) {
	svc, db := newChatFixture(t)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&models.Message{
			ConversationID: conversation.ID,
			SenderID:       "alice",
			Body:           "msg",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	ctx := context.Background()
	latest, err := svc.History(ctx, dto.ChatHistoryQuery{ConversationID: conversation.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	// chronological ascending within the page
	require.True(t, latest[0].CreatedAt.Before(latest[1].CreatedAt))
	require.True(t, latest[1].CreatedAt.Equal(base.Add(4*time.Minute)))

	before := latest[0].CreatedAt
	older, err := svc.History(ctx, dto.ChatHistoryQuery{ConversationID: conversation.ID, Before: &before, Limit: 2})
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.True(t, older[1].CreatedAt.Before(before))
}

type blockingChatRepo struct {
	repository.ChatRepository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingChatRepo) SaveMessage(ctx context.Context, message *models.Message) error {
	r.entered <- struct{}{}
	<-r.release
	return r.ChatRepository.SaveMessage(ctx, message)
}

func TestSendRejectsConcurrentDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := &blockingChatRepo{
		ChatRepository: repository.NewChatRepository(db),
		entered:        make(chan struct{}, 4),
		release:        make(chan struct{}),
	}
	svc, ok := NewChatService(repo, NewUnreadService(repo, testLogger()), nil, "", 0, nil, validator.New(validator.WithRequiredStructEnabled()), testLogger()).(*chatService)
	require.True(t, ok)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)
	payload := dto.MessageSendRequest{ConversationID: conversation.ID, Body: "same message"}

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Send(context.Background(), "alice", payload)
		firstDone <- err
	}()
	<-repo.entered

	_, err := svc.Send(context.Background(), "alice", payload)
	require.ErrorIs(t, err, ErrMutationInFlight)

	close(repo.release)
	require.NoError(t, <-firstDone)

	var total int64
	require.NoError(t, db.Model(&models.Message{}).Where("sender_id = ?", "alice").Count(&total).Error)
	require.EqualValues(t, 1, total)
}

func TestCachedLastMessageHonorsConfiguredTTL(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	db := newTestDB(t)
	repo := repository.NewChatRepository(db)
	svc, ok := NewChatService(repo, NewUnreadService(repo, testLogger()), redisClient, "pulse", 5*time.Minute, nil, validator.New(validator.WithRequiredStructEnabled()), testLogger()).(*chatService)
	require.True(t, ok)

	conversation := models.Conversation{StarterID: "alice", RecipientID: "bob"}
	require.NoError(t, db.Create(&conversation).Error)

	sent, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		ConversationID: conversation.ID,
		Body:           "hello",
	})
	require.NoError(t, err)
	require.NotZero(t, sent.ID)

	key := fmt.Sprintf("pulse:chat:last:%d", conversation.ID)
	require.True(t, mini.Exists(key))
	require.Equal(t, 5*time.Minute, mini.TTL(key))
}
