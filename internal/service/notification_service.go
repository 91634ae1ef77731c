package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/observability"
	"github.com/pulse-social/pulse-api/internal/repository"
)

const notificationBufferSize = 16

// groupableTypes is the allow-list of notification types merged by
// (type, post) at read time. Everything else displays one unit per row. The
// asymmetry is product policy, not something derived from the type shape.
var groupableTypes = map[string]struct{}{
	models.NotificationPostLike:    {},
	models.NotificationPostComment: {},
}

// NotificationService records notifications, streams them to subscribed
// users, and groups compatible rows into display units at read time.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, recipientID string, limit, offset int) ([]dto.NotificationResponse, error)
	ListGrouped(ctx context.Context, recipientID string, limit, offset int) ([]dto.NotificationGroup, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id uint, recipientID string) (dto.NotificationResponse, error)
	Subscribe(recipientID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	profiles    repository.ProfileRepository
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	broker      *notificationBroker
	nodeID      string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, profiles repository.ProfileRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:        repo,
		profiles:    profiles,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/pulse-social/pulse-api/internal/service/notification"),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	if payload.ActorID == payload.RecipientID {
		return dto.NotificationResponse{}, errors.New("self-notifications are not recorded")
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.recipient_id", payload.RecipientID),
		attribute.String("notification.type", payload.Type),
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Notification{
		ActorID:     payload.ActorID,
		RecipientID: payload.RecipientID,
		Type:        payload.Type,
		PostID:      payload.PostID,
		CommentID:   payload.CommentID,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.broadcast(response)
	if err := s.publish(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification event")
	}

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, recipientID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, errors.New("recipient id is required")
	}

	notifications, err := s.repo.ListByRecipient(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

// ListGrouped merges raw rows into display units. Likes and comments on the
// same post collapse into one unit; every other type stays one unit per row.
func (s *notificationService) ListGrouped(ctx context.Context, recipientID string, limit, offset int) ([]dto.NotificationGroup, error) {
	raw, err := s.List(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(raw))
	groups := make(map[string]*dto.NotificationGroup, len(raw))

	for _, item := range raw {
		key := groupKey(item)
		group, exists := groups[key]
		if !exists {
			group = &dto.NotificationGroup{
				Key:       key,
				Type:      item.Type,
				PostID:    item.PostID,
				CommentID: item.CommentID,
				Read:      true,
				LatestAt:  item.CreatedAt,
			}
			groups[key] = group
			order = append(order, key)
		}

		if !item.Read {
			group.Read = false
		}
		if item.CreatedAt.After(group.LatestAt) {
			group.LatestAt = item.CreatedAt
		}
	}

	// The page lists newest first; named actors are the earliest, so each
	// group's actor list is collected oldest first.
	for i := len(raw) - 1; i >= 0; i-- {
		item := raw[i]
		group := groups[groupKey(item)]
		if !containsString(group.ActorIDs, item.ActorID) {
			group.ActorIDs = append(group.ActorIDs, item.ActorID)
		}
	}

	names := s.resolveActorNames(ctx, groups)

	result := make([]dto.NotificationGroup, 0, len(order))
	for _, key := range order {
		group := groups[key]
		group.ActorCount = len(group.ActorIDs)
		group.Summary = groupSummary(*group, names)
		result = append(result, *group)
	}

	return result, nil
}

// UnreadCount backs the notification badge: raw unread rows, not display
// units, so the badge never undercounts a partially read group.
func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	if strings.TrimSpace(recipientID) == "" {
		return 0, errors.New("recipient id is required")
	}
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, recipientID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.recipient_id", recipientID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, recipientID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) Subscribe(recipientID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(recipientID, channel)
	observability.SubscribersActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(recipientID, channel)
		observability.SubscribersActive().Dec()
	}

	return channel, cleanup
}

func (s *notificationService) resolveActorNames(ctx context.Context, groups map[string]*dto.NotificationGroup) map[string]string {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, actorID := range group.ActorIDs {
			if _, ok := seen[actorID]; !ok {
				seen[actorID] = struct{}{}
				ids = append(ids, actorID)
			}
		}
	}

	names := make(map[string]string, len(ids))
	if s.profiles == nil {
		return names
	}
	profiles, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("actor name lookup failed, falling back to ids")
		return names
	}
	for id, profile := range profiles {
		names[id] = profile.DisplayName
	}
	return names
}

func (s *notificationService) broadcast(notification dto.NotificationResponse) {
	s.broker.broadcast(notification.RecipientID, notification)
}

func (s *notificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "pulse-notifications", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *notificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	observability.NotificationsPublishedTotal().WithLabelValues(event.Notification.Type).Inc()
	s.broadcast(event.Notification)
}

// groupKey yields (type, post) for groupable types and (type, row id) for
// everything else, so non-groupable types can never merge.
func groupKey(item dto.NotificationResponse) string {
	if _, ok := groupableTypes[item.Type]; ok && item.PostID != nil {
		return fmt.Sprintf("%s:post:%d", item.Type, *item.PostID)
	}
	return fmt.Sprintf("%s:id:%d", item.Type, item.ID)
}

func groupSummary(group dto.NotificationGroup, names map[string]string) string {
	verb := notificationVerb(group.Type)

	display := func(id string) string {
		if name, ok := names[id]; ok && name != "" {
			return name
		}
		return id
	}

	switch len(group.ActorIDs) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("<b>%s</b> %s", display(group.ActorIDs[0]), verb)
	case 2:
		return fmt.Sprintf("<b>%s</b> and <b>%s</b> %s", display(group.ActorIDs[0]), display(group.ActorIDs[1]), verb)
	default:
		return fmt.Sprintf("<b>%s</b>, <b>%s</b>, and <b>%d</b> others %s",
			display(group.ActorIDs[0]), display(group.ActorIDs[1]), len(group.ActorIDs)-2, verb)
	}
}

func notificationVerb(notificationType string) string {
	switch notificationType {
	case models.NotificationPostLike:
		return "liked your post"
	case models.NotificationPostComment:
		return "commented on your post"
	case models.NotificationCommentReply:
		return "replied to your comment"
	case models.NotificationMention:
		return "mentioned you in a reply"
	case models.NotificationFollow:
		return "started following you"
	default:
		return "sent you a notification"
	}
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func (b *notificationBroker) subscribe(recipientID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[recipientID]; !exists {
		b.subscribers[recipientID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[recipientID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(recipientID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[recipientID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, recipientID)
		}
	}
}

func (b *notificationBroker) broadcast(recipientID string, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[recipientID]
	for ch := range subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
}
