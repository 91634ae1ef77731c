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
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/middleware"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/observability"
	"github.com/pulse-social/pulse-api/internal/repository"
)

const (
	chatDefaultCacheTTL = 10 * time.Minute
	chatSendBufferSize  = 32
)

// ErrChatNotParticipant indicates the sender is not part of the conversation.
var (
	ErrChatNotParticipant = errors.New("sender is not a conversation participant")
	ErrSelfConversation   = errors.New("cannot start a conversation with yourself")
	ErrEmptyMessage       = errors.New("message requires text or an image")
)

// ChatConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ChatConnectionOptions struct {
	UserID         string
	ConversationID uint
	CorrelationID  string
	Context        context.Context
}

// ChatService manages conversations, websocket connections and message
// delivery across nodes.
type ChatService interface {
	StartConversation(ctx context.Context, starterID string, payload dto.ConversationStartRequest) (dto.ConversationResponse, error)
	ListConversations(ctx context.Context, userID string) ([]dto.ConversationResponse, error)
	History(ctx context.Context, query dto.ChatHistoryQuery) ([]dto.MessageResponse, error)
	Send(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions)
	Start(ctx context.Context)
}

type chatService struct {
	repo        repository.ChatRepository
	unread      UnreadService
	redis       *redis.Client
	redisStream string
	redisCache  string
	cacheTTL    time.Duration
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	guard       *InflightGuard
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	hub         *chatHub
	nodeID      string
}

// chatHub keeps track of active websocket clients per conversation.
type chatHub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*chatClient]struct{}
	log   zerolog.Logger
}

type chatClient struct {
	conn    *websocket.Conn
	send    chan dto.MessageResponse
	options ChatConnectionOptions
	service *chatService
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context
}

type chatEvent struct {
	Source  string              `json:"source"`
	Message dto.MessageResponse `json:"message"`
	SentAt  time.Time           `json:"sent_at"`
}

// NewChatService creates a chat service instance. cacheTTL bounds how long
// the last message of a conversation stays cached for replay on connect.
func NewChatService(repo repository.ChatRepository, unread UnreadService, redisClient *redis.Client, channelBase string, cacheTTL time.Duration, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	hub := &chatHub{
		rooms: make(map[uint]map[*chatClient]struct{}),
		log:   logger.With().Str("component", "chat_hub").Logger(),
	}

	streamChannel := ""
	cachePrefix := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":chat"
		cachePrefix = channelBase + ":chat:last"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".chat"
	}

	if cacheTTL <= 0 {
		cacheTTL = chatDefaultCacheTTL
	}

	return &chatService{
		repo:        repo,
		unread:      unread,
		redis:       redisClient,
		redisStream: streamChannel,
		redisCache:  cachePrefix,
		cacheTTL:    cacheTTL,
		nats:        natsConn,
		natsSubject: natsSubject,
		validator:   validate,
		guard:       NewInflightGuard(),
		logger:      logger.With().Str("component", "chat_service").Logger(),
		tracer:      otel.Tracer("github.com/pulse-social/pulse-api/internal/service/chat"),
		sanitizer:   sanitizer,
		hub:         hub,
		nodeID:      uuid.NewString(),
	}
}

func (s *chatService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *chatService) StartConversation(ctx context.Context, starterID string, payload dto.ConversationStartRequest) (dto.ConversationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ConversationResponse{}, err
	}
	if payload.RecipientID == starterID {
		return dto.ConversationResponse{}, ErrSelfConversation
	}

	conversation := models.Conversation{
		StarterID:   starterID,
		RecipientID: payload.RecipientID,
	}
	if err := s.repo.CreateConversation(ctx, &conversation); err != nil {
		return dto.ConversationResponse{}, err
	}

	return dto.ConversationResponse{
		ID:          conversation.ID,
		StarterID:   conversation.StarterID,
		RecipientID: conversation.RecipientID,
		UpdatedAt:   conversation.UpdatedAt,
	}, nil
}

func (s *chatService) ListConversations(ctx context.Context, userID string) ([]dto.ConversationResponse, error) {
	conversations, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	var summary dto.UnreadSummary
	if s.unread != nil {
		summary = s.unread.Summary(ctx, userID)
	}

	out := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		response := dto.ConversationResponse{
			ID:          conversation.ID,
			StarterID:   conversation.StarterID,
			RecipientID: conversation.RecipientID,
			UpdatedAt:   conversation.UpdatedAt,
		}
		if summary.Conversations != nil {
			response.UnreadCount = summary.Conversations[conversation.ID]
		}
		out = append(out, response)
	}

	return out, nil
}

func (s *chatService) History(ctx context.Context, query dto.ChatHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.repo.ListMessages(ctx, query.ConversationID, before, query.Limit)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

// Send validates, authorizes and persists a message, then fans it out to the
// local hub and to peer nodes.
func (s *chatService) Send(ctx context.Context, senderID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	conversation, err := s.repo.FindConversation(ctx, payload.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, ErrChatNotParticipant
		}
		return dto.MessageResponse{}, err
	}
	if conversation.StarterID != senderID && conversation.RecipientID != senderID {
		return dto.MessageResponse{}, ErrChatNotParticipant
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	if clean == "" && payload.ImageURL == "" {
		return dto.MessageResponse{}, ErrEmptyMessage
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.Int("chat.conversation_id", int(payload.ConversationID)),
		attribute.String("chat.sender_id", senderID),
	))
	defer span.End()

	model := models.Message{
		ConversationID: payload.ConversationID,
		SenderID:       senderID,
		Body:           clean,
		ImageURL:       payload.ImageURL,
	}

	// One send per (conversation, sender) at a time guards against double
	// submits from a stuttering client.
	key := fmt.Sprintf("chat:%d:%s", payload.ConversationID, senderID)
	if err := s.guard.Do(key, Mutation{
		Commit: func() error {
			return s.repo.SaveMessage(spanCtx, &model)
		},
	}); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(model)
	s.cacheLastMessage(spanCtx, response)
	s.hub.broadcast(response.ConversationID, response)
	if err := s.publish(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish chat event")
	}

	observability.ChatMessagesSent().Inc()

	return response, nil
}

func (s *chatService) ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &chatClient{
		conn:    conn,
		send:    make(chan dto.MessageResponse, chatSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	s.hub.register(client)
	observability.ChatConnectionsTotal().Inc()

	if last := s.fetchLastMessage(baseCtx, opts.ConversationID); last != nil {
		select {
		case client.send <- *last:
		default:
			s.logger.Debug().Uint("conversation_id", opts.ConversationID).Msg("dropping cached chat message due to slow consumer")
		}
	}

	go client.writer()
	client.reader()
}

func (s *chatService) cacheLastMessage(ctx context.Context, message dto.MessageResponse) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal chat message for cache")
		return
	}

	key := fmt.Sprintf("%s:%d", s.redisCache, message.ConversationID)
	if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache chat message")
	}
}

func (s *chatService) fetchLastMessage(ctx context.Context, conversationID uint) *dto.MessageResponse {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%d", s.redisCache, conversationID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var message dto.MessageResponse
	if err := json.Unmarshal([]byte(result), &message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached chat message")
		return nil
	}

	return &message
}

func (s *chatService) publish(ctx context.Context, message dto.MessageResponse) error {
	event := chatEvent{
		Source:  s.nodeID,
		Message: message,
		SentAt:  time.Now().UTC(),
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

func (s *chatService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("chat redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *chatService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "pulse-chat", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats chat subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
		}
	}()
}

func (s *chatService) handleEvent(data []byte) {
	var event chatEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid chat event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	observability.ChatMessagesSent().Inc()
	s.hub.broadcast(event.Message.ConversationID, event.Message)
}

func (h *chatHub) register(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.ConversationID
	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[*chatClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
	h.log.Debug().Uint("conversation_id", room).Str("user_id", client.options.UserID).Msg("chat client connected")
}

func (h *chatHub) unregister(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := client.options.ConversationID
	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	h.log.Debug().Uint("conversation_id", room).Str("user_id", client.options.UserID).Msg("chat client disconnected")
}

func (h *chatHub) broadcast(conversationID uint, message dto.MessageResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.rooms[conversationID]
	for client := range clients {
		select {
		case client.send <- message:
		default:
			h.log.Warn().Uint("conversation_id", conversationID).Str("user_id", client.options.UserID).Msg("dropping chat message for slow client")
		}
	}
}

func (c *chatClient) reader() {
	defer c.close()

	connCtx := c.baseCtx
	if connCtx == nil {
		connCtx = context.Background()
	}
	correlation := c.options.CorrelationID
	if correlation == "" {
		correlation = middleware.CorrelationIDFromContext(connCtx)
	}
	connCtx = middleware.ContextWithCorrelation(connCtx, correlation)

	for {
		var payload dto.MessageSendRequest
		if err := c.conn.ReadJSON(&payload); err != nil {
			c.service.logger.Debug().Err(err).Msg("chat read loop ended")
			return
		}

		if payload.ConversationID == 0 {
			payload.ConversationID = c.options.ConversationID
		}

		// the hub broadcast echoes the stored message back to this client,
		// so no separate ack is queued here
		if _, err := c.service.Send(connCtx, c.options.UserID, payload); err != nil {
			c.service.logger.Warn().Err(err).Msg("failed to process chat message")
		}
	}
}

func (c *chatClient) writer() {
	defer c.close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}
