package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/utils"
)

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	service   service.ChatService
	unread    service.UnreadService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(service service.ChatService, unread service.UnreadService, validator *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service:   service,
		unread:    unread,
		validator: validator,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Post("/conversations", h.startConversation)
	router.Get("/conversations", h.listConversations)
	router.Get("/history", h.history)
	router.Post("/messages", h.send)
	router.Get("/unread", h.unreadSummary)
	router.Post("/conversations/:conversationID/read", h.markRead)
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	conversationRaw := strings.TrimSpace(conn.Query("conversation_id"))
	conversationID := parseWebsocketUint(conversationRaw)
	if conversationID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "conversation_id required"))
		_ = conn.Close()
		return
	}

	correlation := ""
	if value, ok := conn.Locals("correlation_id").(string); ok {
		correlation = value
	}
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ChatConnectionOptions{
		UserID:         userID,
		ConversationID: conversationID,
		CorrelationID:  correlation,
		Context:        baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Uint("conversation_id", conversationID).Msg("chat websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Uint("conversation_id", conversationID).Msg("chat websocket disconnected")
}

func (h *ChatHandler) startConversation(c *fiber.Ctx) error {
	var payload dto.ConversationStartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := h.service.StartConversation(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		if isValidationError(err) || errors.Is(err, service.ErrSelfConversation) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("conversation start failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to start conversation")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "conversation started", conversation)
}

func (h *ChatHandler) listConversations(c *fiber.Ctx) error {
	conversations, err := h.service.ListConversations(requestContext(c), userIDFromContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("conversation list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to list conversations")
	}

	return utils.SendSuccess(c, "conversations", conversations)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	conversationID, err := parseQueryInt(c, "conversation_id")
	if err != nil || conversationID <= 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "conversation_id required")
	}

	var beforePtr *time.Time
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		beforePtr = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.ChatHistoryQuery{
		ConversationID: uint(conversationID),
		Before:         beforePtr,
		Limit:          limit,
	}

	if err := h.validator.Struct(query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	messages, err := h.service.History(requestContext(c), query)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("chat history failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to load history")
	}

	return utils.SendSuccess(c, "chat history", messages)
}

func (h *ChatHandler) send(c *fiber.Ctx) error {
	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.Send(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		if isValidationError(err) || errors.Is(err, service.ErrEmptyMessage) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		if errors.Is(err, service.ErrChatNotParticipant) {
			return utils.SendError(c, fiber.StatusForbidden, "not a conversation participant")
		}
		if errors.Is(err, service.ErrMutationInFlight) {
			return utils.SendError(c, fiber.StatusConflict, "message send already in progress")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("message send failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to send message")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ChatHandler) unreadSummary(c *fiber.Ctx) error {
	summary := h.unread.Summary(requestContext(c), userIDFromContext(c))
	return utils.SendSuccess(c, "unread summary", summary)
}

func (h *ChatHandler) markRead(c *fiber.Ctx) error {
	conversationID, err := parseParamUint(c, "conversationID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation id")
	}

	summary, err := h.unread.MarkRead(requestContext(c), userIDFromContext(c), conversationID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("conversation_id", conversationID).Msg("mark read failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to mark conversation read")
	}

	return utils.SendSuccess(c, "conversation read", summary)
}

func websocketUserID(conn *websocket.Conn) string {
	if value := conn.Locals("user_id"); value != nil {
		if id, ok := value.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func parseWebsocketUint(raw string) uint {
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(parsed)
}
