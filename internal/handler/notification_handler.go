package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/utils"
)

// NotificationHandler serves the notification inbox and live stream.
type NotificationHandler struct {
	service   service.NotificationService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewNotificationHandler creates a notification handler instance.
func NewNotificationHandler(service service.NotificationService, validator *validator.Validate, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds notification routes under the provided router group.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.stream))
	router.Get("/", h.list)
	router.Get("/grouped", h.grouped)
	router.Get("/badge", h.badge)
	router.Post("/:notificationID/read", h.markRead)
}

func (h *NotificationHandler) badge(c *fiber.Ctx) error {
	total, err := h.service.UnreadCount(requestContext(c), userIDFromContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("notification badge failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to count unread notifications")
	}

	return utils.SendSuccess(c, "unread notifications", fiber.Map{"unread": total})
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(requestContext(c), userIDFromContext(c), limit, offset)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("notification list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to list notifications")
	}

	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) grouped(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	groups, err := h.service.ListGrouped(requestContext(c), userIDFromContext(c), limit, offset)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("grouped notification list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to group notifications")
	}

	return utils.SendSuccess(c, "notification groups", groups)
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	notificationID, err := parseParamUint(c, "notificationID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkRead(requestContext(c), notificationID, userIDFromContext(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "notification not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("notification_id", notificationID).Msg("mark read failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to mark notification read")
	}

	return utils.SendSuccess(c, "notification read", notification)
}

func (h *NotificationHandler) stream(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	events, cancel := h.service.Subscribe(userID)
	defer cancel()

	h.logger.Info().Str("user_id", userID).Msg("notification stream connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Info().Str("user_id", userID).Msg("notification stream disconnected")
			return
		case notification, ok := <-events:
			if !ok {
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(notification); err != nil {
				h.logger.Warn().Err(err).Str("user_id", userID).Msg("notification stream write failed")
				_ = conn.Close()
				return
			}
		}
	}
}
