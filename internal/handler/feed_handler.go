package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/utils"
)

// FeedHandler serves the ranked home feed.
type FeedHandler struct {
	service   service.FeedService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewFeedHandler creates a feed handler instance.
func NewFeedHandler(service service.FeedService, validator *validator.Validate, logger zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "feed_handler").Logger(),
	}
}

// Register binds feed routes under the provided router group.
func (h *FeedHandler) Register(router fiber.Router) {
	router.Get("/", h.page)
	router.Post("/suppress/:postID", h.suppress)
}

func (h *FeedHandler) page(c *fiber.Ctx) error {
	tab := strings.TrimSpace(c.Query("tab"))
	if tab == "" {
		tab = "top"
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	req := dto.FeedRequest{Tab: tab, Limit: limit, Offset: offset}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	page, err := h.service.Page(requestContext(c), userIDFromContext(c), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("tab", tab).Msg("feed page failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to build feed")
	}

	return utils.SendSuccess(c, "feed page", page)
}

func (h *FeedHandler) suppress(c *fiber.Ctx) error {
	postID, err := parseParamUint(c, "postID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid post id")
	}

	if err := h.service.Suppress(requestContext(c), userIDFromContext(c), postID); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Uint("post_id", postID).Msg("suppress failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to suppress post")
	}

	return utils.SendSuccess(c, "post suppressed", fiber.Map{"post_id": postID})
}
