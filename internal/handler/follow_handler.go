package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/utils"
)

// FollowHandler serves follow graph mutations and lookups.
type FollowHandler struct {
	service service.FollowService
	logger  zerolog.Logger
}

// NewFollowHandler creates a follow handler instance.
func NewFollowHandler(service service.FollowService, logger zerolog.Logger) *FollowHandler {
	return &FollowHandler{
		service: service,
		logger:  logger.With().Str("component", "follow_handler").Logger(),
	}
}

// Register binds follow routes under the provided router group.
func (h *FollowHandler) Register(router fiber.Router) {
	router.Post("/:userID", h.follow)
	router.Delete("/:userID", h.unfollow)
	router.Get("/", h.following)
}

func (h *FollowHandler) follow(c *fiber.Ctx) error {
	followeeID := strings.TrimSpace(c.Params("userID"))
	if followeeID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user id required")
	}

	if err := h.service.Follow(requestContext(c), userIDFromContext(c), followeeID); err != nil {
		if errors.Is(err, service.ErrSelfFollow) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Str("followee_id", followeeID).Msg("follow failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to follow user")
	}

	return utils.SendSuccess(c, "user followed", fiber.Map{"followee_id": followeeID})
}

func (h *FollowHandler) unfollow(c *fiber.Ctx) error {
	followeeID := strings.TrimSpace(c.Params("userID"))
	if followeeID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user id required")
	}

	if err := h.service.Unfollow(requestContext(c), userIDFromContext(c), followeeID); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("followee_id", followeeID).Msg("unfollow failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to unfollow user")
	}

	return utils.SendSuccess(c, "user unfollowed", fiber.Map{"followee_id": followeeID})
}

func (h *FollowHandler) following(c *fiber.Ctx) error {
	followees, err := h.service.Following(requestContext(c), userIDFromContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("following list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to list followed users")
	}

	return utils.SendSuccess(c, "followed users", followees)
}
