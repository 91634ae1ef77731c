package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/utils"
)

// ProfileHandler serves the caller's identity projection.
type ProfileHandler struct {
	service service.ProfileService
	logger  zerolog.Logger
}

// NewProfileHandler creates a profile handler instance.
func NewProfileHandler(service service.ProfileService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		logger:  logger.With().Str("component", "profile_handler").Logger(),
	}
}

// Register binds profile routes under the provided router group.
func (h *ProfileHandler) Register(router fiber.Router) {
	router.Get("/", h.get)
	router.Put("/", h.update)
}

func (h *ProfileHandler) get(c *fiber.Ctx) error {
	profile, err := h.service.Get(requestContext(c), userIDFromContext(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "profile not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("profile lookup failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to load profile")
	}

	return utils.SendSuccess(c, "profile", profile)
}

func (h *ProfileHandler) update(c *fiber.Ctx) error {
	var payload dto.ProfileUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	profile, err := h.service.Update(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("profile update failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to update profile")
	}

	return utils.SendSuccess(c, "profile updated", profile)
}
