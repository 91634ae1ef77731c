package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/utils"
)

// PostHandler serves post creation, reads and like toggles.
type PostHandler struct {
	service   service.PostService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPostHandler creates a post handler instance.
func NewPostHandler(service service.PostService, validator *validator.Validate, logger zerolog.Logger) *PostHandler {
	return &PostHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "post_handler").Logger(),
	}
}

// Register binds post routes under the provided router group.
func (h *PostHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Get("/:postID", h.get)
	router.Post("/:postID/view", h.view)
	router.Post("/:postID/like", h.like)
}

func (h *PostHandler) create(c *fiber.Ctx) error {
	var payload dto.PostCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	post, err := h.service.Create(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("post create failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to create post")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "post created", post)
}

func (h *PostHandler) get(c *fiber.Ctx) error {
	postID, err := parseParamUint(c, "postID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid post id")
	}

	post, err := h.service.Get(requestContext(c), postID, userIDFromContext(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "post not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("post_id", postID).Msg("post lookup failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to load post")
	}

	return utils.SendSuccess(c, "post", post)
}

func (h *PostHandler) view(c *fiber.Ctx) error {
	postID, err := parseParamUint(c, "postID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid post id")
	}

	if err := h.service.RecordView(requestContext(c), postID); err != nil {
		requestLogger(h.logger, c).Warn().Err(err).Uint("post_id", postID).Msg("view increment failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to record view")
	}

	return utils.SendSuccess(c, "view recorded", fiber.Map{"post_id": postID})
}

func (h *PostHandler) like(c *fiber.Ctx) error {
	postID, err := parseParamUint(c, "postID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid post id")
	}

	result, err := h.service.ToggleLike(requestContext(c), postID, userIDFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrMutationInFlight) {
			return utils.SendError(c, fiber.StatusConflict, "like already in progress")
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "post not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("post_id", postID).Msg("like toggle failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to toggle like")
	}

	return utils.SendSuccess(c, "like toggled", result)
}
