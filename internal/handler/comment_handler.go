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

// CommentHandler serves comment threads, replies and thread summaries.
type CommentHandler struct {
	service   service.ThreadService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewCommentHandler creates a comment handler instance.
func NewCommentHandler(service service.ThreadService, validator *validator.Validate, logger zerolog.Logger) *CommentHandler {
	return &CommentHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "comment_handler").Logger(),
	}
}

// Register binds comment routes under the provided router group.
func (h *CommentHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Post("/reply", h.reply)
	router.Get("/thread/:rootID", h.thread)
	router.Get("/summaries/:postID", h.summaries)
}

func (h *CommentHandler) create(c *fiber.Ctx) error {
	var payload dto.CommentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	comment, err := h.service.CreateComment(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "post not found")
		}
		if errors.Is(err, service.ErrMutationInFlight) {
			return utils.SendError(c, fiber.StatusConflict, "comment already in progress")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("comment create failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to create comment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "comment created", comment)
}

func (h *CommentHandler) reply(c *fiber.Ctx) error {
	var payload dto.ReplyCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	entry, err := h.service.AddReply(requestContext(c), userIDFromContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		if errors.Is(err, service.ErrParentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "parent comment not found")
		}
		if errors.Is(err, service.ErrMutationInFlight) {
			return utils.SendError(c, fiber.StatusConflict, "reply already in progress")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("reply create failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "unable to create reply")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "reply created", entry)
}

func (h *CommentHandler) thread(c *fiber.Ctx) error {
	rootID, err := parseParamUint(c, "rootID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid root id")
	}

	thread := h.service.BuildThread(requestContext(c), rootID)
	return utils.SendSuccess(c, "comment thread", thread)
}

func (h *CommentHandler) summaries(c *fiber.Ctx) error {
	postID, err := parseParamUint(c, "postID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid post id")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	summaries := h.service.Summaries(requestContext(c), userIDFromContext(c), postID, limit, offset)
	return utils.SendSuccess(c, "thread summaries", summaries)
}
