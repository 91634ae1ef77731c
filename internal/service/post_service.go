package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
)

// PostService exposes post publishing and engagement use-cases.
type PostService interface {
	Create(ctx context.Context, authorID string, payload dto.PostCreateRequest) (dto.PostResponse, error)
	Get(ctx context.Context, id uint, viewerID string) (dto.PostResponse, error)
	RecordView(ctx context.Context, id uint) error
	ToggleLike(ctx context.Context, postID uint, userID string) (dto.LikeToggleResponse, error)
}

type postService struct {
	posts         repository.PostRepository
	likes         repository.LikeRepository
	notifications NotificationPublisher
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	guard         *InflightGuard
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewPostService constructs a post service.
func NewPostService(posts repository.PostRepository, likes repository.LikeRepository, notifications NotificationPublisher, validate *validator.Validate, logger zerolog.Logger) PostService {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("br")

	return &postService{
		posts:         posts,
		likes:         likes,
		notifications: notifications,
		validator:     validate,
		sanitizer:     policy,
		guard:         NewInflightGuard(),
		logger:        logger.With().Str("component", "post_service").Logger(),
		tracer:        otel.Tracer("github.com/pulse-social/pulse-api/internal/service/post"),
	}
}

func (s *postService) Create(ctx context.Context, authorID string, payload dto.PostCreateRequest) (dto.PostResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.PostResponse{}, err
	}

	cleanBody := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	if cleanBody == "" {
		return dto.PostResponse{}, errors.New("post body empty after sanitization")
	}

	public := true
	if payload.Public != nil {
		public = *payload.Public
	}

	repostOf := payload.RepostOfID
	if repostOf != nil {
		// A repost always points at the original item: reposting a repost
		// resolves one level up.
		original, err := s.posts.FindByID(ctx, *repostOf)
		if err != nil {
			return dto.PostResponse{}, fmt.Errorf("repost target lookup: %w", err)
		}
		if original.RepostOfID != nil {
			repostOf = original.RepostOfID
		}
	}

	spanCtx, span := s.tracer.Start(ctx, "post.create", trace.WithAttributes(
		attribute.String("post.author_id", authorID),
	))
	defer span.End()

	post := models.Post{
		AuthorID:   authorID,
		Title:      strings.TrimSpace(s.sanitizer.Sanitize(payload.Title)),
		Body:       cleanBody,
		Public:     public,
		RepostOfID: repostOf,
	}

	if err := s.posts.Create(spanCtx, &post); err != nil {
		span.RecordError(err)
		return dto.PostResponse{}, err
	}

	s.logger.Info().Uint("post_id", post.ID).Str("author_id", authorID).Msg("post created")

	return dto.NewPostResponse(post), nil
}

func (s *postService) Get(ctx context.Context, id uint, viewerID string) (dto.PostResponse, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return dto.PostResponse{}, err
	}

	response := dto.NewPostResponse(post)
	if viewerID != "" {
		if like, err := s.likes.Get(ctx, id, viewerID); err == nil {
			response.Liked = like.Liked
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Uint("post_id", id).Msg("like lookup failed")
		}
	}
	return response, nil
}

func (s *postService) RecordView(ctx context.Context, id uint) error {
	return s.posts.IncrementViews(ctx, id)
}

// ToggleLike flips the caller's like state under an in-flight guard so a
// double tap cannot issue two writes for the same (post, user) pair.
func (s *postService) ToggleLike(ctx context.Context, postID uint, userID string) (dto.LikeToggleResponse, error) {
	var result dto.LikeToggleResponse

	key := fmt.Sprintf("like:%d:%s", postID, userID)
	err := s.guard.Do(key, Mutation{
		Commit: func() error {
			liked, err := s.likes.Toggle(ctx, postID, userID)
			if err != nil {
				return err
			}

			total, err := s.likes.CountByPost(ctx, postID)
			if err != nil {
				return err
			}

			result = dto.LikeToggleResponse{PostID: postID, Liked: liked, Likes: total}
			return nil
		},
	})
	if err != nil {
		return dto.LikeToggleResponse{}, err
	}

	if result.Liked {
		if post, err := s.posts.FindByID(ctx, postID); err == nil && post.AuthorID != userID {
			s.notifyLike(ctx, userID, post)
		}
	}

	return result, nil
}

func (s *postService) notifyLike(ctx context.Context, actorID string, post models.Post) {
	if s.notifications == nil {
		return
	}
	payload := dto.NotificationCreateRequest{
		ActorID:     actorID,
		RecipientID: post.AuthorID,
		Type:        models.NotificationPostLike,
		PostID:      &post.ID,
	}
	if _, err := s.notifications.Publish(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Uint("post_id", post.ID).Msg("failed to publish like notification")
	}
}
