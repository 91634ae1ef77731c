package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

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

const (
	// threadMaxDepth caps frontier expansion below a root when building the
	// full thread view. The cap bounds query fan-out, not storage depth.
	threadMaxDepth = 5
	// summaryMaxDepth caps the responder scan used for top-level summaries.
	summaryMaxDepth = 6
	// replyDepthWalkLimit bounds the parent-chain walk when placing a reply.
	replyDepthWalkLimit = 64
)

// ErrParentNotFound indicates a reply targeted a comment that does not exist.
var ErrParentNotFound = errors.New("reply parent not found")

// NotificationPublisher exposes the subset of the notification service needed
// by content services.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// ThreadService reconstructs reply threads, places new replies, folds
// real-time inserts into loaded threads, and aggregates per-root responder
// summaries.
type ThreadService interface {
	BuildThread(ctx context.Context, rootID uint) dto.ThreadResponse
	CreateComment(ctx context.Context, authorID string, payload dto.CommentCreateRequest) (dto.CommentResponse, error)
	AddReply(ctx context.Context, authorID string, payload dto.ReplyCreateRequest) (dto.ThreadEntry, error)
	ApplyEvent(thread dto.ThreadResponse, incoming dto.CommentResponse) (dto.ThreadResponse, bool)
	Summaries(ctx context.Context, viewerID string, postID uint, limit, offset int) []dto.RootSummary
}

type threadService struct {
	comments      repository.CommentRepository
	posts         repository.PostRepository
	profiles      repository.ProfileRepository
	follows       repository.FollowRepository
	notifications NotificationPublisher
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	guard         *InflightGuard
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewThreadService constructs a thread service.
func NewThreadService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	profiles repository.ProfileRepository,
	follows repository.FollowRepository,
	notifications NotificationPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) ThreadService {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("br")

	return &threadService{
		comments:      comments,
		posts:         posts,
		profiles:      profiles,
		follows:       follows,
		notifications: notifications,
		validator:     validate,
		sanitizer:     policy,
		guard:         NewInflightGuard(),
		logger:        logger.With().Str("component", "thread_service").Logger(),
		tracer:        otel.Tracer("github.com/pulse-social/pulse-api/internal/service/thread"),
		now:           time.Now,
	}
}

// BuildThread reconstructs the full reply tree under a root comment by
// breadth-level frontier expansion and linearizes it root-first, then in
// global chronological order across all levels. A missing root yields an
// empty thread, not an error; partial fetch failures truncate the expansion.
func (s *threadService) BuildThread(ctx context.Context, rootID uint) dto.ThreadResponse {
	empty := dto.ThreadResponse{RootID: rootID, Entries: []dto.ThreadEntry{}}

	root, err := s.comments.FindByID(ctx, rootID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Uint("root_id", rootID).Msg("thread root fetch failed")
		}
		return empty
	}

	levels := map[uint]int{root.ID: 0}
	collected := []models.Comment{root}
	frontier := []uint{root.ID}

	for depth := 1; depth <= threadMaxDepth; depth++ {
		children, err := s.comments.ListByParents(ctx, frontier)
		if err != nil {
			s.logger.Warn().Err(err).Uint("root_id", rootID).Int("depth", depth).Msg("frontier fetch failed, truncating thread")
			break
		}
		if len(children) == 0 {
			break
		}

		frontier = frontier[:0]
		for _, child := range children {
			if child.ParentID == nil {
				continue
			}
			levels[child.ID] = levels[*child.ParentID] + 1
			collected = append(collected, child)
			frontier = append(frontier, child.ID)
		}
	}

	names := s.resolveNames(ctx, collected)

	entries := make([]dto.ThreadEntry, 0, len(collected))
	for _, comment := range collected {
		entries = append(entries, s.toEntry(comment, levels[comment.ID], names))
	}
	sortThreadEntries(entries, rootID)

	return dto.ThreadResponse{RootID: rootID, Entries: entries}
}

func (s *threadService) CreateComment(ctx context.Context, authorID string, payload dto.CommentCreateRequest) (dto.CommentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CommentResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	if clean == "" {
		return dto.CommentResponse{}, errors.New("comment body empty after sanitization")
	}

	post, err := s.posts.FindByID(ctx, payload.PostID)
	if err != nil {
		return dto.CommentResponse{}, fmt.Errorf("post lookup: %w", err)
	}

	spanCtx, span := s.tracer.Start(ctx, "thread.comment", trace.WithAttributes(
		attribute.String("comment.author_id", authorID),
		attribute.Int("comment.post_id", int(payload.PostID)),
	))
	defer span.End()

	comment := models.Comment{
		PostID:   payload.PostID,
		AuthorID: authorID,
		Body:     clean,
	}

	// One comment write per (author, post) at a time; a double submit is
	// rejected instead of queued.
	key := fmt.Sprintf("comment:%d:%s", payload.PostID, authorID)
	err = s.guard.Do(key, Mutation{
		Commit: func() error {
			return s.comments.Create(spanCtx, &comment)
		},
	})
	if err != nil {
		span.RecordError(err)
		return dto.CommentResponse{}, err
	}

	if post.AuthorID != authorID {
		s.notify(spanCtx, dto.NotificationCreateRequest{
			ActorID:     authorID,
			RecipientID: post.AuthorID,
			Type:        models.NotificationPostComment,
			PostID:      &post.ID,
			CommentID:   &comment.ID,
		})
	}

	return dto.NewCommentResponse(comment), nil
}

// AddReply places a reply under whatever comment the user replied to. The
// reply's level is the parent's level plus one, and a mention is recorded
// only when the parent is itself a reply; replies to the root carry none.
func (s *threadService) AddReply(ctx context.Context, authorID string, payload dto.ReplyCreateRequest) (dto.ThreadEntry, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ThreadEntry{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Body))
	if clean == "" {
		return dto.ThreadEntry{}, errors.New("reply body empty after sanitization")
	}

	parent, err := s.comments.FindByID(ctx, payload.ParentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ThreadEntry{}, ErrParentNotFound
		}
		return dto.ThreadEntry{}, err
	}

	parentLevel, err := s.depthOf(ctx, parent)
	if err != nil {
		return dto.ThreadEntry{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "thread.reply", trace.WithAttributes(
		attribute.String("reply.author_id", authorID),
		attribute.Int("reply.parent_id", int(parent.ID)),
	))
	defer span.End()

	reply := models.Comment{
		PostID:   parent.PostID,
		AuthorID: authorID,
		ParentID: &parent.ID,
		Body:     clean,
	}
	if parent.ParentID != nil {
		mention := parent.AuthorID
		reply.MentionUserID = &mention
	}

	key := fmt.Sprintf("reply:%d:%s", parent.ID, authorID)
	err = s.guard.Do(key, Mutation{
		Commit: func() error {
			return s.comments.Create(spanCtx, &reply)
		},
	})
	if err != nil {
		span.RecordError(err)
		return dto.ThreadEntry{}, err
	}

	if parent.AuthorID != authorID {
		s.notify(spanCtx, dto.NotificationCreateRequest{
			ActorID:     authorID,
			RecipientID: parent.AuthorID,
			Type:        models.NotificationCommentReply,
			PostID:      &parent.PostID,
			CommentID:   &reply.ID,
		})
	}

	names := s.resolveNames(spanCtx, []models.Comment{reply})
	return s.toEntry(reply, parentLevel+1, names), nil
}

// ApplyEvent folds one real-time comment insert into an already loaded
// thread. Inserts whose parent is unknown to the thread are dropped: the
// thread is never proactively re-fetched in response to an event.
func (s *threadService) ApplyEvent(thread dto.ThreadResponse, incoming dto.CommentResponse) (dto.ThreadResponse, bool) {
	if incoming.ParentID == nil {
		return thread, false
	}

	for _, entry := range thread.Entries {
		if entry.ID == incoming.ID {
			return thread, false
		}
	}

	parentLevel := -1
	for _, entry := range thread.Entries {
		if entry.ID == *incoming.ParentID {
			parentLevel = entry.Level
			break
		}
	}
	if parentLevel < 0 {
		return thread, false
	}

	entries := make([]dto.ThreadEntry, len(thread.Entries), len(thread.Entries)+1)
	copy(entries, thread.Entries)
	entries = append(entries, dto.ThreadEntry{
		ID:        incoming.ID,
		PostID:    incoming.PostID,
		AuthorID:  incoming.AuthorID,
		ParentID:  incoming.ParentID,
		Level:     parentLevel + 1,
		Body:      incoming.Body,
		CreatedAt: incoming.CreatedAt,
	})
	sortThreadEntries(entries, thread.RootID)

	return dto.ThreadResponse{RootID: thread.RootID, Entries: entries}, true
}

// Summaries builds the "who responded" line for each top-level comment under
// a post. The scan reuses frontier expansion but only collects responder ids,
// never the reply content. Failures degrade to no summaries.
func (s *threadService) Summaries(ctx context.Context, viewerID string, postID uint, limit, offset int) []dto.RootSummary {
	roots, err := s.comments.ListRoots(ctx, postID, limit, offset)
	if err != nil {
		s.logger.Warn().Err(err).Uint("post_id", postID).Msg("root comment fetch failed")
		return []dto.RootSummary{}
	}

	following := make(map[string]struct{})
	if viewerID != "" && s.follows != nil {
		followees, err := s.follows.ListFollowing(ctx, viewerID)
		if err != nil {
			s.logger.Warn().Err(err).Str("viewer_id", viewerID).Msg("following fetch failed for summaries")
		}
		for _, id := range followees {
			following[id] = struct{}{}
		}
	}

	summaries := make([]dto.RootSummary, 0, len(roots))
	for _, root := range roots {
		responders := s.collectResponders(ctx, root.ID)
		summaries = append(summaries, s.summarize(ctx, viewerID, root.ID, responders, following))
	}

	return summaries
}

// collectResponders walks the subtree under rootID and returns responder ids
// in first-seen order, which is deterministic for a given storage order.
func (s *threadService) collectResponders(ctx context.Context, rootID uint) []string {
	seen := make(map[string]struct{})
	ordered := make([]string, 0)

	frontier := []uint{rootID}
	for depth := 1; depth <= summaryMaxDepth; depth++ {
		children, err := s.comments.ListByParents(ctx, frontier)
		if err != nil {
			s.logger.Warn().Err(err).Uint("root_id", rootID).Msg("responder scan truncated")
			break
		}
		if len(children) == 0 {
			break
		}

		frontier = frontier[:0]
		for _, child := range children {
			frontier = append(frontier, child.ID)
			if _, ok := seen[child.AuthorID]; !ok {
				seen[child.AuthorID] = struct{}{}
				ordered = append(ordered, child.AuthorID)
			}
		}
	}

	return ordered
}

func (s *threadService) summarize(ctx context.Context, viewerID string, rootID uint, responders []string, following map[string]struct{}) dto.RootSummary {
	summary := dto.RootSummary{
		RootID:                rootID,
		RespondersUniqueCount: len(responders),
	}
	if len(responders) == 0 {
		return summary
	}

	for _, id := range responders {
		if id == viewerID {
			summary.RespondedByMe = true
			break
		}
	}

	var followedID string
	for _, id := range responders {
		if _, ok := following[id]; ok {
			followedID = id
			break
		}
	}
	if followedID != "" {
		if profile, err := s.profiles.FindByID(ctx, followedID); err == nil {
			summary.FollowedResponderName = profile.DisplayName
		} else {
			summary.FollowedResponderName = followedID
		}
	}

	others := len(responders) - 1
	switch {
	case summary.RespondedByMe && others == 0:
		summary.Summary = "you replied to this comment"
	case summary.RespondedByMe:
		summary.Summary = fmt.Sprintf("you and %d others replied to this comment", others)
	case summary.FollowedResponderName != "" && others == 0:
		summary.Summary = fmt.Sprintf("%s replied to this comment", summary.FollowedResponderName)
	case summary.FollowedResponderName != "":
		summary.Summary = fmt.Sprintf("%s and %d others replied to this comment", summary.FollowedResponderName, others)
	case len(responders) == 1:
		summary.Summary = "1 person replied to this comment"
	default:
		summary.Summary = fmt.Sprintf("%d people replied to this comment", len(responders))
	}

	return summary
}

// depthOf walks the parent chain up to the root. Storage depth is unbounded,
// so the walk carries its own limit.
func (s *threadService) depthOf(ctx context.Context, comment models.Comment) (int, error) {
	depth := 0
	current := comment
	for current.ParentID != nil {
		depth++
		if depth > replyDepthWalkLimit {
			return 0, errors.New("reply chain exceeds depth walk limit")
		}
		parent, err := s.comments.FindByID(ctx, *current.ParentID)
		if err != nil {
			return 0, err
		}
		current = parent
	}
	return depth, nil
}

func (s *threadService) resolveNames(ctx context.Context, comments []models.Comment) map[string]string {
	ids := make([]string, 0, len(comments))
	seen := make(map[string]struct{})
	for _, comment := range comments {
		if _, ok := seen[comment.AuthorID]; !ok {
			seen[comment.AuthorID] = struct{}{}
			ids = append(ids, comment.AuthorID)
		}
		if comment.MentionUserID != nil {
			if _, ok := seen[*comment.MentionUserID]; !ok {
				seen[*comment.MentionUserID] = struct{}{}
				ids = append(ids, *comment.MentionUserID)
			}
		}
	}

	names := make(map[string]string, len(ids))
	profiles, err := s.profiles.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile batch lookup failed, falling back to ids")
		return names
	}
	for id, profile := range profiles {
		names[id] = profile.DisplayName
	}
	return names
}

func (s *threadService) toEntry(comment models.Comment, level int, names map[string]string) dto.ThreadEntry {
	entry := dto.ThreadEntry{
		ID:        comment.ID,
		PostID:    comment.PostID,
		AuthorID:  comment.AuthorID,
		ParentID:  comment.ParentID,
		Level:     level,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}
	if name, ok := names[comment.AuthorID]; ok {
		entry.AuthorName = name
	}
	if comment.MentionUserID != nil {
		if name, ok := names[*comment.MentionUserID]; ok {
			entry.MentionName = name
		} else {
			entry.MentionName = *comment.MentionUserID
		}
	}
	return entry
}

func (s *threadService) notify(ctx context.Context, payload dto.NotificationCreateRequest) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Publish(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Str("recipient_id", payload.RecipientID).Msg("failed to publish thread notification")
	}
}

// sortThreadEntries pins the root first and orders every remaining entry by
// creation time ascending across all levels. Ordering is deliberately flat:
// level indents the rendering but never groups replies under their parent.
func sortThreadEntries(entries []dto.ThreadEntry, rootID uint) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ID == rootID {
			return entries[j].ID != rootID
		}
		if entries[j].ID == rootID {
			return false
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
