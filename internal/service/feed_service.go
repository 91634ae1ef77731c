package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/observability"
	"github.com/pulse-social/pulse-api/internal/repository"
	"github.com/pulse-social/pulse-api/internal/store"
)

// Ranking policy. The weights and decay are fixed product policy, not
// call-time configuration.
const (
	feedViewWeight         = 2.0
	feedLikeWeight         = 20.0
	feedCommentWeight      = 50.0
	feedTimeBoostBase      = 300.0
	feedHourlyDecay        = 0.985
	feedSuppressionPenalty = 100.0

	feedDefaultPageSize = 20
)

// FeedService ranks batches of posts for display. The engine is agnostic to
// where a batch came from; the "top" and "followed" tabs only differ in which
// rows are fetched before ranking.
type FeedService interface {
	Page(ctx context.Context, viewerID string, req dto.FeedRequest) (dto.FeedResponse, error)
	Rank(ctx context.Context, viewerID string, items []dto.FeedItem) []dto.RankedItem
	Suppress(ctx context.Context, viewerID string, postID uint) error
}

type feedService struct {
	posts       repository.PostRepository
	follows     repository.FollowRepository
	suppression func(viewerID string) *store.SuppressionSet
	pageSize    int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewFeedService constructs the ranking service. The suppression factory
// yields the viewer-scoped suppression set; it is re-read on every ranking
// pass rather than cached across renders. pageSize is the page length used
// when the request does not carry a valid limit.
func NewFeedService(posts repository.PostRepository, follows repository.FollowRepository, blobs store.BlobStore, pageSize int, logger zerolog.Logger) FeedService {
	componentLogger := logger.With().Str("component", "feed_service").Logger()
	if pageSize <= 0 || pageSize > 100 {
		pageSize = feedDefaultPageSize
	}

	return &feedService{
		posts:   posts,
		follows: follows,
		suppression: func(viewerID string) *store.SuppressionSet {
			return store.NewSuppressionSet(blobs, "feed:suppressed:"+viewerID, componentLogger)
		},
		pageSize: pageSize,
		logger:   componentLogger,
		now:      time.Now,
	}
}

// Page fetches the accumulated batch for the requested tab and ranks it as a
// whole. Pagination is accumulative: requesting offset N re-fetches and
// re-ranks rows 0..N+limit so newly loaded pages reorder against everything
// already shown, not just against each other.
func (s *feedService) Page(ctx context.Context, viewerID string, req dto.FeedRequest) (dto.FeedResponse, error) {
	start := time.Now()
	defer func() {
		observability.FeedRankLatency().Observe(time.Since(start).Seconds())
	}()

	tab := strings.ToLower(strings.TrimSpace(req.Tab))
	if tab == "" {
		tab = "top"
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = s.pageSize
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	accumulated := offset + limit

	var (
		rows []dto.FeedItem
		err  error
	)

	switch tab {
	case "followed":
		rows, err = s.fetchFollowed(ctx, viewerID, accumulated)
	default:
		rows, err = s.fetchTop(ctx, accumulated)
	}
	if err != nil {
		// Ranking failures are invisible to the page: degrade to an empty
		// feed instead of propagating.
		s.logger.Warn().Err(err).Str("tab", tab).Msg("feed fetch failed, returning empty batch")
		observability.FeedRequestsTotal().WithLabelValues(tab, "error").Inc()
		return dto.FeedResponse{Tab: tab, Items: []dto.RankedItem{}, NextOffset: offset}, nil
	}

	ranked := s.Rank(ctx, viewerID, rows)
	observability.FeedRequestsTotal().WithLabelValues(tab, "ok").Inc()

	return dto.FeedResponse{
		Tab:        tab,
		Items:      ranked,
		NextOffset: accumulated,
	}, nil
}

// Rank scores a batch and orders it descending by score. The sort is stable:
// ties keep fetch order because no secondary key is defined.
func (s *feedService) Rank(ctx context.Context, viewerID string, items []dto.FeedItem) []dto.RankedItem {
	suppressed := s.suppression(viewerID).Load(ctx)
	now := s.now()

	ranked := make([]dto.RankedItem, 0, len(items))
	for _, item := range items {
		ranked = append(ranked, dto.RankedItem{
			FeedItem: item,
			Score:    scorePost(item, now, suppressed),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

func (s *feedService) Suppress(ctx context.Context, viewerID string, postID uint) error {
	return s.suppression(viewerID).Add(ctx, postID)
}

func (s *feedService) fetchTop(ctx context.Context, count int) ([]dto.FeedItem, error) {
	posts, err := s.posts.ListRecentPublic(ctx, count, 0)
	if err != nil {
		return nil, err
	}
	return s.attachEngagement(ctx, posts)
}

func (s *feedService) fetchFollowed(ctx context.Context, viewerID string, count int) ([]dto.FeedItem, error) {
	followees, err := s.follows.ListFollowing(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if len(followees) == 0 {
		return []dto.FeedItem{}, nil
	}

	posts, err := s.posts.ListByAuthors(ctx, followees, count, 0)
	if err != nil {
		return nil, err
	}
	return s.attachEngagement(ctx, posts)
}

func (s *feedService) attachEngagement(ctx context.Context, posts []models.Post) ([]dto.FeedItem, error) {
	ids := make([]uint, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}

	counts, err := s.posts.Engagement(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]dto.FeedItem, 0, len(posts))
	for _, post := range posts {
		engagement := counts[post.ID]
		items = append(items, dto.FeedItem{
			ID:         post.ID,
			AuthorID:   post.AuthorID,
			Title:      post.Title,
			Body:       post.Body,
			RepostOfID: post.RepostOfID,
			Views:      int64(post.Views),
			Likes:      engagement.Likes,
			Comments:   engagement.Comments,
			CreatedAt:  post.CreatedAt,
		})
	}

	return items, nil
}

// scorePost applies the fixed ranking formula. Future timestamps clamp to age
// zero rather than producing a negative age.
func scorePost(item dto.FeedItem, now time.Time, suppressed map[uint]struct{}) float64 {
	ageHours := now.Sub(item.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	timeBoost := feedTimeBoostBase * math.Pow(feedHourlyDecay, ageHours)

	score := float64(item.Views)*feedViewWeight +
		float64(item.Likes)*feedLikeWeight +
		float64(item.Comments)*feedCommentWeight +
		timeBoost

	if _, ok := suppressed[item.ID]; ok {
		score -= feedSuppressionPenalty
	}

	return score
}
