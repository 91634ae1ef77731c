package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
)

type recordingPublisher struct {
	published []dto.NotificationCreateRequest
}

func (r *recordingPublisher) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	r.published = append(r.published, payload)
	return dto.NotificationResponse{}, nil
}

func newThreadFixture(t *testing.T) (ThreadService, *gorm.DB, *recordingPublisher) {
	t.Helper()

	db := newTestDB(t)
	publisher := &recordingPublisher{}
	svc := NewThreadService(
		repository.NewCommentRepository(db),
		repository.NewPostRepository(db),
		repository.NewProfileRepository(db),
		repository.NewFollowRepository(db),
		publisher,
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
	)

	return svc, db, publisher
}

func seedComment(t *testing.T, db *gorm.DB, postID uint, authorID string, parentID *uint, createdAt time.Time) models.Comment {
	t.Helper()

	comment := models.Comment{
		PostID:    postID,
		AuthorID:  authorID,
		ParentID:  parentID,
		Body:      "body",
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(&comment).Error)
	return comment
}

func TestBuildThreadRootFirstThenChronological(t *testing.T) {
	svc, db, _ := newThreadFixture(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, "alice", nil, base)
	early := seedComment(t, db, 1, "bob", &root.ID, base.Add(time.Minute))
	nested := seedComment(t, db, 1, "carol", &early.ID, base.Add(2*time.Minute))
	late := seedComment(t, db, 1, "dave", &root.ID, base.Add(3*time.Minute))

	thread := svc.BuildThread(context.Background(), root.ID)
	require.Equal(t, root.ID, thread.RootID)
	require.Len(t, thread.Entries, 4)

	// root pinned first at level zero
	require.Equal(t, root.ID, thread.Entries[0].ID)
	require.Equal(t, 0, thread.Entries[0].Level)

	// everything below the root is globally chronological, not grouped by
	// parent: nested comes before late despite being one level deeper
	require.Equal(t, early.ID, thread.Entries[1].ID)
	require.Equal(t, nested.ID, thread.Entries[2].ID)
	require.Equal(t, late.ID, thread.Entries[3].ID)

	require.Equal(t, 1, thread.Entries[1].Level)
	require.Equal(t, 2, thread.Entries[2].Level)
	require.Equal(t, 1, thread.Entries[3].Level)
}

func TestBuildThreadMissingRootYieldsEmptyThread(t *testing.T) {
	svc, _, _ := newThreadFixture(t)

	thread := svc.BuildThread(context.Background(), 999)
	require.Equal(t, uint(999), thread.RootID)
	require.Empty(t, thread.Entries)
}

func TestBuildThreadStopsAtDepthCap(t *testing.T) {
	svc, db, _ := newThreadFixture(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, "alice", nil, base)

	parent := root
	for i := 0; i < 8; i++ {
		parent = seedComment(t, db, 1, "bob", &parent.ID, base.Add(time.Duration(i+1)*time.Minute))
	}

	thread := svc.BuildThread(context.Background(), root.ID)
	// root plus five frontier levels; deeper replies are not fetched
	require.Len(t, thread.Entries, 6)
	for _, entry := range thread.Entries {
		require.LessOrEqual(t, entry.Level, 5)
	}
}

func TestAddReplyToRootCarriesNoMention(t *testing.T) {
	svc, db, _ := newThreadFixture(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, "alice", nil, base)

	entry, err := svc.AddReply(context.Background(), "bob", dto.ReplyCreateRequest{ParentID: root.ID, Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, 1, entry.Level)
	require.Empty(t, entry.MentionName)

	var stored models.Comment
	require.NoError(t, db.First(&stored, entry.ID).Error)
	require.Nil(t, stored.MentionUserID)
}

func TestAddReplyToReplyMentionsParentAuthor(t *testing.T) {
	svc, db, _ := newThreadFixture(t)

	require.NoError(t, db.Create(&models.Profile{UserID: "bob", DisplayName: "Bob"}).Error)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, "alice", nil, base)
	reply := seedComment(t, db, 1, "bob", &root.ID, base.Add(time.Minute))

	entry, err := svc.AddReply(context.Background(), "carol", dto.ReplyCreateRequest{ParentID: reply.ID, Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, 2, entry.Level)
	require.Equal(t, "Bob", entry.MentionName)

	var stored models.Comment
	require.NoError(t, db.First(&stored, entry.ID).Error)
	require.NotNil(t, stored.MentionUserID)
	require.Equal(t, "bob", *stored.MentionUserID)
}

func TestAddReplyUnknownParent(t *testing.T) {
	svc, _, _ := newThreadFixture(t)

	_, err := svc.AddReply(context.Background(), "bob", dto.ReplyCreateRequest{ParentID: 42, Body: "hi"})
	require.ErrorIs(t, err, ErrParentNotFound)
}

func TestAddReplyNotifiesParentAuthor(t *testing.T) {
	svc, db, publisher := newThreadFixture(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, "alice", nil, base)

	_, err := svc.AddReply(context.Background(), "bob", dto.ReplyCreateRequest{ParentID: root.ID, Body: "hi"})
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	require.Equal(t, models.NotificationCommentReply, publisher.published[0].Type)
	require.Equal(t, "alice", publisher.published[0].RecipientID)
}

func TestCreateCommentNotifiesPostAuthor(t *testing.T) {
	svc, db, publisher := newThreadFixture(t)

	post := models.Post{AuthorID: "alice", Title: "post", Public: true}
	require.NoError(t, db.Create(&post).Error)

	_, err := svc.CreateComment(context.Background(), "bob", dto.CommentCreateRequest{PostID: post.ID, Body: "hi"})
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	require.Equal(t, models.NotificationPostComment, publisher.published[0].Type)
	require.Equal(t, "alice", publisher.published[0].RecipientID)

	// commenting on your own post stays silent
	_, err = svc.CreateComment(context.Background(), "alice", dto.CommentCreateRequest{PostID: post.ID, Body: "me too"})
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)
}

func TestApplyEventInsertsUnderKnownParent(t *testing.T) {
	svc, _, _ := newThreadFixture(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rootID := uint(1)
	thread := dto.ThreadResponse{
		RootID: rootID,
		Entries: []dto.ThreadEntry{
			{ID: 1, Level: 0, CreatedAt: base},
			{ID: 2, ParentID: &rootID, Level: 1, CreatedAt: base.Add(time.Minute)},
		},
	}

	parentID := uint(2)
	updated, applied := svc.ApplyEvent(thread, dto.CommentResponse{
		ID:        3,
		ParentID:  &parentID,
		CreatedAt: base.Add(30 * time.Second),
	})
	require.True(t, applied)
	require.Len(t, updated.Entries, 3)

	// inserted chronologically between the root and the later reply
	require.Equal(t, uint(1), updated.Entries[0].ID)
	require.Equal(t, uint(3), updated.Entries[1].ID)
	require.Equal(t, 2, updated.Entries[1].Level)
	require.Equal(t, uint(2), updated.Entries[2].ID)

	// original thread untouched
	require.Len(t, thread.Entries, 2)
}

func TestApplyEventDropsUnknownParentAndDuplicates(t *testing.T) {
	svc, _, _ := newThreadFixture(t)

	rootID := uint(1)
	thread := dto.ThreadResponse{
		RootID: rootID,
		Entries: []dto.ThreadEntry{
			{ID: 1, Level: 0},
			{ID: 2, ParentID: &rootID, Level: 1},
		},
	}

	unknown := uint(99)
	_, applied := svc.ApplyEvent(thread, dto.CommentResponse{ID: 3, ParentID: &unknown})
	require.False(t, applied)

	_, applied = svc.ApplyEvent(thread, dto.CommentResponse{ID: 2, ParentID: &rootID})
	require.False(t, applied)

	_, applied = svc.ApplyEvent(thread, dto.CommentResponse{ID: 4, ParentID: nil})
	require.False(t, applied)
}

func TestSummariesPhrasing(t *testing.T) {
	svc, db, _ := newThreadFixture(t)

	require.NoError(t, db.Create(&models.Profile{UserID: "friend", DisplayName: "Friend"}).Error)
	require.NoError(t, db.Create(&models.Follow{FollowerID: "viewer", FolloweeID: "friend"}).Error)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// root 1: viewer plus two others responded
	rootA := seedComment(t, db, 1, "alice", nil, base)
	seedComment(t, db, 1, "viewer", &rootA.ID, base.Add(time.Minute))
	seedComment(t, db, 1, "bob", &rootA.ID, base.Add(2*time.Minute))
	seedComment(t, db, 1, "carol", &rootA.ID, base.Add(3*time.Minute))

	// root 2: a followed user responded alone
	rootB := seedComment(t, db, 1, "alice", nil, base.Add(time.Hour))
	seedComment(t, db, 1, "friend", &rootB.ID, base.Add(time.Hour+time.Minute))

	// root 3: strangers only
	rootC := seedComment(t, db, 1, "alice", nil, base.Add(2*time.Hour))
	seedComment(t, db, 1, "bob", &rootC.ID, base.Add(2*time.Hour+time.Minute))
	seedComment(t, db, 1, "carol", &rootC.ID, base.Add(2*time.Hour+2*time.Minute))

	// root 4: nobody responded
	rootD := seedComment(t, db, 1, "alice", nil, base.Add(3*time.Hour))

	summaries := svc.Summaries(context.Background(), "viewer", 1, 10, 0)
	require.Len(t, summaries, 4)

	byRoot := make(map[uint]dto.RootSummary, len(summaries))
	for _, summary := range summaries {
		byRoot[summary.RootID] = summary
	}

	require.True(t, byRoot[rootA.ID].RespondedByMe)
	require.Equal(t, 3, byRoot[rootA.ID].RespondersUniqueCount)
	require.Equal(t, "you and 2 others replied to this comment", byRoot[rootA.ID].Summary)

	require.Equal(t, "Friend replied to this comment", byRoot[rootB.ID].Summary)

	require.Equal(t, "2 people replied to this comment", byRoot[rootC.ID].Summary)

	require.Equal(t, 0, byRoot[rootD.ID].RespondersUniqueCount)
	require.Empty(t, byRoot[rootD.ID].Summary)
}

func TestSummariesCountUniqueRespondersAcrossLevels(t *testing.T) {
	svc, db, _ := newThreadFixture(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, "alice", nil, base)
	first := seedComment(t, db, 1, "bob", &root.ID, base.Add(time.Minute))
	// bob replies again deeper down; still one unique responder
	seedComment(t, db, 1, "bob", &first.ID, base.Add(2*time.Minute))

	summaries := svc.Summaries(context.Background(), "", 1, 10, 0)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].RespondersUniqueCount)
	require.Equal(t, "1 person replied to this comment", summaries[0].Summary)
}

// blockingCommentRepo stalls Create until released so a second writer can be
// observed hitting the in-flight guard.
type blockingCommentRepo struct {
	repository.CommentRepository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingCommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	r.entered <- struct{}{}
	<-r.release
	return r.CommentRepository.Create(ctx, comment)
}

func TestAddReplyRejectsConcurrentDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := &blockingCommentRepo{
		CommentRepository: repository.NewCommentRepository(db),
		entered:           make(chan struct{}, 4),
		release:           make(chan struct{}),
	}
	svc := NewThreadService(
		repo,
		repository.NewPostRepository(db),
		repository.NewProfileRepository(db),
		repository.NewFollowRepository(db),
		&recordingPublisher{},
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
	)

	root := seedComment(t, db, 1, "alice", nil, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	payload := dto.ReplyCreateRequest{ParentID: root.ID, Body: "same reply"}

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.AddReply(context.Background(), "bob", payload)
		firstDone <- err
	}()
	<-repo.entered

	_, err := svc.AddReply(context.Background(), "bob", payload)
	require.ErrorIs(t, err, ErrMutationInFlight)

	close(repo.release)
	require.NoError(t, <-firstDone)

	var total int64
	require.NoError(t, db.Model(&models.Comment{}).Where("parent_id = ?", root.ID).Count(&total).Error)
	require.EqualValues(t, 1, total)

	// the key frees once the first write lands
	_, err = svc.AddReply(context.Background(), "bob", payload)
	require.NoError(t, err)
}

func TestCreateCommentRejectsConcurrentDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := &blockingCommentRepo{
		CommentRepository: repository.NewCommentRepository(db),
		entered:           make(chan struct{}, 4),
		release:           make(chan struct{}),
	}
	svc := NewThreadService(
		repo,
		repository.NewPostRepository(db),
		repository.NewProfileRepository(db),
		repository.NewFollowRepository(db),
		&recordingPublisher{},
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
	)

	post := models.Post{AuthorID: "alice", Body: "hello", Public: true}
	require.NoError(t, db.Create(&post).Error)
	payload := dto.CommentCreateRequest{PostID: post.ID, Body: "same comment"}

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.CreateComment(context.Background(), "bob", payload)
		firstDone <- err
	}()
	<-repo.entered

	_, err := svc.CreateComment(context.Background(), "bob", payload)
	require.ErrorIs(t, err, ErrMutationInFlight)

	close(repo.release)
	require.NoError(t, <-firstDone)

	var total int64
	require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&total).Error)
	require.EqualValues(t, 1, total)
}
