package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/dto"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
)

func newPostFixture(t *testing.T) (PostService, *gorm.DB, *recordingPublisher) {
	t.Helper()

	db := newTestDB(t)
	publisher := &recordingPublisher{}
	svc := NewPostService(
		repository.NewPostRepository(db),
		repository.NewLikeRepository(db),
		publisher,
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
	)

	return svc, db, publisher
}

func TestCreatePostSanitizesBody(t *testing.T) {
	svc, _, _ := newPostFixture(t)

	post, err := svc.Create(context.Background(), "alice", dto.PostCreateRequest{
		Title: "hello",
		Body:  `hi <script>alert("x")</script>there`,
	})
	require.NoError(t, err)
	require.NotContains(t, post.Body, "<script>")
	require.Contains(t, post.Body, "hi")
	require.True(t, post.Public)
}

func TestCreateRepostOfRepostResolvesToOriginal(t *testing.T) {
	svc, _, _ := newPostFixture(t)

	ctx := context.Background()
	original, err := svc.Create(ctx, "alice", dto.PostCreateRequest{Title: "og", Body: "original"})
	require.NoError(t, err)

	repost, err := svc.Create(ctx, "bob", dto.PostCreateRequest{Title: "rt", Body: "share", RepostOfID: &original.ID})
	require.NoError(t, err)
	require.NotNil(t, repost.RepostOfID)
	require.Equal(t, original.ID, *repost.RepostOfID)

	// reposting the repost still points at the original item
	second, err := svc.Create(ctx, "carol", dto.PostCreateRequest{Title: "rt2", Body: "share again", RepostOfID: &repost.ID})
	require.NoError(t, err)
	require.NotNil(t, second.RepostOfID)
	require.Equal(t, original.ID, *second.RepostOfID)
}

func TestToggleLikeFlipsStateAndCounts(t *testing.T) {
	svc, db, _ := newPostFixture(t)

	post := models.Post{AuthorID: "alice", Title: "post", Body: "body", Public: true}
	require.NoError(t, db.Create(&post).Error)

	ctx := context.Background()

	first, err := svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.True(t, first.Liked)
	require.EqualValues(t, 1, first.Likes)

	second, err := svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.False(t, second.Liked)
	require.EqualValues(t, 0, second.Likes)

	third, err := svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.True(t, third.Liked)
	require.EqualValues(t, 1, third.Likes)

	// the unlike flipped a flag rather than deleting the row
	var rows int64
	require.NoError(t, db.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestToggleLikeNotifiesAuthorOnLikeOnly(t *testing.T) {
	svc, db, publisher := newPostFixture(t)

	post := models.Post{AuthorID: "alice", Title: "post", Body: "body", Public: true}
	require.NoError(t, db.Create(&post).Error)

	ctx := context.Background()

	_, err := svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)
	require.Equal(t, models.NotificationPostLike, publisher.published[0].Type)

	// unliking stays silent
	_, err = svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)

	// liking your own post stays silent
	_, err = svc.ToggleLike(ctx, post.ID, "alice")
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)
}

func TestRecordViewIncrements(t *testing.T) {
	svc, db, _ := newPostFixture(t)

	post := models.Post{AuthorID: "alice", Title: "post", Body: "body", Public: true}
	require.NoError(t, db.Create(&post).Error)

	ctx := context.Background()
	require.NoError(t, svc.RecordView(ctx, post.ID))
	require.NoError(t, svc.RecordView(ctx, post.ID))

	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	require.EqualValues(t, 2, stored.Views)
}

func TestGetReportsViewerLikeState(t *testing.T) {
	svc, db, _ := newPostFixture(t)

	post := models.Post{AuthorID: "alice", Title: "post", Body: "body", Public: true}
	require.NoError(t, db.Create(&post).Error)

	ctx := context.Background()
	_, err := svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)

	asBob, err := svc.Get(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.True(t, asBob.Liked)

	asCarol, err := svc.Get(ctx, post.ID, "carol")
	require.NoError(t, err)
	require.False(t, asCarol.Liked)

	anonymous, err := svc.Get(ctx, post.ID, "")
	require.NoError(t, err)
	require.False(t, anonymous.Liked)

	// unliking keeps the row but clears the reported state
	_, err = svc.ToggleLike(ctx, post.ID, "bob")
	require.NoError(t, err)
	afterUnlike, err := svc.Get(ctx, post.ID, "bob")
	require.NoError(t, err)
	require.False(t, afterUnlike.Liked)
}
