package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulse-social/pulse-api/internal/models"
)

func seedComment(t *testing.T, db *gorm.DB, postID uint, parentID *uint, author string, at time.Time) models.Comment {
	t.Helper()

	comment := models.Comment{
		PostID:    postID,
		AuthorID:  author,
		ParentID:  parentID,
		Body:      "body",
		CreatedAt: at,
	}
	require.NoError(t, db.Create(&comment).Error)
	return comment
}

func TestListRootsReturnsOnlyTopLevelInOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	second := seedComment(t, db, 1, nil, "bob", base.Add(time.Minute))
	first := seedComment(t, db, 1, nil, "alice", base)
	seedComment(t, db, 1, uintPtr(first.ID), "carol", base.Add(2*time.Minute))
	seedComment(t, db, 2, nil, "dave", base)

	roots, err := repo.ListRoots(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	require.Equal(t, first.ID, roots[0].ID)
	require.Equal(t, second.ID, roots[1].ID)
}

func TestListRootsPaginates(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedComment(t, db, 1, nil, "alice", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := repo.ListRoots(ctx, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, base.Add(2*time.Minute), page[0].CreatedAt.UTC())
}

func TestListByParentsExpandsOneLevel(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	rootA := seedComment(t, db, 1, nil, "alice", base)
	rootB := seedComment(t, db, 1, nil, "bob", base.Add(time.Minute))
	childB := seedComment(t, db, 1, uintPtr(rootB.ID), "carol", base.Add(2*time.Minute))
	childA := seedComment(t, db, 1, uintPtr(rootA.ID), "dave", base.Add(3*time.Minute))
	// grandchild must not surface when only roots are on the frontier
	seedComment(t, db, 1, uintPtr(childB.ID), "erin", base.Add(4*time.Minute))

	children, err := repo.ListByParents(ctx, []uint{rootA.ID, rootB.ID})
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, childB.ID, children[0].ID)
	require.Equal(t, childA.ID, children[1].ID)
}

func TestListByParentsEmptyFrontier(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommentRepository(db)

	children, err := repo.ListByParents(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestCountByPostCountsAllDepths(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	root := seedComment(t, db, 1, nil, "alice", base)
	seedComment(t, db, 1, uintPtr(root.ID), "bob", base.Add(time.Minute))
	seedComment(t, db, 2, nil, "carol", base)

	total, err := repo.CountByPost(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}
