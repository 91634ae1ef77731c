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

func newProfileFixture(t *testing.T) (ProfileService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	svc := NewProfileService(
		repository.NewProfileRepository(db),
		validator.New(validator.WithRequiredStructEnabled()),
		testLogger(),
	)

	return svc, db
}

func TestUpdateCreatesThenOverwritesProfile(t *testing.T) {
	svc, db := newProfileFixture(t)
	ctx := context.Background()

	created, err := svc.Update(ctx, "alice", dto.ProfileUpdateRequest{
		DisplayName: "Alice",
		AvatarURL:   "https://cdn.example.com/alice.png",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", created.UserID)
	require.Equal(t, "Alice", created.DisplayName)

	updated, err := svc.Update(ctx, "alice", dto.ProfileUpdateRequest{DisplayName: "Alice B."})
	require.NoError(t, err)
	require.Equal(t, "Alice B.", updated.DisplayName)
	require.Empty(t, updated.AvatarURL)

	// the upsert rewrote the single row rather than adding one
	var rows int64
	require.NoError(t, db.Model(&models.Profile{}).Where("user_id = ?", "alice").Count(&rows).Error)
	require.EqualValues(t, 1, rows)

	stored, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice B.", stored.DisplayName)
}

func TestUpdateStripsMarkupFromDisplayName(t *testing.T) {
	svc, _ := newProfileFixture(t)

	profile, err := svc.Update(context.Background(), "bob", dto.ProfileUpdateRequest{
		DisplayName: `<b>Bob</b> <script>alert("x")</script>`,
	})
	require.NoError(t, err)
	require.Equal(t, "Bob", profile.DisplayName)
}

func TestUpdateRejectsInvalidPayload(t *testing.T) {
	svc, _ := newProfileFixture(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "bob", dto.ProfileUpdateRequest{DisplayName: ""})
	require.Error(t, err)

	_, err = svc.Update(ctx, "bob", dto.ProfileUpdateRequest{DisplayName: "Bob", AvatarURL: "not-a-url"})
	require.Error(t, err)
}

func TestGetMissingProfileReturnsNotFound(t *testing.T) {
	svc, _ := newProfileFixture(t)

	_, err := svc.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
