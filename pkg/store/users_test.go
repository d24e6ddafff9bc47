package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndGetUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := UserRecord{
		ID: "N:user:1", Name: "jane", SessionToken: "tok", Profile: "default",
		Environment: "prod", OrganizationID: "N:organization:1",
		OrganizationName: "acme", EncryptionKey: "key", UpdatedAt: nowTimestamp(),
	}
	require.NoError(t, s.UpsertUser(ctx, u))

	got, err := s.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, u, *got)
}

func TestUpsertUserReplacesSingletonRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, UserRecord{ID: "N:user:1", Name: "jane", UpdatedAt: nowTimestamp()}))
	require.NoError(t, s.UpsertUser(ctx, UserRecord{ID: "N:user:2", Name: "jo", UpdatedAt: nowTimestamp()}))

	got, err := s.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "N:user:2", got.ID)
}

func TestGetUserNotFoundBeforeLogin(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetUser(context.Background())
	assert.Error(t, err)
}

func TestDeleteUserLogsOut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, UserRecord{ID: "N:user:1", UpdatedAt: nowTimestamp()}))
	require.NoError(t, s.DeleteUser(ctx))

	_, err := s.GetUser(ctx)
	assert.Error(t, err)
}

func TestSessionValid(t *testing.T) {
	now := time.Now().UTC()

	fresh := UserRecord{UpdatedAt: now.Add(-10 * time.Minute).Format(time.RFC3339Nano)}
	assert.True(t, fresh.SessionValid(now))

	expired := UserRecord{UpdatedAt: now.Add(-91 * time.Minute).Format(time.RFC3339Nano)}
	assert.False(t, expired.SessionValid(now))
}

func TestGetOrCreateUserSettingsCreatesOnFirstCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	us, err := s.GetOrCreateUserSettings(ctx, "N:user:1", "default")
	require.NoError(t, err)
	assert.Equal(t, "N:user:1", us.UserID)
	assert.False(t, us.UseDatasetID.Valid)
}

func TestUpsertUserSettingsThenGetOrCreateReturnsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertUserSettings(ctx, UserSettings{
		UserID: "N:user:1", Profile: "default",
		UseDatasetID: sql.NullString{String: "N:dataset:1", Valid: true},
	})
	require.NoError(t, err)

	us, err := s.GetOrCreateUserSettings(ctx, "N:user:1", "default")
	require.NoError(t, err)
	require.True(t, us.UseDatasetID.Valid)
	assert.Equal(t, "N:dataset:1", us.UseDatasetID.String)
}
