package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "agent.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := newTestStore(t)

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version, "both embedded migrations should have applied")
}

func TestOpenWithDisabledMigrationsSkipsVersionBump(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "agent.db"), true)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	// The column added by migration 0001 should not exist; inserting an
	// upload through the fully-columned statement should fail.
	_, err = s.InsertUpload(context.Background(), UploadRecord{
		FilePath: "/tmp/a", DatasetID: "N:dataset:1", ImportID: "import-1",
	})
	assert.Error(t, err)
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.db")

	s1, err := Open(context.Background(), path, false)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), path, false)
	require.NoError(t, err)
	defer s2.Close()

	version, err := s2.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}
