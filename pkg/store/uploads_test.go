package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTestUpload(t *testing.T, s *Store, importID string) int64 {
	t.Helper()
	id, err := s.InsertUpload(context.Background(), UploadRecord{
		FilePath:  "/tmp/file.txt",
		DatasetID: "N:dataset:1",
		ImportID:  importID,
	})
	require.NoError(t, err)
	return id
}

func TestInsertAndGetUploadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id := insertTestUpload(t, s, "import-1")

	got, err := s.GetUpload(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.EqualValues(t, 0, got.Progress)
	assert.Equal(t, "import-1", got.ImportID)
}

func TestGetUploadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetUpload(context.Background(), 9999)
	assert.Error(t, err)
}

func TestListUploadsByImportGroupsAcrossFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUpload(t, s, "group-a")
	insertTestUpload(t, s, "group-a")
	insertTestUpload(t, s, "group-b")

	uploads, err := s.ListUploadsByImport(ctx, "group-a")
	require.NoError(t, err)
	assert.Len(t, uploads, 2)
}

func TestUpdateImportStatusTransitionsWholeGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestUpload(t, s, "group-a")
	insertTestUpload(t, s, "group-a")

	require.NoError(t, s.UpdateImportStatus(ctx, "group-a", StatusInProgress))

	uploads, err := s.ListUploadsByImport(ctx, "group-a")
	require.NoError(t, err)
	for _, u := range uploads {
		assert.Equal(t, StatusInProgress, u.Status)
	}
}

func TestUpdateFileProgressRejectsNonIncreasingValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertTestUpload(t, s, "import-1")

	require.NoError(t, s.UpdateFileProgress(ctx, id, 10))
	assert.Error(t, s.UpdateFileProgress(ctx, id, 10), "equal progress must be rejected")
	assert.Error(t, s.UpdateFileProgress(ctx, id, 5), "decreasing progress must be rejected")

	require.NoError(t, s.UpdateFileProgress(ctx, id, 20))
	got, err := s.GetUpload(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 20, got.Progress)
}

func TestResetStalledUploadsMovesInProgressToQueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestUpload(t, s, "import-1")
	require.NoError(t, s.UpdateImportStatusAndProgress(ctx, "import-1", StatusInProgress, 40))

	n, err := s.ResetStalledUploads(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetUpload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.EqualValues(t, 0, got.Progress, "non-resumable upload restarts from zero")
}

func TestResetStalledUploadsPreservesProgressForResumableUploads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertUpload(ctx, UploadRecord{
		FilePath: "/tmp/f", DatasetID: "N:dataset:1", ImportID: "import-1", UploadService: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.UpdateImportStatusAndProgress(ctx, "import-1", StatusInProgress, 40))

	_, err = s.ResetStalledUploads(ctx)
	require.NoError(t, err)

	got, err := s.GetUpload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.EqualValues(t, 40, got.Progress, "resumable upload keeps its progress")
}

func TestResumeFailedUploadRequiresPartialProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestUpload(t, s, "import-1")
	require.NoError(t, s.UpdateImportStatus(ctx, "import-1", StatusFailed))

	assert.Error(t, s.ResumeFailedUpload(ctx, id), "zero-progress failure should not resume")

	require.NoError(t, s.UpdateFileProgress(ctx, id, 5))
	require.NoError(t, s.UpdateImportStatus(ctx, "import-1", StatusFailed))
	require.NoError(t, s.ResumeFailedUpload(ctx, id))

	got, err := s.GetUpload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
}

func TestCancelUploadDeletesQueuedOrInProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestUpload(t, s, "import-1")
	require.NoError(t, s.CancelUpload(ctx, id))

	_, err := s.GetUpload(ctx, id)
	assert.Error(t, err)
}

func TestCancelUploadRefusesCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertTestUpload(t, s, "import-1")
	require.NoError(t, s.UpdateImportStatus(ctx, "import-1", StatusCompleted))

	assert.Error(t, s.CancelUpload(ctx, id))
}

// TestStallAgedScenario reproduces the spec's two aging scenarios:
// an InProgress upload with updated_at 90 minutes old is stalled
// (eligible for retry), and one with created_at 9 hours old is aged
// out (eligible to fail), with failure taking precedence when both
// conditions hold.
func TestStallAgedScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertTestUpload(t, s, "import-1")

	_, err := s.db.ExecContext(ctx, `
		UPDATE upload_record SET status = ?, created_at = ?, updated_at = ?
		WHERE id = ?
	`, StatusInProgress, time.Now().Add(-9*time.Hour).Format(time.RFC3339Nano),
		time.Now().Add(-90*time.Minute).Format(time.RFC3339Nano), id)
	require.NoError(t, err)

	inProgress, err := s.ListInProgressUploads(ctx)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)

	created, parseErr := time.Parse(time.RFC3339Nano, inProgress[0].CreatedAt)
	require.NoError(t, parseErr)
	updated, parseErr := time.Parse(time.RFC3339Nano, inProgress[0].UpdatedAt)
	require.NoError(t, parseErr)

	shouldFail := created.Add(8 * time.Hour).Before(time.Now())
	shouldRetry := updated.Add(1 * time.Hour).Before(time.Now())

	assert.True(t, shouldFail)
	assert.True(t, shouldRetry)
	// Per spec.md §4.5, should_fail wins when both are true.
}
