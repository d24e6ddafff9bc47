package uploadwatcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
	"github.com/pennsieve/agent/pkg/store"
)

type recordingSender struct {
	events []any
}

func (r *recordingSender) SendEvent(event any) {
	r.events = append(r.events, event)
}

func newTestWatcher(t *testing.T, stopMode StopMode, sender *recordingSender) (*Watcher, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "agent.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var eventSender registry.EventSender
	if sender != nil {
		eventSender = sender
	}

	w := New(st, stopMode, eventSender)
	w.watchStart = time.Now().UTC().Format(time.RFC3339Nano)
	return w, st
}

func insertUpload(t *testing.T, st *store.Store, importID, path string) {
	t.Helper()
	_, err := st.InsertUpload(context.Background(), store.UploadRecord{
		FilePath: path, DatasetID: "N:dataset:1", ImportID: importID, OrganizationID: "N:organization:1",
	})
	require.NoError(t, err)
}

func TestTickRendersPerFileBelowThreshold(t *testing.T) {
	sender := &recordingSender{}
	w, st := newTestWatcher(t, StopModeNever, sender)
	ctx := context.Background()

	insertUpload(t, st, "import-1", "/tmp/a.bin")

	done, failed, err := w.tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, failed)
	require.Len(t, sender.events, 1)
	ev, ok := sender.events[0].(statushub.UploadWatchEvent)
	require.True(t, ok)
	assert.Equal(t, "per_file", ev.Mode)
	require.Len(t, ev.Files, 1)
	assert.Equal(t, "/tmp/a.bin", ev.Files[0].Path)
}

func TestTickRendersAggregateAboveThreshold(t *testing.T) {
	sender := &recordingSender{}
	w, st := newTestWatcher(t, StopModeNever, sender)
	ctx := context.Background()

	for i := 0; i < fewFilesThreshold+1; i++ {
		insertUpload(t, st, "import-many", "/tmp/file")
	}

	_, _, err := w.tick(ctx)
	require.NoError(t, err)
	require.Len(t, sender.events, 1)
	ev, ok := sender.events[0].(statushub.UploadWatchEvent)
	require.True(t, ok)
	assert.Equal(t, "aggregate", ev.Mode)
	assert.Equal(t, fewFilesThreshold+1, ev.Total)
}

func TestTickNotDoneWithNothingQueued(t *testing.T) {
	w, _ := newTestWatcher(t, StopModeOnFinish, nil)
	done, failed, err := w.tick(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, failed)
}

func TestTickDoneWhenAllTerminal(t *testing.T) {
	w, st := newTestWatcher(t, StopModeOnFinish, nil)
	ctx := context.Background()

	insertUpload(t, st, "import-done", "/tmp/a.bin")
	require.NoError(t, st.UpdateImportStatusAndProgress(ctx, "import-done", store.StatusCompleted, 100))

	done, failed, err := w.tick(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.False(t, failed)
}

func TestTickReportsFailedAmongTerminal(t *testing.T) {
	w, st := newTestWatcher(t, StopModeOnFinish, nil)
	ctx := context.Background()

	insertUpload(t, st, "import-ok", "/tmp/a.bin")
	require.NoError(t, st.UpdateImportStatusAndProgress(ctx, "import-ok", store.StatusCompleted, 100))
	insertUpload(t, st, "import-bad", "/tmp/b.bin")
	require.NoError(t, st.UpdateImportStatus(ctx, "import-bad", store.StatusFailed))

	done, failed, err := w.tick(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, failed)
}

func TestRunStopsOnFinishAndReturnsErrUploadsFailed(t *testing.T) {
	sender := &recordingSender{}
	w, st := newTestWatcher(t, StopModeOnFinish, sender)
	w.interval = time.Millisecond

	insertUpload(t, st, "import-bad", "/tmp/b.bin")
	require.NoError(t, st.UpdateImportStatus(context.Background(), "import-bad", store.StatusFailed))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, ErrUploadsFailed)

	var sawShutdown bool
	for _, ev := range sender.events {
		if _, ok := ev.(statushub.SystemShutdownEvent); ok {
			sawShutdown = true
		}
	}
	assert.True(t, sawShutdown, "Run should emit SystemShutdown before stopping")
}

func TestRunContinuesPastCompletionWithStopModeNever(t *testing.T) {
	w, st := newTestWatcher(t, StopModeNever, nil)
	w.interval = time.Millisecond

	insertUpload(t, st, "import-done", "/tmp/a.bin")
	require.NoError(t, st.UpdateImportStatusAndProgress(context.Background(), "import-done", store.StatusCompleted, 100))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "Never mode should keep running past completion")
}
