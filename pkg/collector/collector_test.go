package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/store"
)

type recordingSender struct {
	events []any
}

func (r *recordingSender) SendEvent(event any) {
	r.events = append(r.events, event)
}

func newTestCollector(t *testing.T, softBudget, hardBudget int64, sender *recordingSender) (*Collector, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "agent.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	// A nil *recordingSender boxed directly into the registry.EventSender
	// parameter would produce a non-nil interface wrapping a nil pointer;
	// pass an untyped nil explicitly so Collector's own nil check works.
	var eventSender registry.EventSender
	if sender != nil {
		eventSender = sender
	}

	c := New(st, filepath.Join(dir, "cache"), softBudget, hardBudget, eventSender, nil)
	return c, st
}

// TestSoftRecycleScenario reproduces the spec's worked example:
// page_size=150/soft_budget=100 with rows A(150, 20 weeks old) and
// B(50, 10 weeks old). Both are past the one-week soft-age cutoff;
// A, the oldest, is evicted first, which brings the total to 50 (within
// budget), so B is kept.
func TestSoftRecycleScenario(t *testing.T) {
	c, st := newTestCollector(t, 100, 1000, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.UpsertPage(ctx, store.PageRecord{
		ID: "pkg/chan/150/0", Size: 150, LastUsed: now.Add(-20 * 7 * 24 * time.Hour).Format(time.RFC3339Nano),
	}))
	require.NoError(t, st.UpsertPage(ctx, store.PageRecord{
		ID: "pkg/chan/150/1", Size: 50, LastUsed: now.Add(-10 * 7 * 24 * time.Hour).Format(time.RFC3339Nano),
	}))

	c.runSoftCycle(ctx)

	total, err := st.GetTotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 50, total)

	_, err = st.GetPage(ctx, "pkg/chan/150/0")
	assert.Error(t, err, "page A should have been evicted")
}

// TestHardRecycleReportsNoSpace reproduces the spec's worked example:
// hard_budget=10 with total size 200 across two rows, only one of
// which is hard-aged. Draining every hard-aged page still leaves the
// cache over budget, so the cycle reports NoSpace without crashing.
func TestHardRecycleReportsNoSpace(t *testing.T) {
	sender := &recordingSender{}
	c, st := newTestCollector(t, 100, 10, sender)
	ctx := context.Background()

	old := time.Now().Add(-13 * time.Hour).Format(time.RFC3339Nano)
	recent := time.Now().Format(time.RFC3339Nano)
	require.NoError(t, st.UpsertPage(ctx, store.PageRecord{ID: "pkg/chan/150/0", Size: 100, LastUsed: old}))
	require.NoError(t, st.UpsertPage(ctx, store.PageRecord{ID: "pkg/chan/150/1", Size: 100, LastUsed: recent}))

	c.runHardCycle(ctx)

	total, err := st.GetTotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 100, total, "only the hard-aged page is evicted")
	require.Len(t, sender.events, 1, "exceeding the hard budget after eviction reports NoSpace")
}

func TestSoftCycleNoOpWhenUnderBudget(t *testing.T) {
	c, st := newTestCollector(t, 1000, 2000, nil)
	ctx := context.Background()

	require.NoError(t, st.UpsertPage(ctx, store.PageRecord{
		ID: "pkg/chan/150/0", Size: 10, LastUsed: time.Now().Add(-30 * 24 * time.Hour).Format(time.RFC3339Nano),
	}))

	c.runSoftCycle(ctx)

	total, err := st.GetTotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total, "nothing evicted while under budget")
}

func TestRunAdvancesThroughSoftAndHardCycles(t *testing.T) {
	c, _ := newTestCollector(t, 1000, 2000, nil)
	c.firstDelay = time.Millisecond
	c.interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
