// Package collector is the periodic cache-eviction worker: it keeps
// the on-disk page cache under its configured soft and hard budgets
// by deleting the least-recently-used pages, oldest first.
//
// Grounded on the teacher's pkg/cache/flusher.Flusher (ticker-driven
// sweep against idle/age thresholds) and pkg/cache/eviction.go
// (sorted-by-last-access deletion loop), adapted from whole-object
// cache entries to page rows plus their PageFile.
package collector

import (
	"context"
	"time"

	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/internal/metrics"
	"github.com/pennsieve/agent/internal/telemetry"
	"github.com/pennsieve/agent/pkg/pagefile"
	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
	"github.com/pennsieve/agent/pkg/store"
)

const (
	// defaultInterval is the tick period T between cycles.
	defaultInterval = 15 * time.Minute
	// firstTickDelay defers the very first cycle after startup.
	firstTickDelay = 30 * time.Second
	// softCyclesPerHard is how many soft cycles run before one hard
	// cycle, repeating indefinitely.
	softCyclesPerHard = 5

	softAgeThreshold = 7 * 24 * time.Hour
	hardAgeThreshold = 12 * time.Hour
)

// Collector is the periodic eviction worker.
type Collector struct {
	store      *store.Store
	basePath   string
	softBudget int64
	hardBudget int64
	interval   time.Duration
	firstDelay time.Duration
	sender     registry.EventSender
	metrics    *metrics.CacheMetrics
}

// New constructs a Collector. sender may be nil (events are dropped).
func New(st *store.Store, basePath string, softBudget, hardBudget int64, sender registry.EventSender, m *metrics.CacheMetrics) *Collector {
	return &Collector{
		store: st, basePath: basePath, softBudget: softBudget, hardBudget: hardBudget,
		interval: defaultInterval, firstDelay: firstTickDelay, sender: sender, metrics: m,
	}
}

// Run drives the collector's soft/hard cycle loop until ctx is
// cancelled.
func (c *Collector) Run(ctx context.Context) error {
	timer := time.NewTimer(c.firstDelay)
	defer timer.Stop()

	cyclesSinceHard := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if cyclesSinceHard < softCyclesPerHard {
				c.runSoftCycle(ctx)
				cyclesSinceHard++
			} else {
				c.runHardCycle(ctx)
				cyclesSinceHard = 0
			}
			timer.Reset(c.interval)
		}
	}
}

func (c *Collector) runSoftCycle(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCollectorSweep)
	defer span.End()

	n, err := c.evict(ctx, c.softBudget, softAgeThreshold, c.store.GetSoftAgedPages)
	if err != nil {
		// Soft-cycle failures are logged and counted as a normal step;
		// the five-cycle counter still advances.
		logger.Warn("soft eviction cycle failed", "error", err)
		return
	}
	logger.Info("soft eviction cycle complete", "evicted", n)
	if c.metrics != nil {
		c.metrics.RecordEviction("soft", n)
	}
}

func (c *Collector) runHardCycle(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCollectorSweep)
	defer span.End()

	n, err := c.evict(ctx, c.hardBudget, hardAgeThreshold, c.store.GetHardAgedPages)
	if err != nil {
		logger.Error("hard eviction cycle failed", "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordEviction("hard", n)
	}

	total, err := c.store.GetTotalSize(ctx)
	if err != nil {
		logger.Warn("failed to check cache size after hard eviction", "error", err)
		return
	}
	if total > c.hardBudget {
		// Run resets the five-soft-cycle counter after every hard
		// cycle, including this failed one.
		msg := "cache exceeds hard budget after eviction: NoSpace"
		logger.Error(msg, "total_size", total, "hard_budget", c.hardBudget)
		if c.sender != nil {
			c.sender.SendEvent(statushub.NewErrorEvent(msg))
		}
	}
	logger.Info("hard eviction cycle complete", "evicted", n, "total_size", total)
}

type pageFetcher func(ctx context.Context, olderThan string) ([]store.PageRecord, error)

// evict drains pages returned by fetch, oldest first, until the
// cache's total size is at or under budget.
func (c *Collector) evict(ctx context.Context, budget int64, age time.Duration, fetch pageFetcher) (int, error) {
	cutoff := time.Now().Add(-age).UTC().Format(time.RFC3339Nano)

	total, err := c.store.GetTotalSize(ctx)
	if err != nil {
		return 0, err
	}
	if total <= budget {
		return 0, nil
	}

	pages, err := fetch(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, p := range pages {
		if total <= budget {
			break
		}
		if err := c.store.DeletePage(ctx, p.ID); err != nil {
			logger.Warn("failed to delete aged page row", "page_id", p.ID, "error", err)
			continue
		}
		if err := pagefile.DeleteByID(c.basePath, p.ID); err != nil {
			logger.Warn("failed to delete aged page file", "page_id", p.ID, "error", err)
		}
		total -= p.Size
		evicted++
	}
	return evicted, nil
}
