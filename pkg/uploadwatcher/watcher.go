// Package uploadwatcher is an observational worker: it never mutates
// upload state, only renders it. It snapshots active uploads plus
// anything queued since it started, at a fixed interval, and can
// optionally end the agent process once every upload it has ever seen
// reaches a terminal state.
//
// Grounded on the teacher's ticker-driven worker-loop idiom shared by
// pkg/cache/flusher.Flusher and pkg/payload/transfer/queue.go, reduced
// here to a read-only render loop (no eviction/transfer side effects).
package uploadwatcher

import (
	"context"
	"errors"
	"time"

	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/pkg/registry"
	"github.com/pennsieve/agent/pkg/statushub"
	"github.com/pennsieve/agent/pkg/store"
)

// StopMode controls what happens once every watched upload reaches a
// terminal state.
type StopMode string

const (
	// StopModeOnFinish sends SystemShutdown and ends Run once every
	// known upload is Completed or Failed.
	StopModeOnFinish StopMode = "OnFinish"
	// StopModeNever keeps watching indefinitely.
	StopModeNever StopMode = "Never"
)

const (
	defaultInterval = 500 * time.Millisecond
	// fewFilesThreshold is the cutoff at or below which the watcher renders
	// one progress line per file rather than a single aggregate.
	fewFilesThreshold = 30
)

// ErrUploadsFailed is returned by Run when it stops under
// StopModeOnFinish and at least one watched upload ended Failed,
// signaling the caller (cmd/agent) to exit non-zero.
var ErrUploadsFailed = errors.New("uploadwatcher: one or more uploads failed")

// Watcher renders upload progress for the UI/CLI without driving any
// state transitions itself.
type Watcher struct {
	store      *store.Store
	stopMode   StopMode
	sender     registry.EventSender
	interval   time.Duration
	watchStart string
}

// New constructs a Watcher. sender may be nil (renders are dropped).
func New(st *store.Store, stopMode StopMode, sender registry.EventSender) *Watcher {
	return &Watcher{store: st, stopMode: stopMode, sender: sender, interval: defaultInterval}
}

// Run records the watch start time on entry, then snapshots and renders
// the watched uploads every interval until ctx is cancelled or, under
// StopModeOnFinish, every watched upload reaches a terminal state.
func (w *Watcher) Run(ctx context.Context) error {
	if w.watchStart == "" {
		w.watchStart = time.Now().UTC().Format(time.RFC3339Nano)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, failed, err := w.tick(ctx)
			if err != nil {
				logger.Warn("upload watcher tick failed", "error", err)
				continue
			}
			if done && w.stopMode == StopModeOnFinish {
				w.sendEvent(statushub.NewSystemShutdownEvent("all uploads finished"))
				if failed {
					return ErrUploadsFailed
				}
				return nil
			}
		}
	}
}

// tick fetches one snapshot, renders it, and reports whether every
// row in it has reached a terminal state (and whether any failed).
// An empty snapshot is never "done": nothing has been queued yet.
func (w *Watcher) tick(ctx context.Context) (done bool, anyFailed bool, err error) {
	records, err := w.store.ListWatchedUploads(ctx, w.watchStart)
	if err != nil {
		return false, false, err
	}
	if len(records) == 0 {
		return false, false, nil
	}

	w.render(records)

	allTerminal := true
	for _, r := range records {
		switch r.Status {
		case store.StatusCompleted:
		case store.StatusFailed:
			anyFailed = true
		default:
			allTerminal = false
		}
	}
	return allTerminal, anyFailed, nil
}

func (w *Watcher) render(records []store.UploadRecord) {
	if len(records) <= fewFilesThreshold {
		files := make([]statushub.UploadFileProgress, 0, len(records))
		for _, r := range records {
			files = append(files, statushub.UploadFileProgress{
				ImportID: r.ImportID, Path: r.FilePath, Status: string(r.Status), Progress: r.Progress,
			})
		}
		w.sendEvent(statushub.NewUploadWatchEvent(files))
		return
	}

	var completed, failed int
	var totalProgress int64
	for _, r := range records {
		switch r.Status {
		case store.StatusCompleted:
			completed++
		case store.StatusFailed:
			failed++
		}
		totalProgress += r.Progress
	}
	w.sendEvent(statushub.NewAggregateUploadWatchEvent(len(records), completed, failed, totalProgress/int64(len(records))))
}

func (w *Watcher) sendEvent(event any) {
	if w.sender != nil {
		w.sender.SendEvent(event)
	}
}
