package cacheengine

import (
	"context"
	"time"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/telemetry"
	"github.com/pennsieve/agent/pkg/pagefile"
	"github.com/pennsieve/agent/pkg/store"
)

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func floorDiv(a, b int64) int64 { return a / b }

// IntakeSegment folds one streamed segment into the pages it touches.
// An empty segment marks its page as a known gap (NaN-filled); a
// non-empty one is walked left-to-right across however many pages it
// spans, writing real samples into each PageFile it touches.
//
// A segment whose source does not match any channel in this Response
// is ignored: the remote service may multiplex several in-flight
// requests and a caller draining more than one Response concurrently
// will see segments belonging to its sibling.
func (r *Response) IntakeSegment(ctx context.Context, seg Segment) error {
	normSource := pagefile.NormalizeChannel(seg.Source)
	plan, ok := r.byNormID[normSource]
	if !ok {
		return nil
	}

	if len(seg.Data) == 0 {
		idx := floorDiv(seg.StartTs, plan.window)
		plan.nanIndices[idx] = true
		return nil
	}

	remaining := seg.Data
	pos := seg.StartTs
	idx := floorDiv(seg.StartTs, plan.window)

	for len(remaining) > 0 {
		pf := pagefile.Open(r.engine.basePath, r.req.Package, plan.normalizedID, r.engine.pageSize, idx, plan.window)

		offset, err := pf.Offset(pos, seg.SamplePeriod)
		if err != nil {
			return agenterrors.Wrap(agenterrors.CodeInvalidArgument, "invalid page for segment intake", err)
		}

		n := r.engine.pageSize - offset
		if n > len(remaining) {
			n = len(remaining)
		}

		if err := pf.Write(offset, remaining[:n]); err != nil {
			return agenterrors.Wrap(agenterrors.CodeInvalidArgument, "invalid page write during segment intake", err)
		}

		if idx > plan.maxCompleted {
			plan.maxCompleted = idx
		}

		remaining = remaining[n:]
		pos += int64(n) * seg.SamplePeriod
		idx++
	}

	return nil
}

// RecordPageRequests persists the outcome of every page that was
// actually fetched this round (the cache misses computed by Plan,
// tracked per channel in plan.requested) once all segments for this
// Response have been consumed: a page ends up NaN-flagged if intake
// ever saw an empty segment covering it, and complete if a later page
// in the same channel is known to hold real data (meaning this page's
// window has closed and will never grow). Pages that were already
// cached at Plan time are never touched here — they were never
// fetched, so nothing observed by IntakeSegment describes them.
func (r *Response) RecordPageRequests(ctx context.Context) error {
	ctx, span := telemetry.StartCacheSpan(ctx, "record_page_requests", telemetry.PackageID(r.req.Package))
	defer span.End()

	for _, plan := range r.byNormID {
		for _, idx := range plan.requested {
			id := pageRecordID(r.req.Package, plan.normalizedID, r.engine.pageSize, idx)
			nanFilled := plan.nanIndices[idx]
			complete := plan.maxCompleted > idx

			size := int64(0)
			if !nanFilled && plan.maxCompleted >= idx {
				size = int64(r.engine.pageSize) * 8
			}

			if err := r.engine.store.UpsertPage(ctx, store.PageRecord{
				ID: id, NanFilled: nanFilled, Complete: complete, Size: size, LastUsed: nowTimestamp(),
			}); err != nil {
				telemetry.RecordError(ctx, err)
				return err
			}
		}
	}
	return nil
}
