// Package cacheengine is the timeseries subsystem's core: given a
// request over one or more channels, it determines which pages are
// already cached, accepts streamed segments to fill the gaps, and
// hands back a lazily-iterated, chunked, NaN-compacted response.
//
// Grounded on the teacher's pkg/cache package for the general
// "plan what's missing, then iterate chunked results" shape of a
// read-through cache, generalized here to content-addressed,
// window-indexed pages instead of whole-object blobs.
package cacheengine

import (
	"context"
	"fmt"
	"math"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/telemetry"
	"github.com/pennsieve/agent/pkg/pagefile"
	"github.com/pennsieve/agent/pkg/store"
)

// Channel identifies one timeseries channel and its sample rate.
type Channel struct {
	ID     string
	RateHz float64
}

// Request describes a single timeseries read across one or more
// channels of a package.
type Request struct {
	Package   string
	Channels  []Channel
	StartUs   int64
	EndUs     int64
	ChunkSize int64
	UseCache  bool
}

// PageRequest is a single cache-miss the caller must fetch from the
// remote streaming service.
type PageRequest struct {
	ChannelID string
	PageStart int64
	PageEnd   int64
}

// Segment is one block of samples returned by the remote streaming
// service in response to a PageRequest.
type Segment struct {
	Source       string
	StartTs      int64
	SamplePeriod int64
	Data         []float64
}

// DataPoint is a single non-NaN sample emitted by the chunk iterator.
type DataPoint struct {
	TimeUs int64
	Value  float64
}

// Engine plans and fulfills timeseries cache requests against a
// page-file store rooted at BasePath.
type Engine struct {
	store    *store.Store
	basePath string
	pageSize int
}

// New constructs an Engine.
func New(st *store.Store, basePath string, pageSize int) *Engine {
	return &Engine{store: st, basePath: basePath, pageSize: pageSize}
}

type channelPlan struct {
	channel      Channel
	normalizedID string
	window       int64
	period       int64
	firstIndex   int64
	lastExcl     int64
	requested    []int64 // indices that were cache misses at Plan time
	nanIndices   map[int64]bool
	maxCompleted int64 // -1 sentinel: no real data written yet this request
}

// Response is the in-flight state of one Plan call: the set of cache
// misses to fetch, plus enough per-channel bookkeeping to record the
// outcome and iterate chunks once segments have been supplied. It is
// not safe for concurrent use by more than one goroutine — each
// Request owns exactly one Response (spec.md §5).
type Response struct {
	engine       *Engine
	req          Request
	pageRequests []PageRequest
	byNormID     map[string]*channelPlan

	// chunk iterator cursor
	cursor int64
}

// pageRecordID is the page_record.id / relative-path key shared
// between the store and pagefile addressing schemes.
func pageRecordID(pkg, normChannel string, pageSize int, index int64) string {
	return fmt.Sprintf("%s/%s/%d/%d", pkg, normChannel, pageSize, index)
}

// Plan computes the uncached page requests for req and returns a
// Response the caller drains in three further steps: IntakeSegment for
// each streamed segment, then RecordPageRequests, then Next to read
// chunks.
func (e *Engine) Plan(ctx context.Context, req Request) (*Response, error) {
	ctx, span := telemetry.StartCacheSpan(ctx, "plan", telemetry.PackageID(req.Package))
	defer span.End()

	resp := &Response{
		engine:   e,
		req:      req,
		byNormID: make(map[string]*channelPlan, len(req.Channels)),
		cursor:   req.StartUs,
	}

	for _, ch := range req.Channels {
		normID := pagefile.NormalizeChannel(ch.ID)
		period := int64(math.Round(1e6 / ch.RateHz))
		window := pagefile.Window(e.pageSize, ch.RateHz)
		first, lastExcl := pagefile.IndexRange(req.StartUs, req.EndUs, window)

		plan := &channelPlan{
			channel: ch, normalizedID: normID, window: window, period: period,
			firstIndex: first, lastExcl: lastExcl,
			nanIndices: make(map[int64]bool), maxCompleted: -1,
		}
		resp.byNormID[normID] = plan

		for idx := first; idx < lastExcl; idx++ {
			id := pageRecordID(req.Package, normID, e.pageSize, idx)

			if err := e.store.TouchLastUsed(ctx, id); err != nil && agenterrors.CodeOf(err) != agenterrors.CodeNotFound {
				telemetry.RecordError(ctx, err)
				return nil, err
			}

			page, err := e.store.GetPage(ctx, id)
			cached := err == nil && page.Complete
			if !req.UseCache || !cached {
				start, end := pagefile.Bounds(idx, window)
				resp.pageRequests = append(resp.pageRequests, PageRequest{
					ChannelID: ch.ID, PageStart: start, PageEnd: end,
				})
				plan.requested = append(plan.requested, idx)
			}
		}
	}

	return resp, nil
}

// PageRequests returns the cache misses computed by Plan.
func (r *Response) PageRequests() []PageRequest {
	return r.pageRequests
}
