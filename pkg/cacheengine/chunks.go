package cacheengine

import (
	"context"
	"math"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/pkg/pagefile"
)

// Chunk is one fixed-duration slice of the response, keyed by the
// caller-supplied (unnormalized) channel id. A channel with no
// non-NaN samples in this window is omitted entirely (client
// compaction).
type Chunk struct {
	Points map[string][]DataPoint
}

// Next produces the next chunk of the response, or ok=false once the
// request's end time is reached or a chunk would contain no data
// points for any channel. It is safe to call repeatedly until ok is
// false; Next is not safe for concurrent use.
func (r *Response) Next(ctx context.Context) (chunk *Chunk, ok bool, err error) {
	if r.cursor > r.req.EndUs {
		return nil, false, nil
	}

	points := make(map[string][]DataPoint, len(r.byNormID))

	for _, plan := range r.byNormID {
		n := int(r.req.ChunkSize / plan.period)
		if n <= 0 {
			continue
		}

		samples, err := r.readSamples(ctx, plan, r.cursor, n)
		if err != nil {
			return nil, false, err
		}

		var out []DataPoint
		for i, v := range samples {
			if math.IsNaN(v) {
				continue
			}
			out = append(out, DataPoint{TimeUs: r.cursor + int64(i)*plan.period, Value: v})
		}
		if len(out) > 0 {
			points[plan.channel.ID] = out
		}
	}

	r.cursor += r.req.ChunkSize

	if len(points) == 0 {
		return nil, false, nil
	}
	return &Chunk{Points: points}, true, nil
}

// readSamples reads n consecutive samples for plan starting at
// startUs, walking across page boundaries as needed and treating a
// not-yet-created page file as all-NaN.
func (r *Response) readSamples(ctx context.Context, plan *channelPlan, startUs int64, n int) ([]float64, error) {
	out := make([]float64, 0, n)
	remaining := n
	pos := startUs
	idx := floorDiv(startUs, plan.window)

	for remaining > 0 {
		pf := pagefile.Open(r.engine.basePath, r.req.Package, plan.normalizedID, r.engine.pageSize, idx, plan.window)

		offset, err := pf.Offset(pos, plan.period)
		if err != nil {
			return nil, agenterrors.Wrap(agenterrors.CodeInvalidArgument, "invalid page during chunk read", err)
		}

		count := r.engine.pageSize - offset
		if count > remaining {
			count = remaining
		}

		buf := make([]float64, count)
		if err := pf.Read(offset, buf); err != nil {
			if agenterrors.CodeOf(err) == agenterrors.CodeNotFound {
				for i := range buf {
					buf[i] = math.NaN()
				}
			} else {
				return nil, err
			}
		}

		out = append(out, buf...)
		remaining -= count
		pos += int64(count) * plan.period
		idx++
	}

	return out, nil
}
