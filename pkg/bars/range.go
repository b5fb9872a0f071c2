package bars

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// TickQuery asks a tick source for one symbol's ticks in
// [Start-Lookback, End), sorted ascending by timestamp.
type TickQuery struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Lookback time.Duration
}

// From is the inclusive lower bound the source must answer from.
func (q TickQuery) From() time.Time {
	return q.Start.Add(-q.Lookback)
}

// Contains reports whether ts falls inside the query window.
func (q TickQuery) Contains(ts time.Time) bool {
	return !ts.Before(q.From()) && ts.Before(q.End)
}

// TickSource supplies ticks for a query. An empty result is not an error.
type TickSource interface {
	FetchTicks(ctx context.Context, q TickQuery) ([]Tick, error)
}

// TickSourceFunc adapts a function to TickSource.
type TickSourceFunc func(ctx context.Context, q TickQuery) ([]Tick, error)

func (f TickSourceFunc) FetchTicks(ctx context.Context, q TickQuery) ([]Tick, error) {
	return f(ctx, q)
}

// RangeRequest describes a time bar computation over [Start, End).
type RangeRequest struct {
	Symbol   string
	Interval time.Duration
	Start    time.Time
	End      time.Time

	// FetchInterval splits the range into sub-ranges of this width. Zero
	// fetches the whole range at once.
	FetchInterval time.Duration
	// FillMissing inserts flat bars for empty buckets after concatenation.
	FillMissing bool
}

// FetchOHLC computes time bars for req, fetching ticks from src one
// sub-range at a time when FetchInterval is set.
//
// A bucket straddling a sub-range boundary belongs to the sub-range that
// contains its right edge. Every sub-range after the first is queried with a
// look-back of one bucket width (clipped to req.Start) so that bucket is
// rebuilt from all of its ticks, and the partial copy seen by the earlier
// sub-range is discarded. The result equals a single AggregateOHLC over the
// whole range.
func FetchOHLC(ctx context.Context, src TickSource, req RangeRequest) ([]TimeBar, error) {
	if req.Interval <= 0 {
		return nil, errors.Wrapf(ErrInvalidInterval, "bucket width %s", req.Interval)
	}
	if req.FetchInterval < 0 {
		return nil, errors.Wrapf(ErrInvalidInterval, "fetch interval %s", req.FetchInterval)
	}
	if !req.Start.Before(req.End) {
		return []TimeBar{}, nil
	}

	var out []TimeBar
	if req.FetchInterval == 0 {
		bars, err := fetchAndAggregate(ctx, src, TickQuery{Symbol: req.Symbol, Start: req.Start, End: req.End}, req.Interval)
		if err != nil {
			return nil, err
		}
		out = bars
	} else {
		out = make([]TimeBar, 0)
		for subStart := req.Start; subStart.Before(req.End); {
			subEnd := subStart.Add(req.FetchInterval)
			if subEnd.After(req.End) {
				subEnd = req.End
			}
			last := subEnd.Equal(req.End)

			lookback := req.Interval
			if gap := subStart.Sub(req.Start); gap < lookback {
				lookback = gap
			}

			bars, err := fetchAndAggregate(ctx, src, TickQuery{
				Symbol:   req.Symbol,
				Start:    subStart,
				End:      subEnd,
				Lookback: lookback,
			}, req.Interval)
			if err != nil {
				return nil, err
			}

			for _, bar := range bars {
				bucketEnd := bar.Datetime.Add(req.Interval)
				if !bucketEnd.After(subStart) {
					continue // owned by an earlier sub-range
				}
				if !last && bucketEnd.After(subEnd) {
					continue // rebuilt by a later sub-range
				}
				out = append(out, bar)
			}
			subStart = subEnd
		}
	}

	if req.FillMissing {
		return FillMissing(out, req.Interval)
	}
	return out, nil
}

func fetchAndAggregate(ctx context.Context, src TickSource, q TickQuery, interval time.Duration) ([]TimeBar, error) {
	ticks, err := src.FetchTicks(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s [%s, %s)", q.Symbol, q.From(), q.End)
	}

	// rows outside the window belong to another sub-range
	inWindow := ticks[:0:0]
	for _, t := range ticks {
		if q.Contains(t.Timestamp) {
			inWindow = append(inWindow, t)
		}
	}
	return AggregateOHLC(inWindow, interval)
}
