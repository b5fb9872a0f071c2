package bars

import (
	"time"

	"github.com/pkg/errors"
)

var (
	unixEpoch   = time.Unix(0, 0).UTC()
	firstMonday = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)
)

const week = 7 * 24 * time.Hour

// BucketStart returns the left edge of the interval bucket containing t.
// Buckets are multiples of interval counted from the Unix epoch in t's own
// zone offset, so hourly buckets start at the top of the hour and daily
// buckets at local midnight. Whole-week intervals count from Monday
// 1970-01-05 instead, so weekly buckets start on Monday.
func BucketStart(t time.Time, interval time.Duration) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second

	anchor := unixEpoch
	if interval%week == 0 {
		anchor = firstMonday
	}

	// floor division so times before the anchor land in the right bucket
	d := t.Add(shift).Sub(anchor)
	n := d / interval
	if d%interval < 0 {
		n--
	}
	return anchor.Add(n*interval - shift).In(t.Location())
}

// AggregateOHLC groups ticks into half-open buckets of the given width and
// reduces each populated bucket to one bar. Bars come back in ascending
// bucket order and empty buckets are never emitted.
func AggregateOHLC(ticks []Tick, interval time.Duration) ([]TimeBar, error) {
	if interval <= 0 {
		return nil, errors.Wrapf(ErrInvalidInterval, "bucket width %s", interval)
	}
	if err := validateTicks(ticks); err != nil {
		return nil, err
	}

	out := make([]TimeBar, 0)
	for _, t := range ordered(ticks) {
		start := BucketStart(t.Timestamp, interval)

		n := len(out)
		if n == 0 || !out[n-1].Datetime.Equal(start) {
			out = append(out, TimeBar{
				Datetime: start,
				Open:     t.Price,
				High:     t.Price,
				Low:      t.Price,
			})
			n++
		}

		bar := &out[n-1]
		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
		bar.Close = t.Price
		bar.Volume += t.Size
	}
	return out, nil
}

// FillMissing returns bars with a flat zero-volume bar inserted for every
// empty bucket between the first and the last bar. Each filler repeats the
// previous close.
func FillMissing(bars []TimeBar, interval time.Duration) ([]TimeBar, error) {
	if interval <= 0 {
		return nil, errors.Wrapf(ErrInvalidInterval, "bucket width %s", interval)
	}
	if len(bars) == 0 {
		return []TimeBar{}, nil
	}

	out := make([]TimeBar, 0, len(bars))
	out = append(out, bars[0])
	for _, bar := range bars[1:] {
		prev := out[len(out)-1]
		for next := prev.Datetime.Add(interval); next.Before(bar.Datetime); next = next.Add(interval) {
			out = append(out, TimeBar{
				Datetime: next,
				Open:     prev.Close,
				High:     prev.Close,
				Low:      prev.Close,
				Close:    prev.Close,
			})
		}
		out = append(out, bar)
	}
	return out, nil
}
