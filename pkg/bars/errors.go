package bars

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInterval is returned for unparsable interval tokens and non-positive durations.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidVolumeSize is returned when the volume bar target is not positive.
	ErrInvalidVolumeSize = errors.New("invalid volume size")
	// ErrInvalidTick is returned for ticks with a negative size or a non-finite price.
	ErrInvalidTick = errors.New("invalid tick")
)

// validateTicks fails fast on the first corrupt row.
func validateTicks(ticks []Tick) error {
	for i, t := range ticks {
		if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
			return errors.Wrapf(ErrInvalidTick, "tick %d (%s at %s): non-finite price %v",
				i, t.Symbol, t.Timestamp, t.Price)
		}
		if math.IsNaN(t.Size) || math.IsInf(t.Size, 0) || t.Size < 0 {
			return errors.Wrapf(ErrInvalidTick, "tick %d (%s at %s): bad size %v",
				i, t.Symbol, t.Timestamp, t.Size)
		}
	}
	return nil
}

// ordered returns ticks sorted by timestamp. Already ordered input is
// returned as is; otherwise a stably sorted copy is made so the caller's
// slice is never touched.
func ordered(ticks []Tick) []Tick {
	if sort.SliceIsSorted(ticks, func(i, j int) bool {
		return ticks[i].Timestamp.Before(ticks[j].Timestamp)
	}) {
		return ticks
	}

	cp := make([]Tick, len(ticks))
	copy(cp, ticks)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Timestamp.Before(cp[j].Timestamp)
	})
	return cp
}
