package bars

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Unit is the single-letter suffix of an interval token.
type Unit byte

const (
	Seconds Unit = 's'
	Minutes Unit = 'm'
	Hours   Unit = 'h'
	Days    Unit = 'd'
	Weeks   Unit = 'w'
)

const day = 24 * time.Hour

var unitDurations = map[Unit]time.Duration{
	Seconds: time.Second,
	Minutes: time.Minute,
	Hours:   time.Hour,
	Days:    day,
	Weeks:   7 * day,
}

// Duration returns the fixed length of one unit, or 0 for an unknown unit.
func (u Unit) Duration() time.Duration {
	return unitDurations[u]
}

func (u Unit) String() string {
	return string(u)
}

// Interval is a decoded single-unit token such as "5m" or "1d".
type Interval struct {
	Count int
	Unit  Unit
}

// ParseInterval decodes a token made of an integer count followed by one of
// s, m, h, d or w. Composite tokens like "1d2h" are rejected.
func ParseInterval(token string) (Interval, error) {
	token = strings.TrimSpace(token)
	if len(token) < 2 {
		return Interval{}, errors.Wrapf(ErrInvalidInterval, "token %q", token)
	}

	unit := Unit(token[len(token)-1])
	if unit.Duration() == 0 {
		return Interval{}, errors.Wrapf(ErrInvalidInterval, "unknown unit in %q", token)
	}

	count, err := strconv.Atoi(token[:len(token)-1])
	if err != nil {
		return Interval{}, errors.Wrapf(ErrInvalidInterval, "count in %q: %v", token, err)
	}
	if count <= 0 {
		return Interval{}, errors.Wrapf(ErrInvalidInterval, "non-positive count in %q", token)
	}
	if int64(count) > math.MaxInt64/int64(unit.Duration()) {
		return Interval{}, errors.Wrapf(ErrInvalidInterval, "%q overflows", token)
	}

	return Interval{Count: count, Unit: unit}, nil
}

// Duration returns the total length of the interval.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Count) * i.Unit.Duration()
}

func (i Interval) String() string {
	return strconv.Itoa(i.Count) + i.Unit.String()
}

// DecodeInterval converts a single-unit token to a duration.
func DecodeInterval(token string) (time.Duration, error) {
	iv, err := ParseInterval(token)
	if err != nil {
		return 0, err
	}
	return iv.Duration(), nil
}

// EncodeInterval formats d as concatenated non-zero day, hour, minute and
// second components, e.g. "1d2h30m". Weeks are expressed in days and
// sub-second remainders are dropped. Durations under one second have no
// representation and fail with ErrInvalidInterval.
func EncodeInterval(d time.Duration) (string, error) {
	if d < time.Second {
		return "", errors.Wrapf(ErrInvalidInterval, "cannot encode %s", d)
	}

	days := int64(d / day)
	rem := int64((d % day) / time.Second)
	hours := rem / 3600
	minutes := (rem % 3600) / 60
	seconds := rem % 60

	var b strings.Builder
	for _, c := range []struct {
		n    int64
		unit Unit
	}{
		{days, Days},
		{hours, Hours},
		{minutes, Minutes},
		{seconds, Seconds},
	} {
		if c.n > 0 {
			b.WriteString(strconv.FormatInt(c.n, 10))
			b.WriteByte(byte(c.unit))
		}
	}
	return b.String(), nil
}
