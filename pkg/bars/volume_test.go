package bars

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioTicks() []Tick {
	return []Tick{
		tick(0, 100, 5),
		tick(10*time.Second, 101, 3),
		tick(20*time.Second, 99, 2),
		tick(30*time.Second, 102, 6),
		tick(40*time.Second, 103, 4),
	}
}

// go test -v --run TestBuildVolumeBars_ClosesOnTarget
func TestBuildVolumeBars_ClosesOnTarget(t *testing.T) {
	got, carry, err := BuildVolumeBars(scenarioTicks(), 10, nil, VolumeOptions{})
	require.NoError(t, err)
	assert.Nil(t, carry)

	assert.Equal(t, []VolumeBar{
		{Open: 100, High: 101, Low: 99, Close: 99, Volume: 10, StartDate: t0, EndDate: t0.Add(20 * time.Second)},
		{Open: 102, High: 103, Low: 102, Close: 103, Volume: 10, StartDate: t0.Add(30 * time.Second), EndDate: t0.Add(40 * time.Second)},
	}, got)
}

func TestBuildVolumeBars_SplitOnBarBoundary(t *testing.T) {
	all := scenarioTicks()
	whole, _, err := BuildVolumeBars(all, 10, nil, VolumeOptions{})
	require.NoError(t, err)

	first, carry, err := BuildVolumeBars(all[:3], 10, nil, VolumeOptions{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Nil(t, carry, "5+3+2 closes exactly on the boundary")

	second, carry, err := BuildVolumeBars(all[3:], 10, nil, VolumeOptions{})
	require.NoError(t, err)
	assert.Nil(t, carry)

	assert.Equal(t, whole, append(first, second...))
}

func TestBuildVolumeBars_ResumesCarryOver(t *testing.T) {
	carry := &CarryOver{Open: 100, High: 100, Low: 100, Volume: 5, StartDate: t0}
	ticks := []Tick{
		tick(10*time.Second, 101, 3),
		tick(20*time.Second, 102, 2),
	}

	got, next, err := BuildVolumeBars(ticks, 10, carry, VolumeOptions{})
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, got, 1)
	assert.Equal(t, VolumeBar{
		Open: 100, High: 102, Low: 100, Close: 102, Volume: 10,
		StartDate: t0, EndDate: t0.Add(20 * time.Second),
	}, got[0])

	// the caller's carry-over is left untouched
	assert.Equal(t, 5.0, carry.Volume)
}

func TestBuildVolumeBars_ReturnsOpenTail(t *testing.T) {
	ticks := []Tick{tick(0, 100, 4), tick(time.Second, 98, 3)}

	got, carry, err := BuildVolumeBars(ticks, 10, nil, VolumeOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NotNil(t, carry)
	assert.Equal(t, CarryOver{
		Open: 100, High: 100, Low: 98, Volume: 7, StartDate: t0,
		LastPrice: 98, LastDate: t0.Add(time.Second),
	}, *carry)
}

func TestBuildVolumeBars_ForceCloseAtEnd(t *testing.T) {
	ticks := append(scenarioTicks(), tick(50*time.Second, 104, 1.5))

	got, carry, err := BuildVolumeBars(ticks, 10, nil, VolumeOptions{ForceCloseAtEnd: true})
	require.NoError(t, err)
	assert.Nil(t, carry)
	require.Len(t, got, 3)
	assert.Equal(t, VolumeBar{
		Open: 104, High: 104, Low: 104, Close: 104, Volume: 1.5,
		StartDate: t0.Add(50 * time.Second), EndDate: t0.Add(50 * time.Second), Partial: true,
	}, got[2])

	// a carried bar with no further ticks closes at its last tick
	c := &CarryOver{Open: 1, High: 3, Low: 1, Volume: 2, StartDate: t0, LastPrice: 2, LastDate: t0.Add(time.Minute)}
	got, carry, err = BuildVolumeBars(nil, 10, c, VolumeOptions{ForceCloseAtEnd: true})
	require.NoError(t, err)
	assert.Nil(t, carry)
	assert.Equal(t, []VolumeBar{{
		Open: 1, High: 3, Low: 1, Close: 2, Volume: 2,
		StartDate: t0, EndDate: t0.Add(time.Minute), Partial: true,
	}}, got)
}

func TestBuildVolumeBars_Empty(t *testing.T) {
	got, carry, err := BuildVolumeBars(nil, 10, nil, VolumeOptions{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Nil(t, carry)

	// carry-over passes through an empty chunk unchanged
	in := &CarryOver{Open: 1, High: 1, Low: 1, Volume: 2, StartDate: t0}
	got, carry, err = BuildVolumeBars([]Tick{}, 10, in, VolumeOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, in, carry)
}

func TestBuildVolumeBars_FloatDrift(t *testing.T) {
	// ten sizes of 0.1 sum to 0.9999999999999999
	var ticks []Tick
	for i := 0; i < 20; i++ {
		ticks = append(ticks, tick(time.Duration(i)*time.Second, 50, 0.1))
	}

	got, carry, err := BuildVolumeBars(ticks, 1.0, nil, VolumeOptions{})
	require.NoError(t, err)
	assert.Nil(t, carry)
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(9*time.Second), got[0].EndDate)
	assert.Equal(t, t0.Add(19*time.Second), got[1].EndDate)
}

func TestBuildVolumeBars_Overshoot(t *testing.T) {
	ticks := []Tick{tick(0, 10, 7), tick(time.Second, 11, 7), tick(2*time.Second, 12, 7)}

	got, carry, err := BuildVolumeBars(ticks, 10, nil, VolumeOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 14.0, got[0].Volume, "a single tick's size is never split")
	require.NotNil(t, carry)
	assert.Equal(t, 7.0, carry.Volume)
}

func TestBuildVolumeBars_Invalid(t *testing.T) {
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, _, err := BuildVolumeBars(scenarioTicks(), size, nil, VolumeOptions{})
		assert.True(t, errors.Is(err, ErrInvalidVolumeSize), "size %v", size)
	}

	ticks := scenarioTicks()
	ticks[2].Size = -2
	_, _, err := BuildVolumeBars(ticks, 10, nil, VolumeOptions{})
	assert.True(t, errors.Is(err, ErrInvalidTick))
}

func variedTicks(n int) []Tick {
	ticks := make([]Tick, 0, n)
	for i := 0; i < n; i++ {
		price := 1000 + float64((i*31)%19) - 9
		size := 0.01 * float64(1+(i*7)%13)
		ticks = append(ticks, tick(time.Duration(i)*time.Second, price, size))
	}
	return ticks
}

// Closed bars reach the target within tolerance and no tick closes two bars.
func TestBuildVolumeBars_ClosedBarsReachTarget(t *testing.T) {
	const size = 0.5
	got, _, err := BuildVolumeBars(variedTicks(400), size, nil, VolumeOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, got)

	seen := map[time.Time]bool{}
	for i, b := range got {
		assert.GreaterOrEqual(t, b.Volume, size*(1-closeEpsilon))
		assert.False(t, seen[b.EndDate], "bar %d closed by an already used tick", i)
		seen[b.EndDate] = true

		assert.LessOrEqual(t, b.Low, b.Open)
		assert.LessOrEqual(t, b.Open, b.High)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.LessOrEqual(t, b.Close, b.High)
		if i > 0 {
			assert.True(t, got[i-1].EndDate.Before(b.StartDate))
		}
	}
}

// go test -v --run TestBuildVolumeBars_SplitAnywhere
func TestBuildVolumeBars_SplitAnywhere(t *testing.T) {
	const size = 0.37
	ticks := variedTicks(120)

	whole, wholeCarry, err := BuildVolumeBars(ticks, size, nil, VolumeOptions{})
	require.NoError(t, err)

	for k := 0; k <= len(ticks); k++ {
		t.Run(fmt.Sprintf("split_%d", k), func(t *testing.T) {
			first, carry, err := BuildVolumeBars(ticks[:k], size, nil, VolumeOptions{})
			require.NoError(t, err)
			second, carry, err := BuildVolumeBars(ticks[k:], size, carry, VolumeOptions{})
			require.NoError(t, err)

			assert.Equal(t, whole, append(first, second...))
			assert.Equal(t, wholeCarry, carry)
		})
	}
}

type sliceChunk struct {
	name  string
	ticks []Tick
	err   error
}

func (c sliceChunk) Name() string           { return c.name }
func (c sliceChunk) Ticks() ([]Tick, error) { return c.ticks, c.err }

func TestBuildVolumeBarsAcross(t *testing.T) {
	ticks := variedTicks(90)
	chunks := []TickChunk{
		sliceChunk{name: "20240101", ticks: ticks[:30]},
		sliceChunk{name: "20240102"},
		sliceChunk{name: "20240103", ticks: ticks[30:]},
	}

	whole, _, err := BuildVolumeBars(ticks, 0.8, nil, VolumeOptions{ForceCloseAtEnd: true})
	require.NoError(t, err)

	var names []string
	var got []VolumeBar
	carry, err := BuildVolumeBarsAcross(chunks, 0.8, nil, true, func(name string, bars []VolumeBar) error {
		names = append(names, name)
		got = append(got, bars...)
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, carry)
	assert.Equal(t, whole, got)
	assert.NotContains(t, names, "20240102", "an empty chunk emits nothing")
	assert.True(t, got[len(got)-1].Partial)
	for _, b := range got[:len(got)-1] {
		assert.False(t, b.Partial)
	}
}

func TestBuildVolumeBarsAcross_WithoutTrailing(t *testing.T) {
	chunks := []TickChunk{
		sliceChunk{name: "a", ticks: []Tick{tick(0, 1, 6)}},
		sliceChunk{name: "b", ticks: []Tick{tick(time.Second, 2, 6), tick(2*time.Second, 3, 1)}},
	}

	var got []VolumeBar
	carry, err := BuildVolumeBarsAcross(chunks, 10, nil, false, func(_ string, bars []VolumeBar) error {
		got = append(got, bars...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0, got[0].StartDate, "bar spans the chunk boundary")
	assert.Equal(t, 12.0, got[0].Volume)
	require.NotNil(t, carry)
	assert.Equal(t, 1.0, carry.Volume)
}

func TestBuildVolumeBarsAcross_ResumesCarry(t *testing.T) {
	first := []TickChunk{sliceChunk{name: "day1", ticks: []Tick{tick(0, 1, 6)}}}
	second := []TickChunk{sliceChunk{name: "day2", ticks: []Tick{tick(2*time.Hour, 2, 4), tick(3*time.Hour, 3, 1)}}}

	collect := func(got *[]VolumeBar) func(string, []VolumeBar) error {
		return func(_ string, bars []VolumeBar) error {
			*got = append(*got, bars...)
			return nil
		}
	}

	var whole []VolumeBar
	_, err := BuildVolumeBarsAcross(append(append([]TickChunk{}, first...), second...), 10, nil, false, collect(&whole))
	require.NoError(t, err)

	var split []VolumeBar
	carry, err := BuildVolumeBarsAcross(first, 10, nil, false, collect(&split))
	require.NoError(t, err)
	require.NotNil(t, carry)
	assert.Empty(t, split)

	carry, err = BuildVolumeBarsAcross(second, 10, carry, false, collect(&split))
	require.NoError(t, err)

	require.Len(t, split, 1)
	assert.Equal(t, whole, split)
	assert.Equal(t, t0, split[0].StartDate)
	assert.Equal(t, 10.0, split[0].Volume)
	require.NotNil(t, carry)
	assert.Equal(t, 1.0, carry.Volume)
}

func TestBuildVolumeBarsAcross_Errors(t *testing.T) {
	readErr := errors.New("truncated gzip")
	_, err := BuildVolumeBarsAcross([]TickChunk{sliceChunk{name: "x", err: readErr}}, 1, nil, true,
		func(string, []VolumeBar) error { return nil })
	assert.True(t, errors.Is(err, readErr))

	writeErr := errors.New("disk full")
	_, err = BuildVolumeBarsAcross([]TickChunk{sliceChunk{name: "x", ticks: []Tick{tick(0, 1, 1)}}}, 1, nil, true,
		func(string, []VolumeBar) error { return writeErr })
	assert.True(t, errors.Is(err, writeErr))

	_, err = BuildVolumeBarsAcross(nil, 0, nil, true, nil)
	assert.True(t, errors.Is(err, ErrInvalidVolumeSize))
}
