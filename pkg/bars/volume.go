package bars

import (
	"math"

	"github.com/pkg/errors"
)

// closeEpsilon is the relative tolerance of the volume closing test.
const closeEpsilon = 1e-5

// VolumeOptions controls end-of-stream handling in BuildVolumeBars.
type VolumeOptions struct {
	// ForceCloseAtEnd emits a trailing unclosed bar, marked Partial, instead
	// of returning it as carry-over. Use it only when no more ticks follow.
	ForceCloseAtEnd bool
}

// BuildVolumeBars cuts ticks into bars of volumeSize traded volume.
//
// A bar closes on the tick that brings its accumulated volume within
// volumeSize*1e-5 of the target; that tick's volume is never split, so a bar
// may overshoot. carry resumes a bar left open by a previous call. The
// returned carry-over is nil when the stream ended on a bar boundary or the
// tail was force-closed.
func BuildVolumeBars(ticks []Tick, volumeSize float64, carry *CarryOver, opts VolumeOptions) ([]VolumeBar, *CarryOver, error) {
	if !(volumeSize > 0) || math.IsInf(volumeSize, 0) {
		return nil, nil, errors.Wrapf(ErrInvalidVolumeSize, "volume size %v", volumeSize)
	}
	if err := validateTicks(ticks); err != nil {
		return nil, nil, err
	}

	var cur CarryOver
	if carry != nil {
		cur = *carry
	}

	out := make([]VolumeBar, 0)
	for _, t := range ordered(ticks) {
		if cur.Volume == 0 {
			cur = CarryOver{
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				StartDate: t.Timestamp,
			}
		}

		cur.High = math.Max(cur.High, t.Price)
		cur.Low = math.Min(cur.Low, t.Price)
		cur.Volume += t.Size
		cur.LastPrice = t.Price
		cur.LastDate = t.Timestamp

		if volumeSize-cur.Volume < volumeSize*closeEpsilon {
			out = append(out, VolumeBar{
				Open:      cur.Open,
				High:      cur.High,
				Low:       cur.Low,
				Close:     t.Price,
				Volume:    cur.Volume,
				StartDate: cur.StartDate,
				EndDate:   t.Timestamp,
			})
			cur = CarryOver{}
		}
	}

	if cur.Volume <= 0 {
		return out, nil, nil
	}
	if opts.ForceCloseAtEnd {
		return append(out, cur.bar()), nil, nil
	}
	return out, &cur, nil
}

// TickChunk is one period of an ordered tick sequence, usually one file.
type TickChunk interface {
	Name() string
	Ticks() ([]Tick, error)
}

// BuildVolumeBarsAcross runs BuildVolumeBars over chunks in order, threading
// the unclosed bar of each chunk into the next so bars may span chunk
// boundaries. carry, when non-nil, is the open bar left by a previous run and
// is resumed by the first chunk. emit receives the bars closed within each chunk; chunks that
// close no bar are skipped. With keepTrailing the open bar left after the
// final chunk is force-closed into its output, otherwise it is returned.
func BuildVolumeBarsAcross(chunks []TickChunk, volumeSize float64, carry *CarryOver, keepTrailing bool,
	emit func(name string, bars []VolumeBar) error) (*CarryOver, error) {
	if !(volumeSize > 0) || math.IsInf(volumeSize, 0) {
		return nil, errors.Wrapf(ErrInvalidVolumeSize, "volume size %v", volumeSize)
	}

	for i, chunk := range chunks {
		ticks, err := chunk.Ticks()
		if err != nil {
			return carry, errors.Wrapf(err, "read chunk %s", chunk.Name())
		}

		opts := VolumeOptions{ForceCloseAtEnd: keepTrailing && i == len(chunks)-1}
		bars, next, err := BuildVolumeBars(ticks, volumeSize, carry, opts)
		if err != nil {
			return carry, errors.Wrapf(err, "chunk %s", chunk.Name())
		}
		carry = next

		if len(bars) == 0 {
			continue
		}
		if err := emit(chunk.Name(), bars); err != nil {
			return carry, err
		}
	}
	return carry, nil
}
