// Package resample runs bar jobs for many symbols against a tick source.
package resample

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tickbars/pkg/bars"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BarSink stores finished bars and reports how many rows were new.
type BarSink interface {
	InsertTimeBars(ctx context.Context, symbol, interval string, rows []bars.TimeBar) (int64, error)
	InsertVolumeBars(ctx context.Context, symbol string, volumeSize float64, rows []bars.VolumeBar) (int64, error)
}

// SymbolLister names the symbols a job covers when none are given.
type SymbolLister interface {
	ListSymbols(ctx context.Context) ([]string, error)
}

type Runner struct {
	Source  bars.TickSource
	Sink    BarSink
	Symbols SymbolLister
	Logger  *zap.Logger

	// Concurrency bounds how many symbols are processed at once.
	Concurrency int

	mu      sync.Mutex
	pending map[pendingKey]pendingBar
}

// pendingKey identifies one symbol's carry-over chain.
type pendingKey struct {
	symbol     string
	volumeSize float64
}

// pendingBar is an open volume bar left at the end of a window. It resumes
// only in a job whose Start equals until.
type pendingBar struct {
	carry *bars.CarryOver
	until time.Time
}

// OHLCJob computes time bars over [Start, End) for each symbol.
type OHLCJob struct {
	Symbols       []string
	Interval      time.Duration
	FetchInterval time.Duration
	Start         time.Time
	End           time.Time
	FillMissing   bool
}

// VolumeJob computes volume bars over [Start, End) for each symbol, reading
// FetchInterval-wide windows and carrying the open bar between them. The bar
// still open at End is kept by the Runner and resumed by the next job that
// starts at End.
type VolumeJob struct {
	Symbols         []string
	VolumeSize      float64
	FetchInterval   time.Duration
	Start           time.Time
	End             time.Time
	ForceCloseAtEnd bool
}

// Report lists per-symbol outcomes. A failed symbol doesn't fail the run.
type Report struct {
	RunID     string
	Succeeded []string
	Failed    map[string]error
	Bars      int64

	mu sync.Mutex
}

func (r *Report) succeed(symbol string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded = append(r.Succeeded, symbol)
	r.Bars += n
}

func (r *Report) fail(symbol string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed[symbol] = err
}

// RunOHLC aggregates and stores time bars for every symbol of job.
func (r *Runner) RunOHLC(ctx context.Context, job OHLCJob) (*Report, error) {
	if job.Interval%time.Second != 0 {
		return nil, fmt.Errorf("ohlc job: %w: %s is not a whole number of seconds", bars.ErrInvalidInterval, job.Interval)
	}
	token, err := bars.EncodeInterval(job.Interval)
	if err != nil {
		return nil, fmt.Errorf("ohlc job: %w", err)
	}
	if job.FetchInterval < 0 {
		return nil, fmt.Errorf("ohlc job: %w: fetch interval %s", bars.ErrInvalidInterval, job.FetchInterval)
	}

	symbols, err := r.resolveSymbols(ctx, job.Symbols)
	if err != nil {
		return nil, err
	}

	return r.forEach(ctx, "ohlc", symbols, job.Start, job.End, func(ctx context.Context, symbol string) (int64, error) {
		rows, err := bars.FetchOHLC(ctx, r.Source, bars.RangeRequest{
			Symbol:        symbol,
			Interval:      job.Interval,
			Start:         job.Start,
			End:           job.End,
			FetchInterval: job.FetchInterval,
			FillMissing:   job.FillMissing,
		})
		if err != nil {
			return 0, err
		}
		return r.Sink.InsertTimeBars(ctx, symbol, token, rows)
	})
}

// RunVolume builds and stores volume bars for every symbol of job.
func (r *Runner) RunVolume(ctx context.Context, job VolumeJob) (*Report, error) {
	if !(job.VolumeSize > 0) {
		return nil, fmt.Errorf("volume job: %w: %v", bars.ErrInvalidVolumeSize, job.VolumeSize)
	}
	if job.FetchInterval < 0 {
		return nil, fmt.Errorf("volume job: %w: fetch interval %s", bars.ErrInvalidInterval, job.FetchInterval)
	}

	symbols, err := r.resolveSymbols(ctx, job.Symbols)
	if err != nil {
		return nil, err
	}

	return r.forEach(ctx, "volume", symbols, job.Start, job.End, func(ctx context.Context, symbol string) (int64, error) {
		windows := splitRange(symbol, job.Start, job.End, job.FetchInterval)
		chunks := make([]bars.TickChunk, 0, len(windows))
		for _, q := range windows {
			chunks = append(chunks, queryChunk{ctx: ctx, src: r.Source, q: q})
		}

		key := pendingKey{symbol: symbol, volumeSize: job.VolumeSize}
		carry := r.resume(key, job.Start)

		rows := make([]bars.VolumeBar, 0)
		next, err := bars.BuildVolumeBarsAcross(chunks, job.VolumeSize, carry, job.ForceCloseAtEnd,
			func(_ string, closed []bars.VolumeBar) error {
				rows = append(rows, closed...)
				return nil
			})
		if err != nil {
			return 0, err
		}
		n, err := r.Sink.InsertVolumeBars(ctx, symbol, job.VolumeSize, rows)
		if err != nil {
			return 0, err
		}

		r.hold(key, next, job.End)
		if next != nil {
			r.Logger.Info("open bar held for next window",
				zap.String("symbol", symbol),
				zap.Float64("volume", next.Volume),
				zap.Time("start", next.StartDate),
				zap.Time("resumes_at", job.End),
			)
		}
		return n, nil
	})
}

// PendingVolume returns the open bar held for symbol at volumeSize, if any.
func (r *Runner) PendingVolume(symbol string, volumeSize float64) *bars.CarryOver {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[pendingKey{symbol: symbol, volumeSize: volumeSize}]
	if !ok {
		return nil
	}
	c := *p.carry
	return &c
}

// resume returns the held bar for key when it was left at start. A bar held
// for a different boundary is dropped with a warning.
func (r *Runner) resume(key pendingKey, start time.Time) *bars.CarryOver {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		return nil
	}
	if !p.until.Equal(start) {
		r.Logger.Warn("dropping open bar from a non-adjacent window",
			zap.String("symbol", key.symbol),
			zap.Float64("volume", p.carry.Volume),
			zap.Time("held_until", p.until),
			zap.Time("job_start", start),
		)
		delete(r.pending, key)
		return nil
	}
	c := *p.carry
	return &c
}

// hold replaces the bar held for key. A nil carry clears it.
func (r *Runner) hold(key pendingKey, carry *bars.CarryOver, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if carry == nil {
		delete(r.pending, key)
		return
	}
	if r.pending == nil {
		r.pending = make(map[pendingKey]pendingBar)
	}
	r.pending[key] = pendingBar{carry: carry, until: until}
}

func (r *Runner) resolveSymbols(ctx context.Context, symbols []string) ([]string, error) {
	if len(symbols) > 0 {
		return symbols, nil
	}
	if r.Symbols == nil {
		return nil, fmt.Errorf("no symbols given and no symbol lister configured")
	}
	listed, err := r.Symbols.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return listed, nil
}

// forEach runs task for each symbol with bounded concurrency. A failing
// symbol is logged and recorded; only cancellation stops the run.
func (r *Runner) forEach(ctx context.Context, kind string, symbols []string, start, end time.Time,
	task func(ctx context.Context, symbol string) (int64, error)) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Failed: make(map[string]error)}
	logger := r.Logger.With(
		zap.String("run_id", report.RunID),
		zap.String("job", kind),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	logger.Info("job started", zap.Int("symbols", len(symbols)))

	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}

		symbol := symbol // capture
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			n, err := task(ctx, symbol)
			if err != nil {
				logger.Warn("symbol failed, skipping", zap.String("symbol", symbol), zap.Error(err))
				report.fail(symbol, err)
				return nil
			}
			logger.Info("symbol completed", zap.String("symbol", symbol), zap.Int64("bars", n))
			report.succeed(symbol, n)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Succeeded)
	logger.Info("job finished",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
		zap.Int64("bars", report.Bars),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// splitRange cuts [start, end) into step-wide windows; a zero step gives one.
func splitRange(symbol string, start, end time.Time, step time.Duration) []bars.TickQuery {
	if !start.Before(end) {
		return nil
	}
	if step <= 0 {
		return []bars.TickQuery{{Symbol: symbol, Start: start, End: end}}
	}

	var out []bars.TickQuery
	for s := start; s.Before(end); s = s.Add(step) {
		e := s.Add(step)
		if e.After(end) {
			e = end
		}
		out = append(out, bars.TickQuery{Symbol: symbol, Start: s, End: e})
	}
	return out
}

// queryChunk reads one window from a tick source.
type queryChunk struct {
	ctx context.Context
	src bars.TickSource
	q   bars.TickQuery
}

func (c queryChunk) Name() string {
	return c.q.Start.Format(time.RFC3339)
}

func (c queryChunk) Ticks() ([]bars.Tick, error) {
	ticks, err := c.src.FetchTicks(c.ctx, c.q)
	if err != nil {
		return nil, err
	}

	inWindow := ticks[:0:0]
	for _, t := range ticks {
		if c.q.Contains(t.Timestamp) {
			inWindow = append(inWindow, t)
		}
	}
	return inWindow, nil
}
