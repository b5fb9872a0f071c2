package resample

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DailyScheduler runs a job over the previous local day at every midnight
// in Location.
type DailyScheduler struct {
	Location *time.Location
	// RunAtStart also runs the job once, for the day before today, on Start.
	RunAtStart bool
	Run        func(ctx context.Context, start, end time.Time) error
	Logger     *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// PreviousDay returns [midnight yesterday, midnight today) in loc.
func PreviousDay(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return end.AddDate(0, 0, -1), end
}

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	_, today := PreviousDay(now, loc)
	return today.AddDate(0, 0, 1)
}

// Start blocks, running the job at each midnight until ctx is done. Job
// errors are logged and the schedule continues.
func (s *DailyScheduler) Start(ctx context.Context) error {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now := s.now
	if now == nil {
		now = time.Now
	}
	after := s.after
	if after == nil {
		after = time.After
	}

	if s.RunAtStart {
		s.runOnce(ctx, now(), loc)
	}

	for {
		t := now()
		next := NextMidnight(t, loc)
		s.Logger.Info("next daily run scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(next.Sub(t)):
			s.runOnce(ctx, now(), loc)
		}
	}
}

func (s *DailyScheduler) runOnce(ctx context.Context, now time.Time, loc *time.Location) {
	start, end := PreviousDay(now, loc)
	if err := s.Run(ctx, start, end); err != nil {
		s.Logger.Error("daily run failed", zap.Time("start", start), zap.Time("end", end), zap.Error(err))
		return
	}
	s.Logger.Info("daily run completed", zap.Time("start", start), zap.Time("end", end))
}
