package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"tickbars/config"
	"tickbars/internal/memorystore"
	"tickbars/internal/pipeline"
	"tickbars/internal/resample"
	"tickbars/logger"
	"tickbars/pkg/storage/postgres"
	"tickbars/pkg/tickfile"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// viper config
	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("resampler failed", zap.String("mode", cfg.Resample.Mode), zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	loc, err := cfg.Files.Location()
	if err != nil {
		return err
	}
	format, err := tickfile.ParseFormat(cfg.Files.Format)
	if err != nil {
		return err
	}

	switch cfg.Resample.Mode {
	case "volume-files":
		inputs, err := pipeline.ExpandInputs(cfg.Files.Inputs)
		if err != nil {
			return err
		}
		res, err := pipeline.Run(ctx, pipeline.Options{
			Inputs:       inputs,
			OutputDir:    cfg.Files.OutputDir,
			VolumeSize:   cfg.Resample.VolumeSize,
			Format:       format,
			Location:     loc,
			KeepTrailing: cfg.Resample.ForceCloseAtEnd,
		}, log)
		if err != nil {
			return err
		}
		log.Info("volume files done", zap.Int("outputs", len(res.Outputs)), zap.Int("bars", res.Bars))
		return nil

	case "ohlc-files":
		inputs, err := pipeline.ExpandInputs(cfg.Files.Inputs)
		if err != nil {
			return err
		}
		store := memorystore.NewTickStore()
		n, err := pipeline.LoadFiles(ctx, inputs, tickfile.Options{Location: loc}, store, log)
		if err != nil {
			return err
		}
		log.Info("tick files loaded", zap.Int("files", len(inputs)), zap.Int("ticks", n))

		runner := &resample.Runner{
			Source:      store,
			Sink:        pipeline.FileSink{Dir: cfg.Files.OutputDir, Format: format},
			Symbols:     store,
			Logger:      log,
			Concurrency: cfg.Resample.Concurrency,
		}
		start, end, err := requireWindow(cfg.Resample)
		if err != nil {
			return err
		}
		return runOHLC(ctx, runner, cfg.Resample, start, end)

	case "import":
		inputs, err := pipeline.ExpandInputs(cfg.Files.Inputs)
		if err != nil {
			return err
		}
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Env, true)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		defer client.Close()
		return importTicks(ctx, client, inputs, loc, log)

	case "ohlc", "volume":
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Env, true)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		defer client.Close()
		client.Location = loc

		runner := &resample.Runner{
			Source:      client,
			Sink:        client,
			Symbols:     client,
			Logger:      log,
			Concurrency: cfg.Resample.Concurrency,
		}
		job := func(ctx context.Context, start, end time.Time) error {
			if cfg.Resample.Mode == "volume" {
				return runVolume(ctx, runner, cfg.Resample, start, end)
			}
			return runOHLC(ctx, runner, cfg.Resample, start, end)
		}

		if cfg.Resample.Daily {
			s := &resample.DailyScheduler{Location: loc, RunAtStart: true, Run: job, Logger: log}
			return s.Start(ctx)
		}
		start, end, err := requireWindow(cfg.Resample)
		if err != nil {
			return err
		}
		return job(ctx, start, end)
	}

	return fmt.Errorf("unknown mode %q", cfg.Resample.Mode)
}

func requireWindow(rc config.ResampleConfig) (time.Time, time.Time, error) {
	start, end, err := rc.Window()
	if err != nil {
		return start, end, err
	}
	if start.IsZero() || end.IsZero() {
		return start, end, fmt.Errorf("resample.start and resample.end are required")
	}
	return start, end, nil
}

func runOHLC(ctx context.Context, runner *resample.Runner, rc config.ResampleConfig, start, end time.Time) error {
	interval, err := rc.IntervalDuration()
	if err != nil {
		return err
	}
	fetch, err := rc.FetchIntervalDuration()
	if err != nil {
		return err
	}

	report, err := runner.RunOHLC(ctx, resample.OHLCJob{
		Symbols:       rc.Symbols,
		Interval:      interval,
		FetchInterval: fetch,
		Start:         start,
		End:           end,
		FillMissing:   rc.FillMissing,
	})
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("run %s: %d of %d symbols failed", report.RunID, len(report.Failed), len(report.Failed)+len(report.Succeeded))
	}
	return nil
}

func runVolume(ctx context.Context, runner *resample.Runner, rc config.ResampleConfig, start, end time.Time) error {
	fetch, err := rc.FetchIntervalDuration()
	if err != nil {
		return err
	}

	report, err := runner.RunVolume(ctx, resample.VolumeJob{
		Symbols:         rc.Symbols,
		VolumeSize:      rc.VolumeSize,
		FetchInterval:   fetch,
		Start:           start,
		End:             end,
		ForceCloseAtEnd: rc.ForceCloseAtEnd,
	})
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("run %s: %d of %d symbols failed", report.RunID, len(report.Failed), len(report.Failed)+len(report.Succeeded))
	}
	return nil
}

func importTicks(ctx context.Context, client *postgres.PostgresClient, inputs []string, loc *time.Location, log *zap.Logger) error {
	for _, path := range inputs {
		ticks, err := tickfile.ReadTicksFile(path, tickfile.Options{Location: loc})
		if err != nil {
			return err
		}

		dbCtx, cancel := context.WithTimeout(ctx, time.Minute)
		n, err := client.InsertTicks(dbCtx, ticks)
		cancel()
		if err != nil {
			return err
		}
		log.Info("ticks imported", zap.String("file", path), zap.Int64("rows", n))
	}
	return nil
}
