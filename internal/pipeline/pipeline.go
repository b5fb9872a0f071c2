// Package pipeline drives bar construction over tick files on disk.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"tickbars/pkg/bars"
	"tickbars/pkg/tickfile"

	"go.uber.org/zap"
)

// Options configures a batch volume bar run.
type Options struct {
	Inputs       []string // tick files, processed in the given order
	OutputDir    string
	VolumeSize   float64
	Format       tickfile.Format
	Location     *time.Location
	KeepTrailing bool
}

// Result summarizes a run. Carry is the bar left open after the last file
// when KeepTrailing is off.
type Result struct {
	Outputs []string
	Bars    int
	Carry   *bars.CarryOver
}

// ExpandInputs resolves a glob into a lexically sorted file list. Period
// files named like 20240105_BTC.csv.gz therefore sort chronologically.
func ExpandInputs(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no tick files match %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// Run builds volume bars across opts.Inputs and writes one bar file per
// input file that closed at least one bar.
func Run(ctx context.Context, opts Options, log *zap.Logger) (Result, error) {
	chunks := make([]bars.TickChunk, 0, len(opts.Inputs))
	byName := make(map[string]string, len(opts.Inputs))
	for _, path := range opts.Inputs {
		chunk := tickfile.FileChunk{Path: path, Options: tickfile.Options{Location: opts.Location}}
		chunks = append(chunks, chunk)
		byName[chunk.Name()] = path
	}

	var res Result
	carry, err := bars.BuildVolumeBarsAcross(chunks, opts.VolumeSize, nil, opts.KeepTrailing,
		func(name string, rows []bars.VolumeBar) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			out := filepath.Join(opts.OutputDir, tickfile.OutputName(byName[name], opts.VolumeSize, opts.Format))
			if err := tickfile.WriteVolumeBarsFile(out, rows, opts.Format); err != nil {
				return err
			}

			res.Outputs = append(res.Outputs, out)
			res.Bars += len(rows)
			log.Info("volume bars written",
				zap.String("input", name),
				zap.String("output", out),
				zap.Int("bars", len(rows)),
			)
			return nil
		})
	res.Carry = carry
	if err != nil {
		return res, fmt.Errorf("volume bars: %w", err)
	}

	if carry != nil {
		log.Info("open bar left after last file",
			zap.Float64("volume", carry.Volume),
			zap.Time("start", carry.StartDate),
		)
	}
	return res, nil
}

// TickAdder receives ticks loaded from files.
type TickAdder interface {
	Add(ticks ...bars.Tick)
}

// LoadFiles reads every file into dst and returns the tick count.
func LoadFiles(ctx context.Context, paths []string, opts tickfile.Options, dst TickAdder, log *zap.Logger) (int, error) {
	total := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		ticks, err := tickfile.ReadTicksFile(path, opts)
		if err != nil {
			return total, err
		}
		dst.Add(ticks...)
		total += len(ticks)
		log.Debug("tick file loaded", zap.String("file", filepath.Base(path)), zap.Int("ticks", len(ticks)))
	}
	return total, nil
}
