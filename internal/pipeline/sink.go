package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"tickbars/pkg/bars"
	"tickbars/pkg/tickfile"
)

// FileSink writes each symbol's bars to its own file under Dir.
type FileSink struct {
	Dir    string
	Format tickfile.Format
}

func (s FileSink) path(symbol, suffix string) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.%s", symbol, suffix, s.Format.Ext()))
}

// InsertTimeBars writes <symbol>_<interval> and returns the rows written.
func (s FileSink) InsertTimeBars(ctx context.Context, symbol, interval string, rows []bars.TimeBar) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tickfile.WriteTimeBarsFile(s.path(symbol, interval), rows, s.Format); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// InsertVolumeBars writes <symbol>_<volume label> and returns the rows written.
func (s FileSink) InsertVolumeBars(ctx context.Context, symbol string, volumeSize float64, rows []bars.VolumeBar) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tickfile.WriteVolumeBarsFile(s.path(symbol, tickfile.VolumeLabel(volumeSize)), rows, s.Format); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
