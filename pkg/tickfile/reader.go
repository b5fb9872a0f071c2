package tickfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tickbars/pkg/bars"

	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
)

// TimestampLayout is the timestamp format of exchange tick dumps, in UTC.
const TimestampLayout = "2006-01-02 15:04:05.000"

var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
}

// Options controls how tick rows are normalized.
type Options struct {
	// Location is the reference zone ticks are converted to. Nil means UTC.
	Location *time.Location
	// Symbol overrides or fills the symbol column.
	Symbol string
}

// ReadTicksFile reads a tick CSV file; names ending in .gz are decompressed.
func ReadTicksFile(path string, opts Options) ([]bars.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tick file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	ticks, err := ReadTicks(r, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return ticks, nil
}

// ReadTicks parses a headed CSV with price, size and timestamp (or datetime)
// columns and optional symbol and side columns. Column order is free.
func ReadTicks(r io.Reader, opts Options) ([]bars.Tick, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []bars.Tick{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	ticks := make([]bars.Tick, 0)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		t, err := parseRow(rec, cols, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if opts.Symbol != "" {
			t.Symbol = opts.Symbol
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

type columns struct {
	symbol, side, price, size, timestamp int
}

func indexColumns(header []string) (columns, error) {
	cols := columns{symbol: -1, side: -1, price: -1, size: -1, timestamp: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "symbol":
			cols.symbol = i
		case "side":
			cols.side = i
		case "price":
			cols.price = i
		case "size", "volume", "amount":
			cols.size = i
		case "timestamp", "datetime", "exec_date":
			cols.timestamp = i
		}
	}
	if cols.price < 0 || cols.size < 0 || cols.timestamp < 0 {
		return cols, fmt.Errorf("header %v: need price, size and timestamp columns", header)
	}
	return cols, nil
}

func parseRow(rec []string, cols columns, loc *time.Location) (bars.Tick, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(rec[cols.price]))
	if err != nil {
		return bars.Tick{}, fmt.Errorf("price %q: %w", rec[cols.price], err)
	}
	size, err := decimal.NewFromString(strings.TrimSpace(rec[cols.size]))
	if err != nil {
		return bars.Tick{}, fmt.Errorf("size %q: %w", rec[cols.size], err)
	}
	ts, err := parseTimestamp(strings.TrimSpace(rec[cols.timestamp]))
	if err != nil {
		return bars.Tick{}, err
	}

	t := bars.Tick{
		Price:     price.InexactFloat64(),
		Size:      size.InexactFloat64(),
		Timestamp: ts.In(loc),
	}
	if cols.symbol >= 0 {
		t.Symbol = rec[cols.symbol]
	}
	if cols.side >= 0 {
		t.Side = ParseSide(rec[cols.side])
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: unknown layout", s)
}

// ParseSide maps exchange side spellings onto bars.Side.
func ParseSide(s string) bars.Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "BID":
		return bars.SideBuy
	case "SELL", "S", "ASK":
		return bars.SideSell
	default:
		return bars.SideNone
	}
}

// FileChunk is one tick file in a batch run.
type FileChunk struct {
	Path    string
	Options Options
}

var _ bars.TickChunk = FileChunk{}

func (c FileChunk) Name() string {
	return filepath.Base(c.Path)
}

func (c FileChunk) Ticks() ([]bars.Tick, error) {
	return ReadTicksFile(c.Path, c.Options)
}
