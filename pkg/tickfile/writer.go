package tickfile

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tickbars/pkg/bars"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Format selects the bar file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "jsonl"
)

// BarTimeLayout is how bar timestamps are written, in the bar's zone.
const BarTimeLayout = "2006-01-02 15:04:05.000000"

var (
	timeBarHeader   = []string{"datetime", "open", "high", "low", "close", "volume"}
	volumeBarHeader = []string{"open", "high", "low", "close", "volume", "start_date", "end_date"}
)

func formatFloat(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// VolumeLabel renders a volume size for file names: 0.5 becomes "0_5".
func VolumeLabel(size float64) string {
	return strings.ReplaceAll(formatFloat(size), ".", "_")
}

// OutputName derives the bar file name for a tick file, for example
// 20240105_BTC.csv.gz with size 0.5 becomes 20240105_BTC_0_5.csv.
func OutputName(inputPath string, volumeSize float64, format Format) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s.%s", base, VolumeLabel(volumeSize), format.Ext())
}

// Ext is the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == FormatJSON {
		return "jsonl"
	}
	return "csv"
}

// ParseFormat accepts csv, json and jsonl.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "csv":
		return FormatCSV, nil
	case "json", "jsonl":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// WriteTimeBarsCSV writes one row per bar under a datetime,open,...,volume header.
func WriteTimeBarsCSV(w io.Writer, rows []bars.TimeBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(timeBarHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, b := range rows {
		rec := []string{
			b.Datetime.Format(BarTimeLayout),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write time bar: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteVolumeBarsCSV writes one row per bar under an open,...,end_date header.
func WriteVolumeBarsCSV(w io.Writer, rows []bars.VolumeBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(volumeBarHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, b := range rows {
		rec := []string{
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
			b.StartDate.Format(BarTimeLayout),
			b.EndDate.Format(BarTimeLayout),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write volume bar: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTimeBarsJSON writes one JSON object per line.
func WriteTimeBarsJSON(w io.Writer, rows []bars.TimeBar) error {
	enc := json.NewEncoder(w)
	for _, b := range rows {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("encode time bar: %w", err)
		}
	}
	return nil
}

// WriteVolumeBarsJSON writes one JSON object per line.
func WriteVolumeBarsJSON(w io.Writer, rows []bars.VolumeBar) error {
	enc := json.NewEncoder(w)
	for _, b := range rows {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("encode volume bar: %w", err)
		}
	}
	return nil
}

// WriteVolumeBarsFile creates path and writes rows in the given format.
func WriteVolumeBarsFile(path string, rows []bars.VolumeBar, format Format) error {
	return writeFile(path, func(w io.Writer) error {
		if format == FormatJSON {
			return WriteVolumeBarsJSON(w, rows)
		}
		return WriteVolumeBarsCSV(w, rows)
	})
}

// WriteTimeBarsFile creates path and writes rows in the given format.
func WriteTimeBarsFile(path string, rows []bars.TimeBar, format Format) error {
	return writeFile(path, func(w io.Writer) error {
		if format == FormatJSON {
			return WriteTimeBarsJSON(w, rows)
		}
		return WriteTimeBarsCSV(w, rows)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
