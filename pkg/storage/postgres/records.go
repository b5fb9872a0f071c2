package postgres

import (
	"time"

	"tickbars/pkg/bars"
)

// TickRecord is a single stored trade.
type TickRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol    string    `gorm:"type:text;not null;index:idx_tick_symbol_timestamp,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_tick_symbol_timestamp,priority:2"`
	Side      string    `gorm:"type:varchar(4)"`
	Price     float64   `gorm:"type:numeric;not null"`
	Size      float64   `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

func (TickRecord) TableName() string {
	return "tick_record"
}

// TimeBarRecord is a fixed-interval bar. The interval column holds the
// encoded interval token, e.g. "5m".
type TimeBarRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol   string    `gorm:"type:text;not null;index:idx_time_bar_symbol_interval_datetime,unique"`
	Interval string    `gorm:"column:bar_interval;type:varchar(16);not null;index:idx_time_bar_symbol_interval_datetime,unique"`
	Datetime time.Time `gorm:"not null;index:idx_time_bar_symbol_interval_datetime,unique"`

	Open   float64 `gorm:"type:numeric;not null"`
	High   float64 `gorm:"type:numeric;not null"`
	Low    float64 `gorm:"type:numeric;not null"`
	Close  float64 `gorm:"type:numeric;not null"`
	Volume float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

func (TimeBarRecord) TableName() string {
	return "time_bar_record"
}

// VolumeBarRecord is a bar closed on accumulated volume.
type VolumeBarRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Symbol     string    `gorm:"type:text;not null;index:idx_volume_bar_symbol_size_start,unique"`
	VolumeSize float64   `gorm:"type:numeric;not null;index:idx_volume_bar_symbol_size_start,unique"`
	StartDate  time.Time `gorm:"not null;index:idx_volume_bar_symbol_size_start,unique"`

	EndDate time.Time `gorm:"not null"`

	Open    float64 `gorm:"type:numeric;not null"`
	High    float64 `gorm:"type:numeric;not null"`
	Low     float64 `gorm:"type:numeric;not null"`
	Close   float64 `gorm:"type:numeric;not null"`
	Volume  float64 `gorm:"type:numeric;not null"`
	Partial bool    `gorm:"not null;default:false"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

func (VolumeBarRecord) TableName() string {
	return "volume_bar_record"
}

// ToTickRecord converts a tick for insertion. Timestamps are stored in UTC.
func ToTickRecord(t bars.Tick) TickRecord {
	return TickRecord{
		Symbol:    t.Symbol,
		Timestamp: t.Timestamp.UTC(),
		Side:      string(t.Side),
		Price:     t.Price,
		Size:      t.Size,
	}
}

// Tick converts a stored row back, with its timestamp in loc.
func (r TickRecord) Tick(loc *time.Location) bars.Tick {
	ts := r.Timestamp
	if loc != nil {
		ts = ts.In(loc)
	}
	return bars.Tick{
		Symbol:    r.Symbol,
		Side:      bars.Side(r.Side),
		Price:     r.Price,
		Size:      r.Size,
		Timestamp: ts,
	}
}

func ToTimeBarRecord(symbol, interval string, b bars.TimeBar) TimeBarRecord {
	return TimeBarRecord{
		Symbol:   symbol,
		Interval: interval,
		Datetime: b.Datetime.UTC(),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
	}
}

func ToVolumeBarRecord(symbol string, volumeSize float64, b bars.VolumeBar) VolumeBarRecord {
	return VolumeBarRecord{
		Symbol:     symbol,
		VolumeSize: volumeSize,
		StartDate:  b.StartDate.UTC(),
		EndDate:    b.EndDate.UTC(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		Partial:    b.Partial,
	}
}
