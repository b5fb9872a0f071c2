package postgres

import (
	"context"
	"fmt"
	"time"

	"tickbars/pkg/bars"

	"gorm.io/gorm/clause"
)

// InsertTimeBars stores bars for symbol and interval token. Bars already
// stored for the same bucket are skipped; the count of new rows is returned.
func (p *PostgresClient) InsertTimeBars(ctx context.Context, symbol, interval string, rows []bars.TimeBar) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]TimeBarRecord, 0, len(rows))
	for _, b := range rows {
		records = append(records, ToTimeBarRecord(symbol, interval, b))
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "bar_interval"},
			{Name: "datetime"},
		},
		DoNothing: true,
	}).CreateInBatches(records, insertBatchSize)

	if tx.Error != nil {
		return tx.RowsAffected, fmt.Errorf("insert time bars %s %s: %w", symbol, interval, tx.Error)
	}
	return tx.RowsAffected, nil
}

// InsertVolumeBars stores bars for symbol and volume size, skipping bars
// already stored with the same start.
func (p *PostgresClient) InsertVolumeBars(ctx context.Context, symbol string, volumeSize float64, rows []bars.VolumeBar) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]VolumeBarRecord, 0, len(rows))
	for _, b := range rows {
		records = append(records, ToVolumeBarRecord(symbol, volumeSize, b))
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "volume_size"},
			{Name: "start_date"},
		},
		DoNothing: true,
	}).CreateInBatches(records, insertBatchSize)

	if tx.Error != nil {
		return tx.RowsAffected, fmt.Errorf("insert volume bars %s: %w", symbol, tx.Error)
	}
	return tx.RowsAffected, nil
}

// GetTimeBars returns stored bars for symbol and interval in [start, end).
func (p *PostgresClient) GetTimeBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]bars.TimeBar, error) {
	var records []TimeBarRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND bar_interval = ? AND datetime >= ? AND datetime < ?", symbol, interval, start.UTC(), end.UTC()).
		Order("datetime ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("get time bars %s %s: %w", symbol, interval, err)
	}

	out := make([]bars.TimeBar, 0, len(records))
	for _, r := range records {
		dt := r.Datetime
		if p.Location != nil {
			dt = dt.In(p.Location)
		}
		out = append(out, bars.TimeBar{
			Datetime: dt,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
		})
	}
	return out, nil
}
