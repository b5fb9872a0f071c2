package postgres

import (
	"context"
	"fmt"

	"tickbars/pkg/bars"
)

const insertBatchSize = 1000

var _ bars.TickSource = (*PostgresClient)(nil)

// InsertTicks stores ticks in batches and returns the number of rows written.
func (p *PostgresClient) InsertTicks(ctx context.Context, ticks []bars.Tick) (int64, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	records := make([]TickRecord, 0, len(ticks))
	for _, t := range ticks {
		records = append(records, ToTickRecord(t))
	}

	tx := p.DB.WithContext(ctx).CreateInBatches(records, insertBatchSize)
	if tx.Error != nil {
		return tx.RowsAffected, fmt.Errorf("insert ticks: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// FetchTicks returns the ticks of q.Symbol in [q.From(), q.End), oldest first.
func (p *PostgresClient) FetchTicks(ctx context.Context, q bars.TickQuery) ([]bars.Tick, error) {
	var records []TickRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ? AND timestamp < ?", q.Symbol, q.From().UTC(), q.End.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetch ticks %s: %w", q.Symbol, err)
	}

	ticks := make([]bars.Tick, 0, len(records))
	for _, r := range records {
		ticks = append(ticks, r.Tick(p.Location))
	}
	return ticks, nil
}

// ListSymbols returns every symbol with stored ticks.
func (p *PostgresClient) ListSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := p.DB.WithContext(ctx).
		Model(&TickRecord{}).
		Distinct("symbol").
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return symbols, nil
}
