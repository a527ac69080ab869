package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinCast/internal/domain/models"
	domrepo "CoinCast/internal/domain/repository"
	domsvc "CoinCast/internal/domain/service"
	pkgch "CoinCast/pkg/clickhouse"
	applogger "CoinCast/pkg/logger"
)

const latestCandlesQuery = `
        SELECT bucket, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `

// CHFeatureStore implements FeatureStore backed by ClickHouse.
type CHFeatureStore struct {
	db     *sql.DB
	tables domrepo.TimeframeSet
	l      *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, tables domrepo.TimeframeSet, l *applogger.Logger) *CHFeatureStore {
	return newCHFeatureStore(ch.DB(), tables, l)
}

func newCHFeatureStore(db *sql.DB, tables domrepo.TimeframeSet, l *applogger.Logger) *CHFeatureStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHFeatureStore{db: db, tables: tables, l: l}
}

// GetLatestNCandles returns up to n most recent candles of symbol in
// ascending bucket order.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := s.tableFor(tf)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(latestCandlesQuery, table), symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse latest_candles scan error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse latest_candles rows error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(tmp)
	s.l.Debug("clickhouse latest_candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", n),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

func (s *CHFeatureStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHFeatureStore) tableFor(tf domrepo.Timeframe) (string, error) {
	table, ok := s.tables.Table(tf)
	if !ok {
		return "", fmt.Errorf("%w: %s", domsvc.ErrUnsupportedTimeframe, tf)
	}
	return table, nil
}

// reverseCandles turns a DESC result into ascending order in place.
func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
