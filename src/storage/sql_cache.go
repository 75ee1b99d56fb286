package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-pulse/src/helpers"
	"market-pulse/src/logger"
	"market-pulse/src/models"
)

// barRetentionFloor keeps a year of daily bars regardless of the retention
// window so signal computation always has enough history.
const barRetentionFloor = 400 * 24 * time.Hour

// dialect captures what differs between the SQL backends
type dialect struct {
	name        string
	driver      string
	realType    string
	bigintType  string
	tablePrefix string
	placeholder func(n int) string
}

var sqliteDialect = dialect{
	name:        "sqlite",
	driver:      "sqlite",
	realType:    "REAL",
	bigintType:  "INTEGER",
	placeholder: func(int) string { return "?" },
}

func postgresDialect(schema string) dialect {
	return dialect{
		name:        "postgres",
		driver:      "postgres",
		realType:    "DOUBLE PRECISION",
		bigintType:  "BIGINT",
		tablePrefix: fmt.Sprintf(`"%s".`, schema),
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
}

// -----------------------------------------------------------------------------

// sqlCache implements interfaces.ICache on database/sql for both backends
type sqlCache struct {
	DB      *sql.DB
	Logger  *logger.Logger
	dialect dialect
}

// -----------------------------------------------------------------------------

func (c *sqlCache) Name() string {
	return c.dialect.name
}

// -----------------------------------------------------------------------------

func (c *sqlCache) table(name string) string {
	return c.dialect.tablePrefix + name
}

// query rewrites ? placeholders for the dialect and expands {table} names
func (c *sqlCache) query(q string) string {
	for _, t := range []string{"quotes", "movers", "bars", "signals"} {
		q = strings.ReplaceAll(q, "{"+t+"}", c.table(t))
	}
	q = strings.ReplaceAll(q, "{real}", c.dialect.realType)
	q = strings.ReplaceAll(q, "{bigint}", c.dialect.bigintType)

	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(c.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (c *sqlCache) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS {quotes} (
			symbol TEXT NOT NULL,
			timestamp {bigint} NOT NULL,
			price {real},
			change {real},
			change_percent {real},
			volume {bigint},
			market_cap {real},
			day_high {real},
			day_low {real},
			PRIMARY KEY (symbol, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS {movers} (
			snapshot_ts {bigint} NOT NULL,
			kind TEXT NOT NULL,
			rank INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			name TEXT,
			price {real},
			change_percent {real},
			PRIMARY KEY (snapshot_ts, kind, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS {bars} (
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			open {real},
			high {real},
			low {real},
			close {real},
			volume {bigint},
			PRIMARY KEY (symbol, date)
		)`,
		`CREATE TABLE IF NOT EXISTS {signals} (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence {real},
			strategy TEXT,
			payload TEXT,
			timestamp {bigint} NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, c.query(stmt)); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) PutQuote(ctx context.Context, q models.Quote) error {
	_, err := c.DB.ExecContext(ctx, c.query(`
		INSERT INTO {quotes} (symbol, timestamp, price, change, change_percent, volume, market_cap, day_high, day_low)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO NOTHING`),
		q.Symbol, q.Timestamp, q.Price, q.Change, q.ChangePercent, q.Volume, q.MarketCap, q.DayHigh, q.DayLow)
	if err != nil {
		return helpers.NewCacheError("put quote "+q.Symbol, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) PutMovers(ctx context.Context, s models.MoversSnapshot) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewCacheError("put movers", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, c.query(`
		INSERT INTO {movers} (snapshot_ts, kind, rank, symbol, name, price, change_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (snapshot_ts, kind, rank) DO NOTHING`))
	if err != nil {
		return helpers.NewCacheError("put movers", err)
	}
	defer stmt.Close()

	lists := map[models.MoverKind][]models.Mover{models.MoverGainers: s.Gainers, models.MoverLosers: s.Losers}
	for kind, list := range lists {
		for _, m := range list {
			if _, err := stmt.ExecContext(ctx, s.Timestamp, string(kind), m.Rank, m.Symbol, m.Name, m.Price, m.ChangePercent); err != nil {
				return helpers.NewCacheError("put movers", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewCacheError("put movers", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) PutBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewCacheError("put bars "+symbol, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, c.query(`
		INSERT INTO {bars} (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`))
	if err != nil {
		return helpers.NewCacheError("put bars "+symbol, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return helpers.NewCacheError("put bars "+symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewCacheError("put bars "+symbol, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) PutSignal(ctx context.Context, s models.Signal) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return helpers.NewCacheError("encode signal", err)
	}

	_, err = c.DB.ExecContext(ctx, c.query(`
		INSERT INTO {signals} (id, symbol, action, confidence, strategy, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`),
		s.ID, s.Symbol, string(s.Action), s.Confidence, s.Strategy, string(payload), s.Timestamp)
	if err != nil {
		return helpers.NewCacheError("put signal "+s.Symbol, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	rows, err := c.DB.QueryContext(ctx, c.query(`
		SELECT date, open, high, low, close, volume FROM {bars}
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`),
		symbol, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, helpers.NewCacheError("get bars "+symbol, err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, helpers.NewCacheError("scan bar "+symbol, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewCacheError("get bars "+symbol, err)
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) LatestQuote(ctx context.Context, symbol string) (models.Quote, bool, error) {
	row := c.DB.QueryRowContext(ctx, c.query(`
		SELECT symbol, timestamp, price, change, change_percent, volume, market_cap, day_high, day_low
		FROM {quotes} WHERE symbol = ? ORDER BY timestamp DESC LIMIT 1`), symbol)

	var q models.Quote
	var marketCap, dayHigh, dayLow sql.NullFloat64
	err := row.Scan(&q.Symbol, &q.Timestamp, &q.Price, &q.Change, &q.ChangePercent, &q.Volume, &marketCap, &dayHigh, &dayLow)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Quote{}, false, nil
	}
	if err != nil {
		return models.Quote{}, false, helpers.NewCacheError("latest quote "+symbol, err)
	}

	q.MarketCap = nullable(marketCap)
	q.DayHigh = nullable(dayHigh)
	q.DayLow = nullable(dayLow)
	return q, true, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// -----------------------------------------------------------------------------

func (c *sqlCache) CleanupOldData(ctx context.Context, retention time.Duration) error {
	now := time.Now().UTC()
	cutoff := now.Add(-retention).UnixMilli()
	barRetention := max(retention, barRetentionFloor)
	barCutoff := now.Add(-barRetention).Format("2006-01-02")

	c.Logger.Info("Cleaning up %s cache rows older than %s", c.dialect.name, retention)

	cleanups := []struct {
		stmt string
		arg  any
	}{
		{`DELETE FROM {quotes} WHERE timestamp < ?`, cutoff},
		{`DELETE FROM {movers} WHERE snapshot_ts < ?`, cutoff},
		{`DELETE FROM {signals} WHERE timestamp < ?`, cutoff},
		{`DELETE FROM {bars} WHERE date < ?`, barCutoff},
	}

	var errs []error
	for _, cl := range cleanups {
		if _, err := c.DB.ExecContext(ctx, c.query(cl.stmt), cl.arg); err != nil {
			c.Logger.Error("Cleanup error: %v", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return helpers.NewCacheError("cleanup", errors.Join(errs...))
	}
	return nil
}

// -----------------------------------------------------------------------------

func (c *sqlCache) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
