// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	freshness map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		freshness: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candles table for historical OHLCV data. NULL marks a missing value.
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL,
		high REAL,
		low REAL,
		close REAL,
		volume REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, interval, timestamp)
	);

	-- One row per cached download
	CREATE TABLE IF NOT EXISTS fetches (
		cache_key TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		first_ts DATETIME,
		last_ts DATETIME,
		columns INTEGER NOT NULL,
		candles INTEGER NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	-- Scan history
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		candles INTEGER NOT NULL,
		report TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_interval ON candles(symbol, interval, timestamp);
	CREATE INDEX IF NOT EXISTS idx_scans_symbol_created ON scans(symbol, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCandles upserts candles for a symbol and interval.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, interval string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertCandles(ctx, tx, symbol, interval, candles); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.forgetFreshness(symbol, interval)
	return nil
}

func insertCandles(ctx context.Context, tx *sql.Tx, symbol, interval string, candles []models.Candle) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, interval, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, interval, c.Timestamp.UTC(),
			nullable(c.Open), nullable(c.High), nullable(c.Low), nullable(c.Close), nullable(c.Volume))
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}
	return nil
}

// GetCandles returns candles with from <= timestamp <= to in time order.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, interval, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		var o, h, l, cl, v sql.NullFloat64
		if err := rows.Scan(&c.Timestamp, &o, &h, &l, &cl, &v); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		c.Open, c.High, c.Low, c.Close, c.Volume = value(o), value(h), value(l), value(cl), value(v)
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// GetCandlesFreshness returns the timestamp of the newest stored candle,
// or the zero time when there is none.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol, interval string) (time.Time, error) {
	key := symbol + "|" + interval
	s.mu.RLock()
	if t, ok := s.freshness[key]; ok {
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	var timestamp sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp FROM candles WHERE symbol = ? AND interval = ?
		ORDER BY timestamp DESC LIMIT 1
	`, symbol, interval).Scan(&timestamp)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get candles freshness: %w", err)
	}
	if !timestamp.Valid {
		return time.Time{}, nil
	}

	latest := timestamp.Time.UTC()
	s.mu.Lock()
	s.freshness[key] = latest
	s.mu.Unlock()

	return latest, nil
}

func (s *SQLiteStore) forgetFreshness(symbol, interval string) {
	s.mu.Lock()
	delete(s.freshness, symbol+"|"+interval)
	s.mu.Unlock()
}

// Save stores a downloaded series under a cache key. The candles go to the
// shared candles table; the fetch row remembers the span and which columns
// the source supplied.
func (s *SQLiteStore) Save(ctx context.Context, key string, series models.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertCandles(ctx, tx, series.Symbol, series.Interval, series.Candles); err != nil {
		return err
	}

	var first, last sql.NullTime
	if from, to := series.Span(); series.Len() > 0 {
		first = sql.NullTime{Time: from.UTC(), Valid: true}
		last = sql.NullTime{Time: to.UTC(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO fetches (cache_key, symbol, interval, first_ts, last_ts, columns, candles, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, key, series.Symbol, series.Interval, first, last, int(series.Columns), series.Len(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.forgetFreshness(series.Symbol, series.Interval)
	return nil
}

// Load returns the series saved under key. A key never saved is a miss.
func (s *SQLiteStore) Load(ctx context.Context, key string) (models.Series, bool, error) {
	var series models.Series
	var first, last sql.NullTime
	var columns, count int

	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, interval, first_ts, last_ts, columns, candles FROM fetches WHERE cache_key = ?
	`, key).Scan(&series.Symbol, &series.Interval, &first, &last, &columns, &count)
	if err == sql.ErrNoRows {
		return models.Series{}, false, nil
	}
	if err != nil {
		return models.Series{}, false, errors.Join(errors.ErrDatabaseError, fmt.Errorf("failed to load fetch %s: %w", key, err))
	}
	series.Columns = models.Column(columns)

	if first.Valid && last.Valid {
		candles, err := s.GetCandles(ctx, series.Symbol, series.Interval, first.Time, last.Time)
		if err != nil {
			return models.Series{}, false, err
		}
		series.Candles = candles
	}

	// Rows replaced by a later overlapping download may no longer line up
	if series.Len() != count {
		return models.Series{}, false, nil
	}
	return series, true, nil
}

// SaveScan stores a scan, assigning an ID and timestamp when missing.
func (s *SQLiteStore) SaveScan(ctx context.Context, scan *ScanRecord) error {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}

	report, err := json.Marshal(scan.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	candles := 0
	if scan.Report != nil {
		candles = scan.Report.Candles
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scans (id, symbol, interval, created_at, duration_ms, candles, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.Symbol, scan.Interval, scan.CreatedAt.UTC(), scan.Duration.Milliseconds(), candles, string(report))
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// GetScans returns stored scans, newest first.
func (s *SQLiteStore) GetScans(ctx context.Context, filter ScanFilter) ([]ScanRecord, error) {
	query := "SELECT id, symbol, interval, created_at, duration_ms, report FROM scans WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanRecord
	for rows.Next() {
		scan, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}

	return scans, rows.Err()
}

// GetScanByID returns one stored scan.
func (s *SQLiteStore) GetScanByID(ctx context.Context, id string) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, interval, created_at, duration_ms, report FROM scans WHERE id = ?
	`, id)

	scan, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDataError("scan", id, "not found", errors.ErrDataNotFound)
	}
	return scan, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*ScanRecord, error) {
	var scan ScanRecord
	var durationMs int64
	var report string

	if err := row.Scan(&scan.ID, &scan.Symbol, &scan.Interval, &scan.CreatedAt, &durationMs, &report); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scan record: %w", err)
	}
	scan.CreatedAt = scan.CreatedAt.UTC()
	scan.Duration = time.Duration(durationMs) * time.Millisecond

	if err := json.Unmarshal([]byte(report), &scan.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", scan.ID, err)
	}
	return &scan, nil
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func value(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
