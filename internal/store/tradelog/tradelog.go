// Package tradelog is the append-only audit trail of executed trades. It is a
// separate database from the position index on purpose: rows are only ever
// appended, never updated, and survive any rewrite of the live-open index.
package tradelog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Record is one executed trade.
type Record struct {
	ID          int64
	Timestamp   time.Time
	Instrument  string
	Side        Side
	Price       float64
	Quantity    float64
	Notional    float64
	RealizedPnL float64 // 0 for buys
	CumDailyPnL float64 // daily accumulator value after this trade
	StatusTag   string
}

// Stats summarizes realized performance over a lookback window.
type Stats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      float64
	WinRate       float64 // percent
	AvgPnL        float64
}

type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("tradelog: path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	notional REAL NOT NULL,
	realized_pnl REAL NOT NULL DEFAULT 0,
	cum_daily_pnl REAL NOT NULL DEFAULT 0,
	status_tag TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trades_instrument_side ON trades(instrument, side, ts);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append writes one trade row. The insert is synchronous: when it returns nil
// the row is durable.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("tradelog: store closed")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO trades (ts, instrument, side, price, quantity, notional, realized_pnl, cum_daily_pnl, status_tag)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Unix(), rec.Instrument, string(rec.Side), rec.Price, rec.Quantity,
		rec.Notional, rec.RealizedPnL, rec.CumDailyPnL, rec.StatusTag,
	)
	return err
}

// LastBuy returns the most recent executed buy for an instrument.
// Reconciliation uses it to infer entry prices for balances the position file
// does not know about.
func (s *Store) LastBuy(instrument string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return Record{}, false, fmt.Errorf("tradelog: store closed")
	}
	row := s.db.QueryRow(
		`SELECT id, ts, instrument, side, price, quantity, notional, realized_pnl, cum_daily_pnl, status_tag
		 FROM trades WHERE instrument = ? AND side = ? ORDER BY ts DESC, id DESC LIMIT 1`,
		instrument, string(SideBuy),
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// Recent returns the newest rows, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("tradelog: store closed")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, ts, instrument, side, price, quantity, notional, realized_pnl, cum_daily_pnl, status_tag
		 FROM trades ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatsSince aggregates sell-side performance for trades at or after cutoff.
func (s *Store) StatsSince(cutoff time.Time) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return Stats{}, fmt.Errorf("tradelog: store closed")
	}
	row := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(realized_pnl), 0),
		        COALESCE(SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END), 0)
		 FROM trades WHERE side = ? AND ts >= ?`,
		string(SideSell), cutoff.Unix(),
	)
	var stats Stats
	if err := row.Scan(&stats.TotalTrades, &stats.TotalPnL, &stats.WinningTrades); err != nil {
		return Stats{}, err
	}
	stats.LosingTrades = stats.TotalTrades - stats.WinningTrades
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
		stats.AvgPnL = stats.TotalPnL / float64(stats.TotalTrades)
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var rec Record
	var ts int64
	var side string
	if err := sc.Scan(&rec.ID, &ts, &rec.Instrument, &side, &rec.Price, &rec.Quantity,
		&rec.Notional, &rec.RealizedPnL, &rec.CumDailyPnL, &rec.StatusTag); err != nil {
		return Record{}, err
	}
	rec.Timestamp = time.Unix(ts, 0)
	rec.Side = Side(side)
	return rec, nil
}
