// Package store defines the durable storage surface behind the ledger. All
// failures surface as explicit errors to the caller; nothing is swallowed.
package store

import (
	"time"

	"coinbutler/internal/types"
)

// PositionStore is the keyed open-position index plus the daily P&L
// accumulator. The index is rewritten row-by-row on open/close and wholesale
// on reconciliation; there is exactly one writer (the ledger).
type PositionStore interface {
	// PutOpen upserts one open position into the live index.
	PutOpen(pos types.Position) error
	// MarkClosed writes the exit fields and removes the row from the live
	// index in a single transaction. Closed rows are retained for audit.
	MarkClosed(pos types.Position) error
	// ReplaceOpen swaps the entire live index for the reconciled set.
	ReplaceOpen(positions []types.Position) error
	// ListOpen returns the live index.
	ListOpen() ([]types.Position, error)

	// AddDailyPnL accumulates realized pnl for a calendar day (YYYY-MM-DD)
	// and returns the new cumulative value.
	AddDailyPnL(day string, pnl float64) (float64, error)
	// DailyPnL reads the accumulator for one day; missing days are 0.
	DailyPnL(day string) (float64, error)

	// SaveRecommendation persists one usable AI suggestion for offline audit.
	SaveRecommendation(rec RecommendationRecord) (int64, error)
	// LinkExecution fills in the order-execution price on the newest
	// unexecuted recommendation for the instrument.
	LinkExecution(instrument string, execPrice float64) error
	// LinkExit fills in the exit price once the resulting position closes.
	LinkExit(instrument string, exitPrice float64) error

	Close() error
}

// RecommendationRecord captures one AI-engine invocation that returned a
// usable suggestion. It is write-mostly: control flow never reads it back.
type RecommendationRecord struct {
	ID         int64
	Timestamp  time.Time
	ModelID    string
	Context    types.MarketContext
	Snapshots  []types.TechnicalSnapshot
	Instrument string
	Confidence int
	RiskTier   string
	Reason     string
	TargetPct  float64
	StopPct    float64
	ExecPrice  float64
	ExitPrice  float64
}
