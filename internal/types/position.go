package types

import "time"

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is the ledger record for one held (or formerly held) instrument.
// Investment is the quote-currency amount actually spent at entry; it can
// differ slightly from Quantity*EntryPrice because of execution slippage, so
// P&L is always computed against Investment, never re-derived.
type Position struct {
	Instrument string
	EntryPrice float64
	Quantity   float64
	Investment float64
	EntryTime  time.Time
	Status     PositionStatus

	// Exit fields are zero until the position closes; they are written
	// together in one transaction.
	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnL float64

	// EntryEstimated marks positions whose entry price was inferred during
	// reconciliation rather than observed from an executed order.
	EntryEstimated bool
}

// UnrealizedPnL returns the current profit and its fraction of the invested
// amount at the given market price.
func (p Position) UnrealizedPnL(currentPrice float64) (pnl, rate float64) {
	if p.Investment <= 0 {
		return 0, 0
	}
	pnl = p.Quantity*currentPrice - p.Investment
	return pnl, pnl / p.Investment
}

// HoldingDays is the whole number of days the position has been open.
func (p Position) HoldingDays(now time.Time) int {
	if p.EntryTime.IsZero() {
		return 0
	}
	return int(now.Sub(p.EntryTime).Hours() / 24)
}
