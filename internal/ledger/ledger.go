// Package ledger is the single writer of position and daily-P&L state. Every
// mutation is persisted synchronously before it is visible in memory, so a
// crash immediately after a successful return never loses the change.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/trading"
	"coinbutler/internal/store"
	"coinbutler/internal/store/tradelog"
	"coinbutler/internal/types"
)

const dayFormat = "2006-01-02"

type Ledger struct {
	mu     sync.RWMutex
	store  store.PositionStore
	trades *tradelog.Store
	open   map[string]types.Position
	nowFn  func() time.Time
}

func New(positionStore store.PositionStore, trades *tradelog.Store) *Ledger {
	return &Ledger{
		store:  positionStore,
		trades: trades,
		open:   make(map[string]types.Position),
		nowFn:  time.Now,
	}
}

// Load populates the in-memory live-open index from the persisted store.
// Read/parse failures degrade to an empty index; reconciliation rebuilds from
// exchange truth afterwards.
func (l *Ledger) Load() ([]types.Position, error) {
	positions, err := l.store.ListOpen()
	if err != nil {
		logger.Errorf("ledger: loading persisted positions failed, starting empty: %v", err)
		return nil, err
	}
	l.mu.Lock()
	l.open = make(map[string]types.Position, len(positions))
	for _, pos := range positions {
		l.open[pos.Instrument] = pos
	}
	l.mu.Unlock()
	return positions, nil
}

// Open records a fully executed buy. It rejects a duplicate open for the same
// instrument; the position-count cap is the guardrail's check and must have
// passed before the order was placed.
func (l *Ledger) Open(instrument string, entryPrice, quantity, investment float64) error {
	if quantity <= 0 || investment <= 0 {
		return fmt.Errorf("ledger: open %s requires positive quantity and investment", instrument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.open[instrument]; exists {
		return fmt.Errorf("ledger: position already open for %s", instrument)
	}

	pos := types.Position{
		Instrument: instrument,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		Investment: investment,
		EntryTime:  l.nowFn(),
		Status:     types.PositionOpen,
	}
	if err := l.store.PutOpen(pos); err != nil {
		return fmt.Errorf("ledger: persisting open failed: %w", err)
	}
	if err := l.trades.Append(tradelog.Record{
		Timestamp:  pos.EntryTime,
		Instrument: instrument,
		Side:       tradelog.SideBuy,
		Price:      entryPrice,
		Quantity:   quantity,
		Notional:   investment,
		StatusTag:  "entry",
	}); err != nil {
		return fmt.Errorf("ledger: audit record failed: %w", err)
	}
	l.open[instrument] = pos

	// Recommendation linkage is audit-only; a failure must not block the open.
	if err := l.store.LinkExecution(instrument, entryPrice); err != nil {
		logger.Warnf("ledger: linking execution price for %s failed: %v", instrument, err)
	}
	logger.Infof("ledger: opened %s entry=%.6f qty=%.8f invested=%.2f", instrument, entryPrice, quantity, investment)
	return nil
}

// Close marks a position closed at exitPrice. ok is false when no open
// position exists for the instrument. Once the store row is closed the
// instrument leaves the live index for good; a later failure in the daily
// accumulator or the audit append surfaces as ok=true plus a non-nil error.
func (l *Ledger) Close(instrument string, exitPrice float64) (pnl float64, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, exists := l.open[instrument]
	if !exists {
		return 0, false, nil
	}

	now := l.nowFn()
	pos.Status = types.PositionClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = now
	pos.RealizedPnL = trading.Notional(pos.Quantity, exitPrice) - pos.Investment

	if err := l.store.MarkClosed(pos); err != nil {
		return 0, false, fmt.Errorf("ledger: persisting close failed: %w", err)
	}
	// 存储里的开仓行已经关掉，内存索引必须立刻跟上：后面的落账步骤再失败，
	// 也不能让索引退回去指着一条不存在的开仓行，否则重试永远卡死。
	delete(l.open, instrument)

	cum, err := l.store.AddDailyPnL(now.Format(dayFormat), pos.RealizedPnL)
	if err != nil {
		return pos.RealizedPnL, true, fmt.Errorf("ledger: daily pnl update failed: %w", err)
	}
	if err := l.trades.Append(tradelog.Record{
		Timestamp:   now,
		Instrument:  instrument,
		Side:        tradelog.SideSell,
		Price:       exitPrice,
		Quantity:    pos.Quantity,
		Notional:    trading.Notional(pos.Quantity, exitPrice),
		RealizedPnL: pos.RealizedPnL,
		CumDailyPnL: cum,
		StatusTag:   "exit",
	}); err != nil {
		return pos.RealizedPnL, true, fmt.Errorf("ledger: audit record failed: %w", err)
	}

	// Recommendation linkage is audit-only; a failure must not block the close.
	if err := l.store.LinkExit(instrument, exitPrice); err != nil {
		logger.Warnf("ledger: linking exit price for %s failed: %v", instrument, err)
	}
	logger.Infof("ledger: closed %s exit=%.6f pnl=%+.2f", instrument, exitPrice, pos.RealizedPnL)
	return pos.RealizedPnL, true, nil
}

// UnrealizedPnL is a pure read; ok is false when no open position exists.
func (l *Ledger) UnrealizedPnL(instrument string, currentPrice float64) (pnl, rate float64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, exists := l.open[instrument]
	if !exists {
		return 0, 0, false
	}
	pnl, rate = pos.UnrealizedPnL(currentPrice)
	return pnl, rate, true
}

// OpenPositions returns the live-open index sorted by entry time.
func (l *Ledger) OpenPositions() []types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Position, 0, len(l.open))
	for _, pos := range l.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.open)
}

// Position returns one open position by instrument.
func (l *Ledger) Position(instrument string) (types.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[instrument]
	return pos, ok
}

// ReplaceAll swaps the entire live-open index for the reconciled set and
// persists it. Reconciliation is the only caller.
func (l *Ledger) ReplaceAll(positions []types.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.ReplaceOpen(positions); err != nil {
		return fmt.Errorf("ledger: persisting reconciled index failed: %w", err)
	}
	l.open = make(map[string]types.Position, len(positions))
	for _, pos := range positions {
		l.open[pos.Instrument] = pos
	}
	return nil
}

// TodayPnL reads today's realized P&L from the daily accumulator.
func (l *Ledger) TodayPnL() (float64, error) {
	return l.store.DailyPnL(l.nowFn().Format(dayFormat))
}

// LastBuy exposes the audit trail's most recent executed buy for an
// instrument (used by reconciliation to infer entry prices).
func (l *Ledger) LastBuy(instrument string) (tradelog.Record, bool, error) {
	return l.trades.LastBuy(instrument)
}

// Stats aggregates sell-side performance over the last `days` days.
func (l *Ledger) Stats(days int) (tradelog.Stats, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := l.nowFn().AddDate(0, 0, -days)
	return l.trades.StatsSince(cutoff)
}

// RecentTrades exposes the audit tail for the admin API.
func (l *Ledger) RecentTrades(limit int) ([]tradelog.Record, error) {
	return l.trades.Recent(limit)
}
