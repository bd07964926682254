package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coinbutler/internal/store/gormstore"
	"coinbutler/internal/store/tradelog"
	"coinbutler/internal/types"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	positions, err := gormstore.New(filepath.Join(dir, "positions.db"))
	assert.NoError(t, err)
	trades, err := tradelog.Open(filepath.Join(dir, "trades.db"))
	assert.NoError(t, err)
	t.Cleanup(func() {
		positions.Close()
		trades.Close()
	})
	return New(positions, trades)
}

func TestOpenRejectsInvalidAndDuplicate(t *testing.T) {
	l := newTestLedger(t)

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		err := l.Open("BTCUSDT", 50000, 0, 100)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive investment", func(t *testing.T) {
		err := l.Open("BTCUSDT", 50000, 0.002, 0)
		assert.Error(t, err)
	})

	t.Run("accepts first open, rejects second for same instrument", func(t *testing.T) {
		assert.NoError(t, l.Open("BTCUSDT", 50000, 0.002, 100))
		err := l.Open("BTCUSDT", 51000, 0.001, 51)
		assert.Error(t, err)
		assert.Equal(t, 1, l.OpenCount())
	})
}

func TestOpenSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	positions, err := gormstore.New(filepath.Join(dir, "positions.db"))
	assert.NoError(t, err)
	trades, err := tradelog.Open(filepath.Join(dir, "trades.db"))
	assert.NoError(t, err)

	l := New(positions, trades)
	assert.NoError(t, l.Open("ETHUSDT", 3000, 0.5, 1500))

	// A fresh ledger over the same files must see the position.
	reloaded := New(positions, trades)
	loaded, err := reloaded.Load()
	assert.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, "ETHUSDT", loaded[0].Instrument)
	assert.Equal(t, 3000.0, loaded[0].EntryPrice)
	assert.Equal(t, 0.5, loaded[0].Quantity)
	assert.Equal(t, 1500.0, loaded[0].Investment)

	positions.Close()
	trades.Close()
}

func TestCloseRealizesPnLAndRemovesPosition(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("SOLUSDT", 100, 10, 1000))

	pnl, ok, err := l.Close("SOLUSDT", 110)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 100.0, pnl, 1e-9) // 10 * 110 - 1000

	assert.Equal(t, 0, l.OpenCount())

	_, ok, err = l.Close("SOLUSDT", 110)
	assert.NoError(t, err)
	assert.False(t, ok, "closing an absent position must report none")
}

func TestCloseAuditFailureStillDropsPosition(t *testing.T) {
	dir := t.TempDir()
	positions, err := gormstore.New(filepath.Join(dir, "positions.db"))
	assert.NoError(t, err)
	trades, err := tradelog.Open(filepath.Join(dir, "trades.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { positions.Close() })

	l := New(positions, trades)
	assert.NoError(t, l.Open("SOLUSDT", 100, 10, 1000))

	// 审计日志不可写时，平仓行已经落库，索引必须同步移除，
	// 否则重试会卡在一条已关闭的开仓行上。
	assert.NoError(t, trades.Close())

	pnl, ok, err := l.Close("SOLUSDT", 110)
	assert.Error(t, err)
	assert.True(t, ok, "store row closed despite the audit failure")
	assert.InDelta(t, 100.0, pnl, 1e-9)
	assert.Equal(t, 0, l.OpenCount(), "live index must not keep a closed position")

	_, ok, err = l.Close("SOLUSDT", 110)
	assert.NoError(t, err)
	assert.False(t, ok, "retry sees no open position instead of a permanent error")
}

func TestDailyPnLAccumulates(t *testing.T) {
	l := newTestLedger(t)
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return fixed }

	// +1000, -400, +250 within one day should read back 850.
	assert.NoError(t, l.Open("AUSDT", 10, 100, 1000))
	_, _, err := l.Close("AUSDT", 20) // +1000
	assert.NoError(t, err)

	assert.NoError(t, l.Open("BUSDT", 10, 100, 1000))
	_, _, err = l.Close("BUSDT", 6) // -400
	assert.NoError(t, err)

	assert.NoError(t, l.Open("CUSDT", 10, 100, 1000))
	_, _, err = l.Close("CUSDT", 12.5) // +250
	assert.NoError(t, err)

	total, err := l.TodayPnL()
	assert.NoError(t, err)
	assert.InDelta(t, 850.0, total, 1e-6)
}

func TestUnrealizedPnL(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("BTCUSDT", 50000, 0.02, 1000))

	pnl, rate, ok := l.UnrealizedPnL("BTCUSDT", 51500)
	assert.True(t, ok)
	assert.InDelta(t, 30.0, pnl, 1e-9)
	assert.InDelta(t, 0.03, rate, 1e-9)

	_, _, ok = l.UnrealizedPnL("DOGEUSDT", 0.1)
	assert.False(t, ok)
}

func TestReplaceAllSwapsLiveIndex(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("BTCUSDT", 50000, 0.02, 1000))
	assert.NoError(t, l.Open("ETHUSDT", 3000, 1, 3000))

	reconciled := []types.Position{
		{
			Instrument:     "XRPUSDT",
			EntryPrice:     0.5,
			Quantity:       2000,
			Investment:     1000,
			EntryTime:      time.Now(),
			Status:         types.PositionOpen,
			EntryEstimated: true,
		},
	}
	assert.NoError(t, l.ReplaceAll(reconciled))

	open := l.OpenPositions()
	assert.Len(t, open, 1)
	assert.Equal(t, "XRPUSDT", open[0].Instrument)
	assert.True(t, open[0].EntryEstimated)

	// Replacing twice with the same set is a no-op (idempotent).
	assert.NoError(t, l.ReplaceAll(reconciled))
	assert.Len(t, l.OpenPositions(), 1)
}

func TestStatsAggregatesSells(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("AUSDT", 10, 100, 1000))
	_, _, err := l.Close("AUSDT", 12) // +200
	assert.NoError(t, err)
	assert.NoError(t, l.Open("BUSDT", 10, 100, 1000))
	_, _, err = l.Close("BUSDT", 9) // -100
	assert.NoError(t, err)

	stats, err := l.Stats(7)
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, 1, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.InDelta(t, 100.0, stats.TotalPnL, 1e-6)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-6)
}
