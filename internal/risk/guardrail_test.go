package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coinbutler/internal/config"
	"coinbutler/internal/types"
)

func testGuardrail() *Guardrail {
	return NewGuardrail(
		StaticProfiles(Profile{ProfitTarget: 0.03, StopLoss: -0.02, ConfidenceThreshold: 6}),
		config.RiskConfig{
			DailyLossLimit:     -500,
			MaxPositions:       3,
			SwapLossThreshold:  -0.05,
			SwapMinHoldingDays: 1,
		},
	)
}

func positionAt(entry float64) types.Position {
	return types.Position{
		Instrument: "BTCUSDT",
		EntryPrice: entry,
		Quantity:   1,
		Investment: entry,
		EntryTime:  time.Now().Add(-2 * time.Hour),
		Status:     types.PositionOpen,
	}
}

func TestShouldExitBoundaries(t *testing.T) {
	g := testGuardrail()
	pos := positionAt(10000)

	t.Run("exactly +3.00% takes profit", func(t *testing.T) {
		v := g.ShouldExit(pos, 10300)
		assert.True(t, v.Exit)
		assert.Equal(t, ExitTakeProfit, v.Reason)
	})

	t.Run("+2.99% holds", func(t *testing.T) {
		v := g.ShouldExit(pos, 10299)
		assert.False(t, v.Exit)
	})

	t.Run("exactly -2.00% stops out", func(t *testing.T) {
		v := g.ShouldExit(pos, 9800)
		assert.True(t, v.Exit)
		assert.Equal(t, ExitStopLoss, v.Reason)
	})

	t.Run("-1.99% holds", func(t *testing.T) {
		v := g.ShouldExit(pos, 9801)
		assert.False(t, v.Exit)
	})
}

func TestDailyLimitBreached(t *testing.T) {
	g := testGuardrail()
	assert.False(t, g.DailyLimitBreached(-499.99))
	assert.True(t, g.DailyLimitBreached(-500), "limit is inclusive")
	assert.True(t, g.DailyLimitBreached(-510))
	assert.False(t, g.DailyLimitBreached(120))
}

func TestCanOpen(t *testing.T) {
	g := testGuardrail()

	ok, _ := g.CanOpen(2, -100)
	assert.True(t, ok)

	ok, reason := g.CanOpen(3, -100)
	assert.False(t, ok)
	assert.Contains(t, reason, "position cap")

	ok, reason = g.CanOpen(0, -500)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss")
}

func TestSwapEligible(t *testing.T) {
	g := testGuardrail()
	now := time.Now()

	old := positionAt(100)
	old.EntryTime = now.Add(-36 * time.Hour)

	assert.True(t, g.SwapEligible(old, 95, now), "held >1d at -5% qualifies")
	assert.False(t, g.SwapEligible(old, 96, now), "-4% is above the swap threshold")

	fresh := positionAt(100)
	fresh.EntryTime = now.Add(-6 * time.Hour)
	assert.False(t, g.SwapEligible(fresh, 90, now), "young positions are exempt")
}

func TestSwapEligibleFractionalMinHoldingDays(t *testing.T) {
	// 最短持有天数允许配置成小数，与整天数的持有时长比较必须成立。
	g := NewGuardrail(
		StaticProfiles(Profile{ProfitTarget: 0.03, StopLoss: -0.02, ConfidenceThreshold: 6}),
		config.RiskConfig{
			DailyLossLimit:     -500,
			MaxPositions:       3,
			SwapLossThreshold:  -0.05,
			SwapMinHoldingDays: 1.5,
		},
	)
	now := time.Now()

	short := positionAt(100)
	short.EntryTime = now.Add(-47 * time.Hour) // 1 whole day
	assert.False(t, g.SwapEligible(short, 90, now), "1d held is below a 1.5d minimum")

	long := positionAt(100)
	long.EntryTime = now.Add(-49 * time.Hour) // 2 whole days
	assert.True(t, g.SwapEligible(long, 90, now), "2d held clears a 1.5d minimum")
}

func TestRegistryReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk_profile.yaml")
	write := func(body string) {
		assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write(`
profile:
  profit_target: 0.03
  stop_loss: -0.02
  confidence_threshold: 6
`)

	reg, err := NewRegistry(path)
	assert.NoError(t, err)
	assert.Equal(t, 0.03, reg.Current().ProfitTarget)

	t.Run("valid rewrite takes effect", func(t *testing.T) {
		write(`
profile:
  profit_target: 0.05
  stop_loss: -0.03
  confidence_threshold: 7
`)
		assert.NoError(t, reg.reload())
		assert.Equal(t, 0.05, reg.Current().ProfitTarget)
		assert.Equal(t, 7, reg.Current().ConfidenceThreshold)
	})

	t.Run("invalid rewrite keeps previous profile", func(t *testing.T) {
		write(`
profile:
  profit_target: -1
  stop_loss: -0.03
  confidence_threshold: 7
`)
		assert.Error(t, reg.reload())
		assert.Equal(t, 0.05, reg.Current().ProfitTarget)
	})
}
