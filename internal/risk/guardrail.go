// Package risk holds the deterministic trading guardrails: take-profit /
// stop-loss verdicts, the position-count cap and the daily realized-loss
// circuit breaker. Nothing in here consults a model; the guardrail overrides
// any AI opinion.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"coinbutler/internal/config"
	"coinbutler/internal/types"
)

type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
)

// Verdict 是对单个持仓的风控判定结果。
type Verdict struct {
	Exit   bool
	Reason ExitReason
	PnL    float64
	Rate   float64
}

// ProfileSource 提供当前生效的风控档位（通常是 *Registry）。
type ProfileSource interface {
	Current() Profile
}

type Guardrail struct {
	profiles           ProfileSource
	dailyLossLimit     decimal.Decimal
	maxPositions       int
	swapLossThreshold  decimal.Decimal
	swapMinHoldingDays float64
}

func NewGuardrail(profiles ProfileSource, cfg config.RiskConfig) *Guardrail {
	return &Guardrail{
		profiles:           profiles,
		dailyLossLimit:     decimal.NewFromFloat(cfg.DailyLossLimit),
		maxPositions:       cfg.MaxPositions,
		swapLossThreshold:  decimal.NewFromFloat(cfg.SwapLossThreshold),
		swapMinHoldingDays: cfg.SwapMinHoldingDays,
	}
}

// ShouldExit 判定持仓是否触发止盈/止损。阈值为闭区间（恰好 +3.00% 触发
// 止盈），且止盈优先于止损判断。浮点比较走 decimal，避免 0.0299999 这类
// 误差把边界单漏掉。
func (g *Guardrail) ShouldExit(pos types.Position, currentPrice float64) Verdict {
	pnl, rate := pos.UnrealizedPnL(currentPrice)
	profile := g.profiles.Current()
	r := decimal.NewFromFloat(rate)
	if r.GreaterThanOrEqual(decimal.NewFromFloat(profile.ProfitTarget)) {
		return Verdict{Exit: true, Reason: ExitTakeProfit, PnL: pnl, Rate: rate}
	}
	if r.LessThanOrEqual(decimal.NewFromFloat(profile.StopLoss)) {
		return Verdict{Exit: true, Reason: ExitStopLoss, PnL: pnl, Rate: rate}
	}
	return Verdict{PnL: pnl, Rate: rate}
}

// DailyLimitBreached 判断当日已实现亏损是否触发熔断（达到即触发，含边界）。
// 只看已实现值，浮动亏损不计入。
func (g *Guardrail) DailyLimitBreached(todayRealizedPnL float64) bool {
	return decimal.NewFromFloat(todayRealizedPnL).LessThanOrEqual(g.dailyLossLimit)
}

// CanOpen 判断是否允许再开新仓。
func (g *Guardrail) CanOpen(openCount int, todayRealizedPnL float64) (bool, string) {
	if g.DailyLimitBreached(todayRealizedPnL) {
		return false, "daily loss limit breached"
	}
	if openCount >= g.maxPositions {
		return false, "position cap reached"
	}
	return true, ""
}

// MaxPositions 返回持仓上限。
func (g *Guardrail) MaxPositions() int { return g.maxPositions }

// DailyLossLimit 返回熔断限额（负数）。
func (g *Guardrail) DailyLossLimit() float64 {
	v, _ := g.dailyLossLimit.Float64()
	return v
}

// ConfidenceThreshold 返回当前档位要求的最低置信度。
func (g *Guardrail) ConfidenceThreshold() int {
	return g.profiles.Current().ConfidenceThreshold
}

// SwapEligible 判断持仓是否符合换仓审查条件：持有满最短天数且亏损达到
// 换仓阈值（含边界）。
func (g *Guardrail) SwapEligible(pos types.Position, currentPrice float64, now time.Time) bool {
	if float64(pos.HoldingDays(now)) < g.swapMinHoldingDays {
		return false
	}
	_, rate := pos.UnrealizedPnL(currentPrice)
	return decimal.NewFromFloat(rate).LessThanOrEqual(g.swapLossThreshold)
}

// staticProfiles 让测试与无注册表场景可以直接用固定档位。
type staticProfiles struct{ p Profile }

func (s staticProfiles) Current() Profile { return s.p }

// StaticProfiles 返回一个固定档位的 ProfileSource。
func StaticProfiles(p Profile) ProfileSource { return staticProfiles{p: p} }
