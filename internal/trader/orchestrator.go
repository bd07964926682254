// Package trader runs the trading loop: one logical thread, blocking calls,
// wall-clock interval gates for scanning, swap review and balance checks.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coinbutler/internal/analysis"
	"coinbutler/internal/config"
	"coinbutler/internal/decision"
	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/gateway/notifier"
	"coinbutler/internal/ledger"
	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/symbol"
	"coinbutler/internal/risk"
	"coinbutler/internal/types"
)

type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// snapshotCandleCount 给引擎算指标用的 K 线数量（5m × 60 = 5 小时）。
const snapshotCandleCount = 60

type candidateScanner interface {
	Scan(ctx context.Context, held map[string]bool) ([]types.Candidate, error)
}

type decisionEngine interface {
	Decide(ctx context.Context, in decision.Input) decision.Decision
	DecideSwap(ctx context.Context, now time.Time, losing []types.Position, prices map[string]float64, candidates []types.Candidate) decision.Decision
}

type contextBuilder interface {
	Build(ctx context.Context) types.MarketContext
}

// Orchestrator 持有全部协作方并驱动 tick 循环。状态转换:
// Running→Paused 仅由熔断触发；Paused→Running 仅由显式 resume；
// 任意状态→Stopped 由显式 stop 或进程退出。
type Orchestrator struct {
	cfg      config.TradingConfig
	quote    string
	exchange exchange.Client
	ledger   *ledger.Ledger
	guard    *risk.Guardrail
	scanner  candidateScanner
	engine   decisionEngine
	market   contextBuilder
	notify   *notifier.Sink

	mu          sync.Mutex
	state       State
	pauseReason string

	lastScan    time.Time
	lastBalance time.Time
	lastSwap    time.Time

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) bool
}

type Deps struct {
	Config   config.TradingConfig
	Quote    string
	Exchange exchange.Client
	Ledger   *ledger.Ledger
	Guard    *risk.Guardrail
	Scanner  candidateScanner
	Engine   decisionEngine
	Market   contextBuilder
	Notify   *notifier.Sink
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      d.Config,
		quote:    d.Quote,
		exchange: d.Exchange,
		ledger:   d.Ledger,
		guard:    d.Guard,
		scanner:  d.Scanner,
		engine:   d.Engine,
		market:   d.Market,
		notify:   d.Notify,
		state:    StateRunning,
		nowFn:    time.Now,
		sleepFn:  sleepCtx,
	}
}

// Run 阻塞执行 tick 循环直到 ctx 取消或显式 Stop。
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := time.Duration(o.cfg.TickSeconds) * time.Second
	logger.Infof("trader: loop started, tick=%s", interval)
	for {
		if ctx.Err() != nil || o.State() == StateStopped {
			logger.Infof("trader: loop stopped")
			return ctx.Err()
		}
		o.tick(ctx)
		if !o.sleepFn(ctx, interval) {
			logger.Infof("trader: loop cancelled during sleep")
			return ctx.Err()
		}
	}
}

// tick 执行一轮：熔断检查 → 持仓管理 → 换仓审查 → 余额检查 → 扫描买入。
// 单轮内任何一步失败都只降级记日志，不终止循环。
func (o *Orchestrator) tick(ctx context.Context) {
	now := o.nowFn()

	todayPnL, err := o.ledger.TodayPnL()
	if err != nil {
		logger.Errorf("trader: daily pnl read failed: %v", err)
		o.notify.NotifyError("daily pnl read", err)
		return
	}
	if o.guard.DailyLimitBreached(todayPnL) {
		o.pauseForBreach(todayPnL)
	}
	if o.State() != StateRunning {
		return
	}

	o.manageOpenPositions(ctx)

	if o.elapsed(o.lastSwap, time.Duration(o.cfg.SwapCheckMinutes)*time.Minute, now) {
		o.lastSwap = now
		o.reviewSwap(ctx, now)
	}
	if o.elapsed(o.lastBalance, time.Duration(o.cfg.BalanceCheckMinutes)*time.Minute, now) {
		o.lastBalance = now
		o.checkBalance(ctx)
	}
	if o.elapsed(o.lastScan, time.Duration(o.cfg.ScanIntervalMinutes)*time.Minute, now) {
		o.lastScan = now
		o.scanAndBuy(ctx)
	}
}

// manageOpenPositions 对每个持仓做止盈止损判定。
func (o *Orchestrator) manageOpenPositions(ctx context.Context) {
	for _, pos := range o.ledger.OpenPositions() {
		price, err := o.exchange.GetPrice(ctx, pos.Instrument)
		if err != nil {
			logger.Warnf("trader: price for %s failed: %v", pos.Instrument, err)
			continue
		}
		verdict := o.guard.ShouldExit(pos, price)
		if !verdict.Exit {
			continue
		}
		logger.Infof("trader: %s hit %s at %+.2f%% (pnl %+.2f)", pos.Instrument, verdict.Reason, verdict.Rate*100, verdict.PnL)
		o.executeSell(ctx, pos, string(verdict.Reason))
	}
}

// scanAndBuy 跑一轮扫描与决策，必要时开仓。
func (o *Orchestrator) scanAndBuy(ctx context.Context) {
	openCount := o.ledger.OpenCount()
	todayPnL, err := o.ledger.TodayPnL()
	if err != nil {
		logger.Errorf("trader: daily pnl read failed: %v", err)
		return
	}
	if ok, reason := o.guard.CanOpen(openCount, todayPnL); !ok {
		logger.Debugf("trader: skipping scan: %s", reason)
		return
	}

	candidates, err := o.scanner.Scan(ctx, o.heldSet())
	if err != nil {
		logger.Errorf("trader: scan failed: %v", err)
		o.notify.NotifyError("candidate scan", err)
		return
	}
	if len(candidates) == 0 {
		logger.Debugf("trader: no candidates this round")
		return
	}

	balance, err := o.availableQuote(ctx)
	if err != nil {
		logger.Errorf("trader: balance query failed: %v", err)
		return
	}
	in := decision.Input{
		Candidates:   candidates,
		Market:       o.market.Build(ctx),
		Snapshots:    o.buildSnapshots(ctx, candidates),
		Balance:      balance,
		OpenCount:    openCount,
		MaxPositions: o.guard.MaxPositions(),
	}
	d := o.engine.Decide(ctx, in)
	if d.Action != decision.ActionBuy {
		logger.Infof("trader: engine says %s (%s)", d.Action, d.Reason)
		return
	}
	logger.Infof("trader: buying %s amount=%.2f source=%s confidence=%d", d.Instrument, d.Amount, d.Source, d.Confidence)
	o.executeBuy(ctx, d.Instrument, d.Amount, d.Reason)
}

// reviewSwap 收集符合换仓条件的亏损持仓并请引擎裁决。
func (o *Orchestrator) reviewSwap(ctx context.Context, now time.Time) {
	var losing []types.Position
	prices := make(map[string]float64)
	for _, pos := range o.ledger.OpenPositions() {
		price, err := o.exchange.GetPrice(ctx, pos.Instrument)
		if err != nil {
			continue
		}
		if o.guard.SwapEligible(pos, price, now) {
			losing = append(losing, pos)
			prices[pos.Instrument] = price
		}
	}
	if len(losing) == 0 {
		return
	}
	candidates, err := o.scanner.Scan(ctx, o.heldSet())
	if err != nil || len(candidates) == 0 {
		return
	}
	d := o.engine.DecideSwap(ctx, now, losing, prices, candidates)
	if d.Action != decision.ActionSwap {
		return
	}
	logger.Infof("trader: swapping %s -> %s (confidence=%d)", d.SellInstrument, d.Instrument, d.Confidence)
	o.executeSwap(ctx, d)
}

// checkBalance 确认计价币余额仍够开最小单，不足时仅提醒。
func (o *Orchestrator) checkBalance(ctx context.Context) {
	balance, err := o.availableQuote(ctx)
	if err != nil {
		logger.Warnf("trader: balance check failed: %v", err)
		return
	}
	if balance < o.cfg.MinOrderQuote && o.ledger.OpenCount() < o.guard.MaxPositions() {
		logger.Warnf("trader: quote balance %.2f below minimum order %.2f", balance, o.cfg.MinOrderQuote)
		o.notify.NotifyError("balance check", fmt.Errorf("可用 %s 余额 %.2f 低于最小下单额 %.2f", o.quote, balance, o.cfg.MinOrderQuote))
	}
}

func (o *Orchestrator) buildSnapshots(ctx context.Context, candidates []types.Candidate) []types.TechnicalSnapshot {
	out := make([]types.TechnicalSnapshot, 0, len(candidates))
	for _, c := range candidates {
		candles, err := o.exchange.GetRecentCandles(ctx, c.Instrument, 5, snapshotCandleCount)
		if err != nil {
			continue
		}
		snap, err := analysis.Snapshot(c.Instrument, candles)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out
}

func (o *Orchestrator) availableQuote(ctx context.Context) (float64, error) {
	balances, err := o.exchange.GetBalances(ctx)
	if err != nil {
		return 0, err
	}
	for _, bal := range balances {
		if symbol.Normalize(bal.Asset) == symbol.Normalize(o.quote) {
			return bal.Free, nil
		}
	}
	return 0, nil
}

func (o *Orchestrator) heldSet() map[string]bool {
	held := make(map[string]bool)
	for _, pos := range o.ledger.OpenPositions() {
		held[pos.Instrument] = true
	}
	return held
}

func (o *Orchestrator) elapsed(last time.Time, interval time.Duration, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

func (o *Orchestrator) pauseForBreach(todayPnL float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return
	}
	o.state = StatePaused
	o.pauseReason = "daily loss limit breached"
	logger.Warnf("trader: daily loss limit breached (realized %.2f), pausing", todayPnL)
	o.notify.NotifyDailyLimitBreached(todayPnL, o.guard.DailyLossLimit())
}

// State 返回当前状态。
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// PauseReason 返回暂停原因（运行中为空串）。
func (o *Orchestrator) PauseReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pauseReason
}

// Pause 人工暂停。
func (o *Orchestrator) Pause(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateStopped {
		return
	}
	o.state = StatePaused
	o.pauseReason = reason
	logger.Infof("trader: paused (%s)", reason)
}

// Resume 显式恢复，熔断后的唯一出路。
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePaused {
		return
	}
	o.state = StateRunning
	o.pauseReason = ""
	logger.Infof("trader: resumed")
}

// Stop 终止循环，在下一个 tick 边界生效。
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateStopped
	logger.Infof("trader: stop requested")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
