package trader

import (
	"context"
	"fmt"
	"time"

	"coinbutler/internal/decision"
	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/trading"
	"coinbutler/internal/types"
)

// executeBuy 下市价买单并等待成交确认。确认不到终态就不动账本——
// 持仓留待对账或下一轮补救，绝不凭猜测记账。
func (o *Orchestrator) executeBuy(ctx context.Context, instrument string, amount float64, reason string) {
	handle, err := o.exchange.PlaceMarketBuy(ctx, instrument, amount)
	if err != nil {
		logger.Errorf("trader: buy order for %s failed: %v", instrument, err)
		o.notify.NotifyError("buy order", err)
		return
	}
	status, ok := o.awaitFill(ctx, handle)
	if !ok {
		logger.Errorf("trader: buy order %d for %s not confirmed, ledger untouched", handle.OrderID, instrument)
		o.notify.NotifyError("buy confirmation", fmt.Errorf("order %d for %s not done", handle.OrderID, instrument))
		return
	}
	invested := trading.Notional(status.ExecutedQuantity, status.AveragePrice)
	if err := o.ledger.Open(instrument, status.AveragePrice, status.ExecutedQuantity, invested); err != nil {
		logger.Errorf("trader: recording buy for %s failed: %v", instrument, err)
		o.notify.NotifyError("ledger open", err)
		return
	}
	o.notify.NotifyBuy(instrument, status.AveragePrice, invested, reason)
}

// executeSell 平掉一个持仓并把已实现盈亏落账。平仓后立刻复查熔断，
// 让触线的那一笔就地停机而不是等下一轮。
func (o *Orchestrator) executeSell(ctx context.Context, pos types.Position, reason string) {
	handle, err := o.exchange.PlaceMarketSell(ctx, pos.Instrument, pos.Quantity)
	if err != nil {
		logger.Errorf("trader: sell order for %s failed: %v", pos.Instrument, err)
		o.notify.NotifyError("sell order", err)
		return
	}
	status, ok := o.awaitFill(ctx, handle)
	if !ok {
		logger.Errorf("trader: sell order %d for %s not confirmed, ledger untouched", handle.OrderID, pos.Instrument)
		o.notify.NotifyError("sell confirmation", fmt.Errorf("order %d for %s not done", handle.OrderID, pos.Instrument))
		return
	}
	pnl, closed, err := o.ledger.Close(pos.Instrument, status.AveragePrice)
	if err != nil {
		logger.Errorf("trader: recording sell for %s failed: %v", pos.Instrument, err)
		o.notify.NotifyError("ledger close", err)
		return
	}
	if !closed {
		logger.Warnf("trader: sell confirmed for %s but no open position in ledger", pos.Instrument)
		return
	}
	proceeds := trading.Notional(status.ExecutedQuantity, status.AveragePrice)
	rate := 0.0
	if pos.Investment > 0 {
		rate = pnl / pos.Investment
	}
	o.notify.NotifySell(pos.Instrument, status.AveragePrice, proceeds, pnl, rate, reason)

	if todayPnL, err := o.ledger.TodayPnL(); err == nil && o.guard.DailyLimitBreached(todayPnL) {
		o.pauseForBreach(todayPnL)
	}
}

// executeSwap 原子两步：先卖后买，中间隔一个落账延时等资金可用。
// 卖出失败则整个换仓放弃；卖出成功而买入失败时资金留在计价币上，
// 由下一轮扫描自然消化。
func (o *Orchestrator) executeSwap(ctx context.Context, d decision.Decision) {
	pos, ok := o.ledger.Position(d.SellInstrument)
	if !ok {
		logger.Warnf("trader: swap sell %s no longer held", d.SellInstrument)
		return
	}
	before := o.ledger.OpenCount()
	o.executeSell(ctx, pos, "swap")
	if o.ledger.OpenCount() >= before {
		logger.Warnf("trader: swap aborted, %s did not close", d.SellInstrument)
		return
	}
	if o.State() != StateRunning {
		// 卖出那一笔可能恰好触发熔断。
		return
	}
	if !o.sleepFn(ctx, time.Duration(o.cfg.SettleDelaySeconds)*time.Second) {
		return
	}
	balance, err := o.availableQuote(ctx)
	if err != nil {
		logger.Errorf("trader: swap balance query failed: %v", err)
		return
	}
	amount := trading.ClampInvestment(balance*0.98, balance, o.cfg.MinOrderQuote, o.cfg.MaxBalanceRatio)
	if amount <= 0 {
		logger.Warnf("trader: swap proceeds %.2f cannot fund a minimum order", balance)
		return
	}
	o.executeBuy(ctx, d.Instrument, amount, "swap: "+d.Reason)
}

// awaitFill 先等落账延时再轮询订单状态，直到终态或超时。
func (o *Orchestrator) awaitFill(ctx context.Context, handle exchange.OrderHandle) (exchange.OrderStatus, bool) {
	if !o.sleepFn(ctx, time.Duration(o.cfg.SettleDelaySeconds)*time.Second) {
		return exchange.OrderStatus{}, false
	}
	deadline := o.nowFn().Add(time.Duration(o.cfg.OrderPollTimeoutSeconds) * time.Second)
	for {
		status, err := o.exchange.GetOrderStatus(ctx, handle)
		if err != nil {
			logger.Warnf("trader: order %d status failed: %v", handle.OrderID, err)
		} else {
			switch status.State {
			case exchange.OrderStateDone:
				return status, true
			case exchange.OrderStateFailed:
				return status, false
			}
		}
		if o.nowFn().After(deadline) {
			return exchange.OrderStatus{}, false
		}
		if !o.sleepFn(ctx, time.Duration(o.cfg.OrderPollSeconds)*time.Second) {
			return exchange.OrderStatus{}, false
		}
	}
}
