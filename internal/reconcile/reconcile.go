// Package reconcile rebuilds the open-position index from exchange truth at
// startup. Balances win over the persisted file: positions the exchange no
// longer holds are dropped, holdings the file never saw are adopted with a
// best-effort entry price.
package reconcile

import (
	"context"
	"time"

	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/ledger"
	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/symbol"
	"coinbutler/internal/pkg/trading"
	"coinbutler/internal/types"
)

type Reconciler struct {
	ledger      *ledger.Ledger
	exchange    exchange.Client
	quote       string
	minNotional float64 // balances worth less than this are dust, not positions
	nowFn       func() time.Time
}

func New(l *ledger.Ledger, client exchange.Client, quote string, minNotional float64) *Reconciler {
	return &Reconciler{
		ledger:      l,
		exchange:    client,
		quote:       quote,
		minNotional: minNotional,
		nowFn:       time.Now,
	}
}

// Run 执行一次对账。交易所查询失败只降级为沿用文件索引并记日志，
// 永远不让进程在启动阶段死掉。幂等：交易所状态不变时重复执行得到
// 同一份索引。
func (r *Reconciler) Run(ctx context.Context) error {
	restored, err := r.ledger.Load()
	if err != nil {
		logger.Warnf("reconcile: persisted index unreadable, treating as empty: %v", err)
	} else {
		logger.Infof("reconcile: restored %d persisted positions", len(restored))
	}
	prior := make(map[string]types.Position, len(restored))
	for _, pos := range restored {
		prior[pos.Instrument] = pos
	}

	balances, err := r.exchange.GetBalances(ctx)
	if err != nil {
		logger.Errorf("reconcile: balance query failed, keeping file-derived index: %v", err)
		return nil
	}

	reconciled := make([]types.Position, 0, len(balances))
	for _, bal := range balances {
		if symbol.Normalize(bal.Asset) == symbol.Normalize(r.quote) || bal.Free <= 0 {
			continue
		}
		instrument := symbol.Pair(bal.Asset, r.quote)
		price, err := r.exchange.GetPrice(ctx, instrument)
		if err != nil {
			logger.Warnf("reconcile: price for %s unavailable, skipping balance: %v", instrument, err)
			continue
		}
		if trading.Notional(bal.Free, price) < r.minNotional {
			continue
		}
		reconciled = append(reconciled, r.rebuild(instrument, bal.Free, price, prior))
	}

	if err := r.ledger.ReplaceAll(reconciled); err != nil {
		return err
	}
	logger.Infof("reconcile: index now holds %d positions (exchange truth)", len(reconciled))
	return nil
}

// rebuild 为一个交易所持仓恢复账本条目。入场价优先级：文件记录 >
// 审计日志里最近一笔买入 > 当前市价（标记为估算）。
func (r *Reconciler) rebuild(instrument string, quantity, price float64, prior map[string]types.Position) types.Position {
	if pos, ok := prior[instrument]; ok {
		pos.Quantity = quantity
		pos.Investment = trading.Notional(quantity, pos.EntryPrice)
		return pos
	}
	if buy, ok, err := r.ledger.LastBuy(instrument); err == nil && ok {
		return types.Position{
			Instrument: instrument,
			EntryPrice: buy.Price,
			Quantity:   quantity,
			Investment: trading.Notional(quantity, buy.Price),
			EntryTime:  buy.Timestamp,
			Status:     types.PositionOpen,
		}
	}
	logger.Warnf("reconcile: no buy history for %s, estimating entry at market price %.6f", instrument, price)
	return types.Position{
		Instrument:     instrument,
		EntryPrice:     price,
		Quantity:       quantity,
		Investment:     trading.Notional(quantity, price),
		EntryTime:      r.nowFn(),
		Status:         types.PositionOpen,
		EntryEstimated: true,
	}
}
