package app

import (
	"context"
	"fmt"

	"coinbutler/internal/config"
	"coinbutler/internal/ledger"
	"coinbutler/internal/logger"
	"coinbutler/internal/reconcile"
	"coinbutler/internal/store/gormstore"
	"coinbutler/internal/store/tradelog"
	"coinbutler/internal/trader"
	adminhttp "coinbutler/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→对账→启动交易循环与管理接口。
type App struct {
	cfg           *config.Config
	ledger        *ledger.Ledger
	positionStore *gormstore.Store
	trades        *tradelog.Store
	reconciler    *reconcile.Reconciler
	orchestrator  *trader.Orchestrator
	httpServer    *adminhttp.Server
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 先对账、再加载持仓，然后并行启动交易循环与 HTTP 管理接口。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	// 启动顺序有讲究：先让交易所余额覆盖本地索引，交易循环才
	// 能在干净的持仓视图上开工。
	if err := a.reconciler.Run(ctx); err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}
	open := a.ledger.OpenPositions()
	logger.Infof("app: reconciled, %d open position(s)", len(open))
	for _, pos := range open {
		logger.Infof("app: holding %s qty=%.8f entry=%.8f invested=%.2f",
			pos.Instrument, pos.Quantity, pos.EntryPrice, pos.Investment)
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		group.Go(func() error {
			if err := a.httpServer.Start(ctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		return a.orchestrator.Run(ctx)
	})

	return group.Wait()
}

// Orchestrator exposes the trading loop instance (for testing/replay harnesses).
func (a *App) Orchestrator() *trader.Orchestrator {
	if a == nil {
		return nil
	}
	return a.orchestrator
}

// Close 释放持久化资源。重复调用是安全的。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.trades != nil {
		if err := a.trades.Close(); err != nil {
			logger.Warnf("app: closing trade log: %v", err)
		}
		a.trades = nil
	}
	if a.positionStore != nil {
		if err := a.positionStore.Close(); err != nil {
			logger.Warnf("app: closing position store: %v", err)
		}
		a.positionStore = nil
	}
}
