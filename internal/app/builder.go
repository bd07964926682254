package app

import (
	"context"
	"fmt"
	"time"

	"coinbutler/internal/config"
	"coinbutler/internal/decision"
	"coinbutler/internal/gateway/binance"
	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/gateway/notifier"
	"coinbutler/internal/gateway/provider"
	"coinbutler/internal/ledger"
	"coinbutler/internal/market"
	"coinbutler/internal/pkg/circuit"
	"coinbutler/internal/reconcile"
	"coinbutler/internal/report"
	"coinbutler/internal/risk"
	"coinbutler/internal/scanner"
	"coinbutler/internal/store/gormstore"
	"coinbutler/internal/store/tradelog"
	"coinbutler/internal/trader"
	adminhttp "coinbutler/internal/transport/http"
)

// AppBuilder 把配置装配成可运行的 App。工厂函数留成字段，测试可替换。
type AppBuilder struct {
	cfg *config.Config

	exchangeFn func(*config.Config) exchange.Client
	notifierFn func(*config.Config) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		exchangeFn: buildExchange,
		notifierFn: buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithExchange 覆盖交易所客户端（测试/回放用）。
func WithExchange(client exchange.Client) AppBuilderOption {
	return func(b *AppBuilder) {
		b.exchangeFn = func(*config.Config) exchange.Client { return client }
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg

	positionStore, err := gormstore.New(cfg.App.PositionDB)
	if err != nil {
		return nil, fmt.Errorf("打开持仓库失败: %w", err)
	}
	trades, err := tradelog.Open(cfg.App.TradeLogDB)
	if err != nil {
		positionStore.Close()
		return nil, fmt.Errorf("打开交易日志失败: %w", err)
	}
	book := ledger.New(positionStore, trades)

	profiles, err := risk.NewRegistry(cfg.Risk.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("加载风控档位失败: %w", err)
	}
	guard := risk.NewGuardrail(profiles, cfg.Risk)

	exchangeClient := b.exchangeFn(cfg)
	reconciler := reconcile.New(book, exchangeClient, cfg.Exchange.Quote, cfg.Trading.MinOrderQuote)

	prompts, err := decision.LoadPrompts(cfg.AI.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("加载提示词失败: %w", err)
	}
	primary := buildModel(cfg.AI.Primary)
	var fallback decision.ModelCaller
	if cfg.AI.Fallback.APIURL != "" {
		fallback = buildModel(cfg.AI.Fallback)
	}
	breaker := circuit.NewBreaker("ai", cfg.AI.BreakerThreshold,
		time.Duration(cfg.AI.BreakerTimeoutSeconds)*time.Second)
	threshold := func() int { return profiles.Current().ConfidenceThreshold }
	advisor := decision.NewAdvisor(primary, fallback, prompts, breaker, positionStore, threshold)
	engine := decision.NewEngine(advisor, threshold, cfg.Exchange.Quote,
		cfg.Trading.MinOrderQuote, cfg.Trading.MaxBalanceRatio)

	marketCtx := market.NewContextService(exchangeClient, market.NewFearGreedService(), cfg.Exchange.Quote)
	scan := scanner.New(exchangeClient, cfg.Scanner)
	sink := notifier.NewSink(b.notifierFn(cfg))

	orchestrator := trader.New(trader.Deps{
		Config:   cfg.Trading,
		Quote:    cfg.Exchange.Quote,
		Exchange: exchangeClient,
		Ledger:   book,
		Guard:    guard,
		Scanner:  scan,
		Engine:   engine,
		Market:   marketCtx,
		Notify:   sink,
	})

	reportBuilder := report.NewBuilder(positionStore, trades, cfg.App.ReportTitle)
	httpServer, err := adminhttp.NewServer(adminhttp.Config{
		Addr:         cfg.App.HTTPAddr,
		Orchestrator: orchestrator,
		Ledger:       book,
		Reconciler:   reconciler,
		Report:       reportBuilder,
		StatsDays:    cfg.App.StatsDays,
		RecentTrades: cfg.App.RecentTrades,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化管理接口失败: %w", err)
	}

	return &App{
		cfg:           cfg,
		ledger:        book,
		positionStore: positionStore,
		trades:        trades,
		reconciler:    reconciler,
		orchestrator:  orchestrator,
		httpServer:    httpServer,
	}, nil
}

func buildExchange(cfg *config.Config) exchange.Client {
	return binance.New(binance.Config{
		APIKey:      cfg.Exchange.APIKey,
		SecretKey:   cfg.Exchange.SecretKey,
		RESTBaseURL: cfg.Exchange.RESTBaseURL,
		Quote:       cfg.Exchange.Quote,
		HTTPTimeout: time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
	})
}

func buildNotifier(cfg *config.Config) notifier.TextNotifier {
	tg := cfg.Notify.Telegram
	if !tg.Enabled {
		return notifier.Noop{}
	}
	return notifier.NewTelegram(tg.BotToken, tg.ChatID)
}

func buildModel(cfg config.ModelConfig) *provider.ChatClient {
	return &provider.ChatClient{
		Name:       cfg.Name,
		BaseURL:    cfg.APIURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
	}
}
