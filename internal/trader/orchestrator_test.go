package trader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"coinbutler/internal/config"
	"coinbutler/internal/decision"
	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/gateway/notifier"
	"coinbutler/internal/ledger"
	"coinbutler/internal/risk"
	"coinbutler/internal/store/gormstore"
	"coinbutler/internal/store/tradelog"
	"coinbutler/internal/types"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).([]exchange.Balance), args.Error(1)
}

func (m *MockClient) GetPrice(ctx context.Context, instrument string) (float64, error) {
	args := m.Called(ctx, instrument)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockClient) GetRecentCandles(ctx context.Context, instrument string, intervalMinutes, count int) ([]exchange.Candle, error) {
	args := m.Called(ctx, instrument, intervalMinutes, count)
	return args.Get(0).([]exchange.Candle), args.Error(1)
}

func (m *MockClient) GetTickers(ctx context.Context) ([]exchange.Ticker, error) {
	args := m.Called(ctx)
	return args.Get(0).([]exchange.Ticker), args.Error(1)
}

func (m *MockClient) PlaceMarketBuy(ctx context.Context, instrument string, notionalAmount float64) (exchange.OrderHandle, error) {
	args := m.Called(ctx, instrument, notionalAmount)
	return args.Get(0).(exchange.OrderHandle), args.Error(1)
}

func (m *MockClient) PlaceMarketSell(ctx context.Context, instrument string, quantity float64) (exchange.OrderHandle, error) {
	args := m.Called(ctx, instrument, quantity)
	return args.Get(0).(exchange.OrderHandle), args.Error(1)
}

func (m *MockClient) GetOrderStatus(ctx context.Context, handle exchange.OrderHandle) (exchange.OrderStatus, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(exchange.OrderStatus), args.Error(1)
}

type stubScanner struct {
	candidates []types.Candidate
	err        error
}

func (s *stubScanner) Scan(ctx context.Context, held map[string]bool) ([]types.Candidate, error) {
	return s.candidates, s.err
}

type stubEngine struct {
	decision     decision.Decision
	swapDecision decision.Decision
	decideCalls  int
}

func (s *stubEngine) Decide(ctx context.Context, in decision.Input) decision.Decision {
	s.decideCalls++
	return s.decision
}

func (s *stubEngine) DecideSwap(ctx context.Context, now time.Time, losing []types.Position, prices map[string]float64, candidates []types.Candidate) decision.Decision {
	return s.swapDecision
}

type stubMarket struct{}

func (stubMarket) Build(ctx context.Context) types.MarketContext { return types.MarketContext{} }

func newTestLedger(t *testing.T) *ledger.Ledger {
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
	return ledger.New(positions, trades)
}

func testGuard(dailyLimit float64) *risk.Guardrail {
	return risk.NewGuardrail(
		risk.StaticProfiles(risk.Profile{ProfitTarget: 0.03, StopLoss: -0.02, ConfidenceThreshold: 6}),
		config.RiskConfig{DailyLossLimit: dailyLimit, MaxPositions: 3, SwapLossThreshold: -0.05, SwapMinHoldingDays: 1},
	)
}

func newTestOrchestrator(t *testing.T, client *MockClient, l *ledger.Ledger, guard *risk.Guardrail, sc candidateScanner, eng decisionEngine) *Orchestrator {
	t.Helper()
	o := New(Deps{
		Config: config.TradingConfig{
			TickSeconds:             60,
			ScanIntervalMinutes:     10,
			BalanceCheckMinutes:     30,
			SwapCheckMinutes:        5,
			SettleDelaySeconds:      0,
			OrderPollSeconds:        0,
			OrderPollTimeoutSeconds: 5,
			MinOrderQuote:           10,
			MaxBalanceRatio:         0.8,
		},
		Quote:    "USDT",
		Exchange: client,
		Ledger:   l,
		Guard:    guard,
		Scanner:  sc,
		Engine:   eng,
		Market:   stubMarket{},
		Notify:   notifier.NewSink(nil),
	})
	o.sleepFn = func(ctx context.Context, d time.Duration) bool { return true }
	return o
}

func TestTickPausesOnDailyLimitBreach(t *testing.T) {
	l := newTestLedger(t)
	// 实现 -60 的已实现亏损：买入 100 卖出 40。
	assert.NoError(t, l.Open("AUSDT", 10, 10, 100))
	_, _, err := l.Close("AUSDT", 4)
	assert.NoError(t, err)

	client := new(MockClient)
	o := newTestOrchestrator(t, client, l, testGuard(-50), &stubScanner{}, &stubEngine{})

	assert.Equal(t, StateRunning, o.State())
	o.tick(context.Background())
	assert.Equal(t, StatePaused, o.State())
	assert.Contains(t, o.PauseReason(), "daily loss")

	// Paused 状态下不再扫描下单。
	o.tick(context.Background())
	client.AssertNotCalled(t, "GetTickers", mock.Anything)
	client.AssertNotCalled(t, "PlaceMarketBuy", mock.Anything, mock.Anything, mock.Anything)

	// 只有显式 resume 才恢复。
	o.Resume()
	assert.Equal(t, StateRunning, o.State())
}

func TestTickTakesProfitAtBoundary(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("SOLUSDT", 100, 10, 1000))

	client := new(MockClient)
	client.On("GetPrice", mock.Anything, "SOLUSDT").Return(103.0, nil)
	client.On("PlaceMarketSell", mock.Anything, "SOLUSDT", 10.0).
		Return(exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 7}, nil)
	client.On("GetOrderStatus", mock.Anything, exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 7}).
		Return(exchange.OrderStatus{State: exchange.OrderStateDone, ExecutedQuantity: 10, AveragePrice: 103}, nil)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{{Asset: "USDT", Free: 1000}}, nil)

	eng := &stubEngine{decision: decision.Decision{Action: decision.ActionNone}}
	o := newTestOrchestrator(t, client, l, testGuard(-50000), &stubScanner{}, eng)

	o.tick(context.Background())
	assert.Equal(t, 0, l.OpenCount(), "position closed at +3.00%")
	today, err := l.TodayPnL()
	assert.NoError(t, err)
	assert.InDelta(t, 30.0, today, 1e-6)
}

func TestTickBuysWhenEngineSaysBuy(t *testing.T) {
	l := newTestLedger(t)
	client := new(MockClient)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{{Asset: "USDT", Free: 1000}}, nil)
	client.On("GetRecentCandles", mock.Anything, mock.Anything, 5, 60).Return([]exchange.Candle{}, assert.AnError)
	client.On("PlaceMarketBuy", mock.Anything, "SOLUSDT", 600.0).
		Return(exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 11}, nil)
	client.On("GetOrderStatus", mock.Anything, exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 11}).
		Return(exchange.OrderStatus{State: exchange.OrderStateDone, ExecutedQuantity: 5.94, AveragePrice: 101}, nil)

	sc := &stubScanner{candidates: []types.Candidate{{Instrument: "SOLUSDT", Price: 100, VolumeRatio: 3, Notional: 1_000_000, Rank: 1}}}
	eng := &stubEngine{decision: decision.Decision{Action: decision.ActionBuy, Instrument: "SOLUSDT", Amount: 600, Reason: "test", Source: "rule"}}
	o := newTestOrchestrator(t, client, l, testGuard(-50000), sc, eng)

	o.tick(context.Background())
	assert.Equal(t, 1, l.OpenCount())
	pos, ok := l.Position("SOLUSDT")
	assert.True(t, ok)
	assert.Equal(t, 101.0, pos.EntryPrice, "entry uses executed average price")
	assert.InDelta(t, 5.94*101, pos.Investment, 1e-6)
}

func TestTickNoCandidatesNoOrder(t *testing.T) {
	l := newTestLedger(t)
	client := new(MockClient)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{{Asset: "USDT", Free: 1000}}, nil)

	eng := &stubEngine{}
	o := newTestOrchestrator(t, client, l, testGuard(-50000), &stubScanner{}, eng)

	o.tick(context.Background())
	assert.Equal(t, 0, eng.decideCalls, "engine not consulted without candidates")
	client.AssertNotCalled(t, "PlaceMarketBuy", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnconfirmedOrderLeavesLedgerUntouched(t *testing.T) {
	l := newTestLedger(t)
	client := new(MockClient)
	client.On("PlaceMarketBuy", mock.Anything, "SOLUSDT", 600.0).
		Return(exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 13}, nil)
	client.On("GetOrderStatus", mock.Anything, mock.Anything).
		Return(exchange.OrderStatus{State: exchange.OrderStatePending}, nil)

	o := newTestOrchestrator(t, client, l, testGuard(-50000), &stubScanner{}, &stubEngine{})
	// 把超时钟拨到已过期，pending 订单立刻放弃。
	base := time.Now()
	calls := 0
	o.nowFn = func() time.Time {
		calls++
		if calls > 1 {
			return base.Add(time.Hour)
		}
		return base
	}

	o.executeBuy(context.Background(), "SOLUSDT", 600, "test")
	assert.Equal(t, 0, l.OpenCount(), "no fill confirmation, no ledger mutation")
}

func TestSwapSellThenBuy(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("DOGEUSDT", 0.2, 5000, 1000))

	client := new(MockClient)
	client.On("PlaceMarketSell", mock.Anything, "DOGEUSDT", 5000.0).
		Return(exchange.OrderHandle{Instrument: "DOGEUSDT", OrderID: 21}, nil)
	client.On("GetOrderStatus", mock.Anything, exchange.OrderHandle{Instrument: "DOGEUSDT", OrderID: 21}).
		Return(exchange.OrderStatus{State: exchange.OrderStateDone, ExecutedQuantity: 5000, AveragePrice: 0.18}, nil)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{{Asset: "USDT", Free: 900}}, nil)
	client.On("PlaceMarketBuy", mock.Anything, "SOLUSDT", 720.0).
		Return(exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 22}, nil)
	client.On("GetOrderStatus", mock.Anything, exchange.OrderHandle{Instrument: "SOLUSDT", OrderID: 22}).
		Return(exchange.OrderStatus{State: exchange.OrderStateDone, ExecutedQuantity: 7.1, AveragePrice: 101}, nil)

	o := newTestOrchestrator(t, client, l, testGuard(-50000), &stubScanner{}, &stubEngine{})
	o.executeSwap(context.Background(), decision.Decision{
		Action:         decision.ActionSwap,
		Instrument:     "SOLUSDT",
		SellInstrument: "DOGEUSDT",
		Reason:         "rotation",
	})

	_, stillHeld := l.Position("DOGEUSDT")
	assert.False(t, stillHeld)
	_, bought := l.Position("SOLUSDT")
	assert.True(t, bought)
}
