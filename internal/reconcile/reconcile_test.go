package reconcile

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/ledger"
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

func instruments(positions []types.Position) []string {
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.Instrument)
	}
	sort.Strings(out)
	return out
}

func TestRunAdoptsExchangeTruth(t *testing.T) {
	l := newTestLedger(t)
	// BTC 在文件里也在交易所；SOL 只在审计日志里有买入记录（模拟索引
	// 写入前崩溃）；XRP 完全没有历史。
	assert.NoError(t, l.Open("BTCUSDT", 50000, 0.02, 1000))
	assert.NoError(t, l.Open("SOLUSDT", 100, 10, 1000))
	var keep []types.Position
	for _, p := range l.OpenPositions() {
		if p.Instrument == "BTCUSDT" {
			keep = append(keep, p)
		}
	}
	assert.NoError(t, l.ReplaceAll(keep)) // 只保留 BTC

	client := new(MockClient)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{
		{Asset: "BTC", Free: 0.02},
		{Asset: "SOL", Free: 10},
		{Asset: "XRP", Free: 100},
		{Asset: "USDT", Free: 500},
		{Asset: "DUST", Free: 0.001},
	}, nil)
	client.On("GetPrice", mock.Anything, "BTCUSDT").Return(51000.0, nil)
	client.On("GetPrice", mock.Anything, "SOLUSDT").Return(95.0, nil)
	client.On("GetPrice", mock.Anything, "XRPUSDT").Return(0.5, nil)
	client.On("GetPrice", mock.Anything, "DUSTUSDT").Return(1.0, nil)

	r := New(l, client, "USDT", 10)
	assert.NoError(t, r.Run(context.Background()))

	open := l.OpenPositions()
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT", "XRPUSDT"}, instruments(open))

	byInstrument := make(map[string]types.Position)
	for _, p := range open {
		byInstrument[p.Instrument] = p
	}
	assert.Equal(t, 50000.0, byInstrument["BTCUSDT"].EntryPrice, "file record keeps its entry")
	assert.False(t, byInstrument["BTCUSDT"].EntryEstimated)
	assert.Equal(t, 100.0, byInstrument["SOLUSDT"].EntryPrice, "entry recovered from audit buy")
	assert.False(t, byInstrument["SOLUSDT"].EntryEstimated)
	assert.Equal(t, 0.5, byInstrument["XRPUSDT"].EntryPrice, "no history falls back to market price")
	assert.True(t, byInstrument["XRPUSDT"].EntryEstimated)
}

func TestRunIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("BTCUSDT", 50000, 0.02, 1000))

	client := new(MockClient)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{{Asset: "BTC", Free: 0.02}}, nil)
	client.On("GetPrice", mock.Anything, "BTCUSDT").Return(51000.0, nil)

	r := New(l, client, "USDT", 10)
	assert.NoError(t, r.Run(context.Background()))
	first := l.OpenPositions()
	assert.NoError(t, r.Run(context.Background()))
	second := l.OpenPositions()

	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Instrument, second[i].Instrument)
		assert.Equal(t, first[i].EntryPrice, second[i].EntryPrice)
		assert.Equal(t, first[i].Quantity, second[i].Quantity)
		assert.Equal(t, first[i].Investment, second[i].Investment)
	}
}

func TestRunKeepsFileIndexOnExchangeFailure(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("BTCUSDT", 50000, 0.02, 1000))

	client := new(MockClient)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{}, assert.AnError)

	r := New(l, client, "USDT", 10)
	assert.NoError(t, r.Run(context.Background()), "exchange outage must not fail startup")
	assert.Equal(t, []string{"BTCUSDT"}, instruments(l.OpenPositions()))
}

func TestRunDropsPositionsAbsentFromExchange(t *testing.T) {
	l := newTestLedger(t)
	assert.NoError(t, l.Open("BTCUSDT", 50000, 0.02, 1000))
	assert.NoError(t, l.Open("ETHUSDT", 3000, 1, 3000))

	client := new(MockClient)
	client.On("GetBalances", mock.Anything).Return([]exchange.Balance{{Asset: "BTC", Free: 0.02}}, nil)
	client.On("GetPrice", mock.Anything, "BTCUSDT").Return(51000.0, nil)

	r := New(l, client, "USDT", 10)
	assert.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"BTCUSDT"}, instruments(l.OpenPositions()), "exchange is ground truth")
}
