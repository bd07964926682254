package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"coinbutler/internal/config"
	"coinbutler/internal/gateway/exchange"
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

func testScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		CandleMinutes:    5,
		Lookback:         4,
		VolumeMultiplier: 2.0,
		ChangeCeiling:    0.05,
		UniverseSize:     60,
		MaxCandidates:    10,
		MinQuoteVolume:   0,
	}
}

// candlesWithLatestVolume 返回 5 根 K 线（最新在前），前 4 根量均为 100。
func candlesWithLatestVolume(latest float64) []exchange.Candle {
	out := []exchange.Candle{{Close: 10, Volume: latest}}
	for i := 0; i < 4; i++ {
		out = append(out, exchange.Candle{Close: 10, Volume: 100})
	}
	return out
}

func TestScanPicksVolumeSpikes(t *testing.T) {
	client := new(MockClient)
	client.On("GetTickers", mock.Anything).Return([]exchange.Ticker{
		{Instrument: "AAAUSDT", LastPrice: 10, ChangeRate: 0.02, QuoteVolume: 5_000_000},
		{Instrument: "BBBUSDT", LastPrice: 5, ChangeRate: 0.01, QuoteVolume: 9_000_000},
		{Instrument: "CCCUSDT", LastPrice: 2, ChangeRate: 0.01, QuoteVolume: 1_000_000},
	}, nil)
	// AAA 放量 3x，BBB 放量 2x（恰好达标），CCC 只有 1.5x。
	client.On("GetRecentCandles", mock.Anything, "AAAUSDT", 5, 5).Return(candlesWithLatestVolume(300), nil)
	client.On("GetRecentCandles", mock.Anything, "BBBUSDT", 5, 5).Return(candlesWithLatestVolume(200), nil)
	client.On("GetRecentCandles", mock.Anything, "CCCUSDT", 5, 5).Return(candlesWithLatestVolume(150), nil)

	s := New(client, testScannerConfig())
	got, err := s.Scan(context.Background(), nil)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	// 按成交额排序：BBB(9M) 在 AAA(5M) 之前。
	assert.Equal(t, "BBBUSDT", got[0].Instrument)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "AAAUSDT", got[1].Instrument)
	assert.Equal(t, 2, got[1].Rank)
	assert.InDelta(t, 3.0, got[1].VolumeRatio, 1e-9)
}

func TestScanSkipsHeldAndRunawayPrices(t *testing.T) {
	client := new(MockClient)
	client.On("GetTickers", mock.Anything).Return([]exchange.Ticker{
		{Instrument: "HELDUSDT", LastPrice: 10, ChangeRate: 0.01, QuoteVolume: 5_000_000},
		{Instrument: "PUMPUSDT", LastPrice: 10, ChangeRate: 0.08, QuoteVolume: 5_000_000},
		{Instrument: "DUMPUSDT", LastPrice: 10, ChangeRate: -0.06, QuoteVolume: 5_000_000},
	}, nil)

	s := New(client, testScannerConfig())
	got, err := s.Scan(context.Background(), map[string]bool{"HELDUSDT": true})
	assert.NoError(t, err)
	assert.Empty(t, got)
	// 涨跌幅超上限的币对连 K 线都不该去拉。
	client.AssertNotCalled(t, "GetRecentCandles", mock.Anything, "PUMPUSDT", 5, 5)
	client.AssertNotCalled(t, "GetRecentCandles", mock.Anything, "DUMPUSDT", 5, 5)
}

func TestScanToleratesPerSymbolFailures(t *testing.T) {
	client := new(MockClient)
	client.On("GetTickers", mock.Anything).Return([]exchange.Ticker{
		{Instrument: "AAAUSDT", LastPrice: 10, ChangeRate: 0.01, QuoteVolume: 5_000_000},
		{Instrument: "BADUSDT", LastPrice: 10, ChangeRate: 0.01, QuoteVolume: 6_000_000},
	}, nil)
	client.On("GetRecentCandles", mock.Anything, "AAAUSDT", 5, 5).Return(candlesWithLatestVolume(300), nil)
	client.On("GetRecentCandles", mock.Anything, "BADUSDT", 5, 5).Return([]exchange.Candle{}, assert.AnError)

	s := New(client, testScannerConfig())
	got, err := s.Scan(context.Background(), nil)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "AAAUSDT", got[0].Instrument)
}
