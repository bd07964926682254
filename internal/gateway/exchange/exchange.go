// Package exchange defines the wire-client surface the core trades through.
// The concrete implementation lives in gateway/binance; tests substitute fakes.
package exchange

import (
	"context"
	"time"
)

// Balance is one non-zero asset holding.
type Balance struct {
	Asset string
	Free  float64
}

// Candle is a closed kline for one interval.
type Candle struct {
	OpenTime    time.Time
	CloseTime   time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
}

// Ticker is the rolling 24h view of one instrument.
type Ticker struct {
	Instrument  string
	LastPrice   float64
	ChangeRate  float64 // signed fraction
	QuoteVolume float64
}

// OrderState is the terminal/non-terminal classification of an order.
type OrderState string

const (
	OrderStateDone    OrderState = "done"
	OrderStatePending OrderState = "pending"
	OrderStateFailed  OrderState = "failed"
)

// OrderHandle identifies a placed order for later status polling.
type OrderHandle struct {
	Instrument string
	OrderID    int64
}

// OrderStatus is the execution outcome of an order.
type OrderStatus struct {
	State            OrderState
	ExecutedQuantity float64
	AveragePrice     float64
}

// Client is the spot exchange surface consumed by the core. All calls are
// blocking; callers bound them with the context deadline.
type Client interface {
	// GetBalances returns every non-zero balance, quote currency included.
	GetBalances(ctx context.Context) ([]Balance, error)
	// GetPrice returns the last trade price of an instrument.
	GetPrice(ctx context.Context, instrument string) (float64, error)
	// GetRecentCandles returns up to count most-recent closed candles, newest
	// first, for the given interval in minutes.
	GetRecentCandles(ctx context.Context, instrument string, intervalMinutes, count int) ([]Candle, error)
	// GetTickers returns 24h stats for every instrument quoted in the
	// configured quote currency, most-traded first.
	GetTickers(ctx context.Context) ([]Ticker, error)
	// PlaceMarketBuy spends notionalAmount of quote currency at market.
	PlaceMarketBuy(ctx context.Context, instrument string, notionalAmount float64) (OrderHandle, error)
	// PlaceMarketSell sells quantity of the base asset at market.
	PlaceMarketSell(ctx context.Context, instrument string, quantity float64) (OrderHandle, error)
	// GetOrderStatus polls a previously placed order.
	GetOrderStatus(ctx context.Context, handle OrderHandle) (OrderStatus, error)
}
