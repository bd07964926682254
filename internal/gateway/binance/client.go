package binance

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"coinbutler/internal/gateway/exchange"
	symbolpkg "coinbutler/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxCandleLimit = 1000

// Client 基于 go-binance SDK 实现 exchange.Client（现货）。
type Client struct {
	cfg Config
	api *binance.Client
}

var _ exchange.Client = (*Client)(nil)

func New(cfg Config) *Client {
	final := cfg.withDefaults()
	api := binance.NewClient(final.APIKey, final.SecretKey)
	api.BaseURL = final.RESTBaseURL
	api.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Client{cfg: final, api: api}
}

// Quote returns the configured quote currency.
func (c *Client) Quote() string { return c.cfg.Quote }

func (c *Client) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("account query failed: %w", err)
	}
	out := make([]exchange.Balance, 0, len(account.Balances))
	for _, bal := range account.Balances {
		free := parseFloat(bal.Free)
		if free <= 0 {
			continue
		}
		out = append(out, exchange.Balance{
			Asset: symbolpkg.Normalize(bal.Asset),
			Free:  free,
		})
	}
	return out, nil
}

func (c *Client) GetPrice(ctx context.Context, instrument string) (float64, error) {
	instrument = symbolpkg.Normalize(instrument)
	if instrument == "" {
		return 0, fmt.Errorf("instrument is required")
	}
	prices, err := c.api.NewListPricesService().Symbol(instrument).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("price query failed (%s): %w", instrument, err)
	}
	if len(prices) == 0 || prices[0] == nil {
		return 0, fmt.Errorf("no price for %s", instrument)
	}
	return parseFloat(prices[0].Price), nil
}

// GetRecentCandles returns up to count closed candles, newest first.
func (c *Client) GetRecentCandles(ctx context.Context, instrument string, intervalMinutes, count int) ([]exchange.Candle, error) {
	instrument = symbolpkg.Normalize(instrument)
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if count <= 0 {
		count = 100
	}
	if count > maxCandleLimit {
		count = maxCandleLimit
	}
	kls, err := c.api.NewKlinesService().
		Symbol(instrument).
		Interval(intervalString(intervalMinutes)).
		Limit(count).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("kline query failed (%s): %w", instrument, err)
	}
	out := make([]exchange.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, exchange.Candle{
			OpenTime:    millisTime(kl.OpenTime),
			CloseTime:   millisTime(kl.CloseTime),
			Open:        parseFloat(kl.Open),
			High:        parseFloat(kl.High),
			Low:         parseFloat(kl.Low),
			Close:       parseFloat(kl.Close),
			Volume:      parseFloat(kl.Volume),
			QuoteVolume: parseFloat(kl.QuoteAssetVolume),
		})
	}
	// Binance returns oldest first; the scanner wants newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetTickers returns 24h stats for every pair in the configured quote
// currency, sorted by traded quote volume descending. Leveraged tokens are
// filtered out; they spike on volume constantly and are not spot plays.
func (c *Client) GetTickers(ctx context.Context) ([]exchange.Ticker, error) {
	stats, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ticker query failed: %w", err)
	}
	out := make([]exchange.Ticker, 0, 64)
	for _, st := range stats {
		if st == nil {
			continue
		}
		sym := symbolpkg.Normalize(st.Symbol)
		if !strings.HasSuffix(sym, c.cfg.Quote) || sym == c.cfg.Quote {
			continue
		}
		base := symbolpkg.Base(sym, c.cfg.Quote)
		if strings.HasSuffix(base, "UP") || strings.HasSuffix(base, "DOWN") ||
			strings.HasSuffix(base, "BULL") || strings.HasSuffix(base, "BEAR") {
			continue
		}
		out = append(out, exchange.Ticker{
			Instrument:  sym,
			LastPrice:   parseFloat(st.LastPrice),
			ChangeRate:  parseFloat(st.PriceChangePercent) / 100,
			QuoteVolume: parseFloat(st.QuoteVolume),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuoteVolume > out[j].QuoteVolume })
	return out, nil
}

func (c *Client) PlaceMarketBuy(ctx context.Context, instrument string, notionalAmount float64) (exchange.OrderHandle, error) {
	instrument = symbolpkg.Normalize(instrument)
	if notionalAmount <= 0 {
		return exchange.OrderHandle{}, fmt.Errorf("buy notional must be positive")
	}
	resp, err := c.api.NewCreateOrderService().
		Symbol(instrument).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatAmount(notionalAmount, 2)).
		NewClientOrderID("cb-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return exchange.OrderHandle{}, fmt.Errorf("market buy failed (%s): %w", instrument, err)
	}
	return exchange.OrderHandle{Instrument: instrument, OrderID: resp.OrderID}, nil
}

func (c *Client) PlaceMarketSell(ctx context.Context, instrument string, quantity float64) (exchange.OrderHandle, error) {
	instrument = symbolpkg.Normalize(instrument)
	if quantity <= 0 {
		return exchange.OrderHandle{}, fmt.Errorf("sell quantity must be positive")
	}
	resp, err := c.api.NewCreateOrderService().
		Symbol(instrument).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(formatAmount(quantity, 6)).
		NewClientOrderID("cb-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return exchange.OrderHandle{}, fmt.Errorf("market sell failed (%s): %w", instrument, err)
	}
	return exchange.OrderHandle{Instrument: instrument, OrderID: resp.OrderID}, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, handle exchange.OrderHandle) (exchange.OrderStatus, error) {
	order, err := c.api.NewGetOrderService().
		Symbol(handle.Instrument).
		OrderID(handle.OrderID).
		Do(ctx)
	if err != nil {
		return exchange.OrderStatus{}, fmt.Errorf("order status query failed (%s/%d): %w", handle.Instrument, handle.OrderID, err)
	}
	status := exchange.OrderStatus{ExecutedQuantity: parseFloat(order.ExecutedQuantity)}
	if qty := status.ExecutedQuantity; qty > 0 {
		status.AveragePrice = parseFloat(order.CummulativeQuoteQuantity) / qty
	}
	switch order.Status {
	case binance.OrderStatusTypeFilled:
		status.State = exchange.OrderStateDone
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		status.State = exchange.OrderStateFailed
	default:
		status.State = exchange.OrderStatePending
	}
	return status, nil
}

func intervalString(minutes int) string {
	switch {
	case minutes <= 0:
		return "5m"
	case minutes%1440 == 0:
		return strconv.Itoa(minutes/1440) + "d"
	case minutes%60 == 0:
		return strconv.Itoa(minutes/60) + "h"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}

// formatAmount truncates instead of rounding so order size never exceeds the
// intended notional or the held quantity.
func formatAmount(v float64, places int32) string {
	return decimal.NewFromFloat(v).RoundFloor(places).String()
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func millisTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
