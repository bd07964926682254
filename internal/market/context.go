package market

import (
	"context"
	"math"

	"coinbutler/internal/analysis"
	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/symbol"
	"coinbutler/internal/types"
)

// ContextService 汇总 BTC/ETH 价格、BTC RSI、小时级波动率与贪婪恐惧指数。
// 单项数据缺失只降级（字段留零值），不让整次决策失败。
type ContextService struct {
	exchange  exchange.Client
	fearGreed *FearGreedService
	quote     string
}

func NewContextService(client exchange.Client, fearGreed *FearGreedService, quote string) *ContextService {
	return &ContextService{exchange: client, fearGreed: fearGreed, quote: quote}
}

func (s *ContextService) Build(ctx context.Context) types.MarketContext {
	var mc types.MarketContext
	btc := symbol.Pair("BTC", s.quote)
	eth := symbol.Pair("ETH", s.quote)

	if price, err := s.exchange.GetPrice(ctx, btc); err != nil {
		logger.Warnf("market: BTC price failed: %v", err)
	} else {
		mc.BTCPrice = price
	}
	if price, err := s.exchange.GetPrice(ctx, eth); err != nil {
		logger.Warnf("market: ETH price failed: %v", err)
	} else {
		mc.ETHPrice = price
	}

	// 1h K 线：RSI 需要 14+，波动率取 24 根收益率。
	candles, err := s.exchange.GetRecentCandles(ctx, btc, 60, 48)
	if err != nil {
		logger.Warnf("market: BTC candles failed: %v", err)
	} else {
		mc.BTCRSI = analysis.RSIValue(candles)
		mc.Volatility = hourlyVolatility(candles, 24)
		mc.Sentiment = classifySentiment(mc.BTCRSI, change24h(candles))
	}

	if fg, ok := s.fearGreed.Get(ctx); ok {
		mc.FearGreedValue = fg.Value
		mc.FearGreedLabel = fg.Label
	}
	return mc
}

// hourlyVolatility 最近 n 根小时线收益率的标准差。candles 最新在前。
func hourlyVolatility(candles []exchange.Candle, n int) float64 {
	if len(candles) < 2 {
		return 0
	}
	if n > len(candles)-1 {
		n = len(candles) - 1
	}
	returns := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		prev := candles[i+1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(returns)))
}

func change24h(candles []exchange.Candle) float64 {
	if len(candles) < 25 {
		return 0
	}
	base := candles[24].Close
	if base <= 0 {
		return 0
	}
	return (candles[0].Close - base) / base
}

func classifySentiment(rsi, change float64) string {
	switch {
	case rsi >= 60 || change >= 0.03:
		return "bullish"
	case rsi > 0 && rsi <= 40, change <= -0.03:
		return "bearish"
	default:
		return "neutral"
	}
}
