// Package analysis 把 K 线序列压缩成喂给模型的技术指标快照。
package analysis

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/types"
)

const (
	rsiPeriod  = 14
	stochK     = 14
	stochD     = 3
	emaFast    = 20
	emaSlow    = 50
	minCandles = emaSlow + 1
)

// Snapshot 基于最新在前的 K 线序列计算一个 TechnicalSnapshot。
// 至少需要 51 根 K 线，不足时返回错误而不是半截快照。
func Snapshot(instrument string, candles []exchange.Candle) (types.TechnicalSnapshot, error) {
	if len(candles) < minCandles {
		return types.TechnicalSnapshot{}, fmt.Errorf("analysis: %s needs >= %d candles, got %d", instrument, minCandles, len(candles))
	}
	// talib 期望时间正序。
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		j := len(candles) - 1 - i
		closes[j] = c.Close
		highs[j] = c.High
		lows[j] = c.Low
		volumes[j] = c.Volume
	}

	snap := types.TechnicalSnapshot{Instrument: instrument}

	rsi := lastValid(talib.Rsi(closes, rsiPeriod))
	snap.RSI = rsi
	switch {
	case rsi <= 30:
		snap.RSISignal = "oversold"
	case rsi >= 70:
		snap.RSISignal = "overbought"
	default:
		snap.RSISignal = "neutral"
	}

	macd, signal, _ := talib.Macd(closes, 12, 26, 9)
	if lastValid(macd) >= lastValid(signal) {
		snap.MACDTrend = "bullish"
	} else {
		snap.MACDTrend = "bearish"
	}

	k, d := talib.Stoch(highs, lows, closes, stochK, stochD, talib.SMA, stochD, talib.SMA)
	snap.StochK = lastValid(k)
	snap.StochD = lastValid(d)
	switch {
	case snap.StochK <= 20 && snap.StochD <= 20:
		snap.StochSignal = "oversold"
	case snap.StochK >= 80 && snap.StochD >= 80:
		snap.StochSignal = "overbought"
	default:
		snap.StochSignal = "neutral"
	}

	fast := lastValid(talib.Ema(closes, emaFast))
	slow := lastValid(talib.Ema(closes, emaSlow))
	switch {
	case fast > slow:
		snap.MATrend = "up"
	case fast < slow:
		snap.MATrend = "down"
	default:
		snap.MATrend = "flat"
	}

	snap.VolumeRatio = volumeRatio(volumes)
	if first := closes[0]; first > 0 {
		snap.ChangeRate = (closes[len(closes)-1] - first) / first
	}
	return snap, nil
}

// RSIValue 单独计算一个收盘序列（最新在前）的 RSI，供大盘上下文使用。
func RSIValue(candles []exchange.Candle) float64 {
	if len(candles) <= rsiPeriod {
		return 0
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[len(candles)-1-i] = c.Close
	}
	return lastValid(talib.Rsi(closes, rsiPeriod))
}

// volumeRatio 最后一根量相对之前 20 根均量的倍数。
func volumeRatio(volumes []float64) float64 {
	n := len(volumes)
	if n < 2 {
		return 0
	}
	window := 20
	if n-1 < window {
		window = n - 1
	}
	var sum float64
	for _, v := range volumes[n-1-window : n-1] {
		sum += v
	}
	avg := sum / float64(window)
	if avg <= 0 {
		return 0
	}
	return volumes[n-1] / avg
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0 {
			return v
		}
	}
	return 0
}
