// Package scanner finds volume-anomaly candidates: instruments whose latest
// short-interval candle traded well above their own recent average without the
// price already having run away.
package scanner

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"coinbutler/internal/config"
	"coinbutler/internal/gateway/exchange"
	"coinbutler/internal/logger"
	"coinbutler/internal/types"
)

const fetchConcurrency = 5

type Scanner struct {
	exchange exchange.Client
	cfg      config.ScannerConfig
}

func New(client exchange.Client, cfg config.ScannerConfig) *Scanner {
	return &Scanner{exchange: client, cfg: cfg}
}

// Scan 返回当前放量候选列表（按成交额降序，Rank 从 1 起）。held 中的
// 币对会被跳过。任何单个币对的行情失败只记日志，不影响整轮扫描。
func (s *Scanner) Scan(ctx context.Context, held map[string]bool) ([]types.Candidate, error) {
	tickers, err := s.exchange.GetTickers(ctx)
	if err != nil {
		return nil, err
	}

	universe := make([]exchange.Ticker, 0, s.cfg.UniverseSize)
	for _, tk := range tickers {
		if held[tk.Instrument] {
			continue
		}
		if tk.QuoteVolume < s.cfg.MinQuoteVolume {
			continue
		}
		universe = append(universe, tk)
		if len(universe) >= s.cfg.UniverseSize {
			break
		}
	}

	var mu sync.Mutex
	var out []types.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, tk := range universe {
		tk := tk
		g.Go(func() error {
			cand, ok := s.evaluate(gctx, tk)
			if !ok {
				return nil
			}
			mu.Lock()
			out = append(out, cand)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Notional > out[j].Notional })
	if len(out) > s.cfg.MaxCandidates {
		out = out[:s.cfg.MaxCandidates]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	if len(out) > 0 {
		logger.Infof("scanner: %d candidates (top=%s ratio=%.2f)", len(out), out[0].Instrument, out[0].VolumeRatio)
	}
	return out, nil
}

// evaluate 对单个币对做放量判定：最新一根 K 线量 >= 前 N 根均量 × 倍数，
// 且 24h 涨跌幅绝对值低于追高上限。
func (s *Scanner) evaluate(ctx context.Context, tk exchange.Ticker) (types.Candidate, bool) {
	if tk.ChangeRate >= s.cfg.ChangeCeiling || tk.ChangeRate <= -s.cfg.ChangeCeiling {
		return types.Candidate{}, false
	}
	count := s.cfg.Lookback + 1
	candles, err := s.exchange.GetRecentCandles(ctx, tk.Instrument, s.cfg.CandleMinutes, count)
	if err != nil {
		logger.Warnf("scanner: candles for %s failed: %v", tk.Instrument, err)
		return types.Candidate{}, false
	}
	if len(candles) < count {
		return types.Candidate{}, false
	}

	// candles 最新在前。
	var sum float64
	for _, c := range candles[1:count] {
		sum += c.Volume
	}
	avg := sum / float64(s.cfg.Lookback)
	if avg <= 0 {
		return types.Candidate{}, false
	}
	ratio := candles[0].Volume / avg
	if ratio < s.cfg.VolumeMultiplier {
		return types.Candidate{}, false
	}
	return types.Candidate{
		Instrument:  tk.Instrument,
		Price:       tk.LastPrice,
		ChangeRate:  tk.ChangeRate,
		VolumeRatio: ratio,
		Notional:    tk.QuoteVolume,
	}, true
}
