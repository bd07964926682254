// Package market 聚合喂给决策引擎的大盘上下文：BTC/ETH 行情、波动率与
// 贪婪恐惧指数。
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"coinbutler/internal/logger"
)

const (
	fearGreedEndpoint     = "https://api.alternative.me/fng/?limit=1"
	fearGreedErrorBackoff = 2 * time.Minute
	fearGreedTTL          = 1 * time.Hour
)

// FearGreed 是贪婪恐惧指数的一次读数。
type FearGreed struct {
	Value     int
	Label     string
	FetchedAt time.Time
}

// FearGreedService 带 TTL 缓存地拉取 alternative.me 指数。指数一天只更新
// 一次，失败时短退避后重试，期间沿用旧值。
type FearGreedService struct {
	endpoint string
	client   *http.Client

	mu         sync.Mutex
	cached     FearGreed
	nextFetch  time.Time
	haveCached bool
}

func NewFearGreedService() *FearGreedService {
	return &FearGreedService{
		endpoint: fearGreedEndpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Get 返回当前指数；缓存过期时同步刷新一次，刷新失败则返回旧值。
func (s *FearGreedService) Get(ctx context.Context) (FearGreed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.haveCached && now.Before(s.nextFetch) {
		return s.cached, true
	}
	fg, err := s.fetch(ctx)
	if err != nil {
		logger.Warnf("fear & greed 刷新失败: %v", err)
		s.nextFetch = now.Add(fearGreedErrorBackoff)
		return s.cached, s.haveCached
	}
	s.cached = fg
	s.haveCached = true
	s.nextFetch = now.Add(fearGreedTTL)
	return fg, true
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
	Metadata struct {
		Error interface{} `json:"error"`
	} `json:"metadata"`
}

func (s *FearGreedService) fetch(ctx context.Context) (FearGreed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return FearGreed{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return FearGreed{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FearGreed{}, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var payload fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FearGreed{}, err
	}
	if payload.Metadata.Error != nil {
		return FearGreed{}, fmt.Errorf("api error: %v", payload.Metadata.Error)
	}
	if len(payload.Data) == 0 {
		return FearGreed{}, fmt.Errorf("api data empty")
	}
	value, err := strconv.Atoi(strings.TrimSpace(payload.Data[0].Value))
	if err != nil {
		return FearGreed{}, fmt.Errorf("api value invalid: %w", err)
	}
	return FearGreed{
		Value:     value,
		Label:     strings.TrimSpace(payload.Data[0].ValueClassification),
		FetchedAt: time.Now(),
	}, nil
}
