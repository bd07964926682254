package decision

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"coinbutler/internal/types"
)

// PromptSet 保存全部提示词模板，来自 configs/prompts.yaml，可整体替换
// 而无需改代码。
type PromptSet struct {
	System     string `yaml:"system"`
	Buy        string `yaml:"buy"`
	BuySimple  string `yaml:"buy_simple"`
	Swap       string `yaml:"swap"`
	Allocation string `yaml:"allocation"`

	buyTpl        *template.Template
	buySimpleTpl  *template.Template
	swapTpl       *template.Template
	allocationTpl *template.Template
}

type promptFile struct {
	Prompts PromptSet `yaml:"prompts"`
}

func LoadPrompts(path string) (*PromptSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts failed: %w", err)
	}
	var file promptFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse prompts failed: %w", err)
	}
	ps := file.Prompts
	for name, field := range map[string]string{
		"system": ps.System, "buy": ps.Buy, "buy_simple": ps.BuySimple,
		"swap": ps.Swap, "allocation": ps.Allocation,
	} {
		if strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("prompts.%s cannot be empty", name)
		}
	}
	if err := ps.compile(); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (p *PromptSet) compile() error {
	var err error
	if p.buyTpl, err = template.New("buy").Parse(p.Buy); err != nil {
		return fmt.Errorf("prompts.buy template: %w", err)
	}
	if p.buySimpleTpl, err = template.New("buy_simple").Parse(p.BuySimple); err != nil {
		return fmt.Errorf("prompts.buy_simple template: %w", err)
	}
	if p.swapTpl, err = template.New("swap").Parse(p.Swap); err != nil {
		return fmt.Errorf("prompts.swap template: %w", err)
	}
	if p.allocationTpl, err = template.New("allocation").Parse(p.Allocation); err != nil {
		return fmt.Errorf("prompts.allocation template: %w", err)
	}
	return nil
}

func (p *PromptSet) renderBuy(simple bool, candidates []types.Candidate, mctx types.MarketContext, snapshots []types.TechnicalSnapshot) (string, error) {
	tpl := p.buyTpl
	if simple {
		tpl = p.buySimpleTpl
	}
	data := map[string]string{
		"Candidates": formatCandidates(candidates),
		"Market":     formatMarket(mctx),
		"Snapshots":  formatSnapshots(snapshots),
	}
	return execute(tpl, data)
}

func (p *PromptSet) renderSwap(now time.Time, losing []types.Position, prices map[string]float64, candidates []types.Candidate) (string, error) {
	data := map[string]string{
		"Positions":  formatPositions(now, losing, prices),
		"Candidates": formatCandidates(candidates),
	}
	return execute(p.swapTpl, data)
}

func (p *PromptSet) renderAllocation(instrument string, balance float64, openCount, maxPositions int) (string, error) {
	data := map[string]any{
		"Instrument":   instrument,
		"Balance":      fmt.Sprintf("%.2f", balance),
		"OpenCount":    openCount,
		"MaxPositions": maxPositions,
	}
	return execute(p.allocationTpl, data)
}

func execute(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatCandidates(candidates []types.Candidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "%d. %s price=%.6f change24h=%+.2f%% volumeRatio=%.2fx notional=%.0f\n",
			c.Rank, c.Instrument, c.Price, c.ChangeRate*100, c.VolumeRatio, c.Notional)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMarket(m types.MarketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BTC=%.2f ETH=%.2f BTC_RSI=%.1f volatility=%.4f sentiment=%s",
		m.BTCPrice, m.ETHPrice, m.BTCRSI, m.Volatility, m.Sentiment)
	if m.FearGreedLabel != "" {
		fmt.Fprintf(&b, " fear_greed=%d(%s)", m.FearGreedValue, m.FearGreedLabel)
	}
	return b.String()
}

func formatSnapshots(snapshots []types.TechnicalSnapshot) string {
	if len(snapshots) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, s := range snapshots {
		fmt.Fprintf(&b, "%s: RSI=%.1f(%s) MACD=%s Stoch=%.1f/%.1f(%s) MA=%s volRatio=%.2fx change=%+.2f%%\n",
			s.Instrument, s.RSI, s.RSISignal, s.MACDTrend, s.StochK, s.StochD, s.StochSignal,
			s.MATrend, s.VolumeRatio, s.ChangeRate*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPositions(now time.Time, positions []types.Position, prices map[string]float64) string {
	var b strings.Builder
	for _, pos := range positions {
		price := prices[pos.Instrument]
		pnl, rate := pos.UnrealizedPnL(price)
		fmt.Fprintf(&b, "%s entry=%.6f now=%.6f pnl=%+.2f (%+.2f%%) held=%dd\n",
			pos.Instrument, pos.EntryPrice, price, pnl, rate*100, pos.HoldingDays(now))
	}
	return strings.TrimRight(b.String(), "\n")
}
