package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/symbol"
	"coinbutler/internal/pkg/trading"
	"coinbutler/internal/types"
)

// 默认建仓比例：模型没给出可用金额时投可用余额的六成。
const defaultAllocRatio = 0.6

// advisorAPI 是引擎看到的模型面，测试里用 mock 替换。
type advisorAPI interface {
	Available() bool
	Recommend(ctx context.Context, candidates []types.Candidate, mctx types.MarketContext, snapshots []types.TechnicalSnapshot) (Recommendation, Outcome)
	RecommendSwap(ctx context.Context, now time.Time, losing []types.Position, prices map[string]float64, candidates []types.Candidate) (SwapRecommendation, Outcome)
	RecommendAllocation(ctx context.Context, instrument string, balance float64, openCount, maxPositions int) (Allocation, Outcome)
}

// Engine 按固定顺序执行选择算法，输出每个 tick 互斥的动作。
type Engine struct {
	advisor   advisorAPI
	threshold func() int
	quote     string

	minOrder        float64
	maxBalanceRatio float64
}

func NewEngine(advisor *Advisor, threshold func() int, quote string, minOrder, maxBalanceRatio float64) *Engine {
	e := &Engine{
		threshold:       threshold,
		quote:           quote,
		minOrder:        minOrder,
		maxBalanceRatio: maxBalanceRatio,
	}
	if advisor != nil {
		e.advisor = advisor
	}
	return e
}

func newEngineWithAdvisor(advisor advisorAPI, threshold func() int, quote string, minOrder, maxBalanceRatio float64) *Engine {
	return &Engine{
		advisor:         advisor,
		threshold:       threshold,
		quote:           quote,
		minOrder:        minOrder,
		maxBalanceRatio: maxBalanceRatio,
	}
}

// Input 是一次买入决策需要的全部事实。
type Input struct {
	Candidates   []types.Candidate
	Market       types.MarketContext
	Snapshots    []types.TechnicalSnapshot
	Balance      float64
	OpenCount    int
	MaxPositions int
}

// Decide 实现选择算法：零候选→不动；单候选或模型不可用→直接取
// 成交额第一名；模型可用→问模型并校验，校验不过退回第一名，调用
// 失败/响应不合规退回规则打分。
func (e *Engine) Decide(ctx context.Context, in Input) Decision {
	if len(in.Candidates) == 0 {
		return Decision{Action: ActionNone, Reason: "no candidates"}
	}
	if len(in.Candidates) == 1 || e.advisor == nil || !e.advisor.Available() {
		return e.pickDirect(ctx, in, "rank", "single candidate or model unavailable")
	}

	rec, outcome := e.advisor.Recommend(ctx, in.Candidates, in.Market, in.Snapshots)
	switch outcome {
	case OutcomeOK:
		pair := symbol.Pair(rec.Instrument, e.quote)
		if !containsInstrument(in.Candidates, pair) {
			logger.Warnf("decision: %s recommended %s outside candidate set, using rank-1", rec.ModelID, rec.Instrument)
			return e.pickDirect(ctx, in, "rank", "model pick not in candidates")
		}
		if rec.Confidence < e.threshold() {
			logger.Infof("decision: confidence %d below threshold %d, using rank-1", rec.Confidence, e.threshold())
			return e.pickDirect(ctx, in, "rank", fmt.Sprintf("confidence %d below threshold", rec.Confidence))
		}
		if rec.RiskTier == "HIGH" {
			logger.Infof("decision: %s flagged HIGH risk, using rank-1", pair)
			return e.pickDirect(ctx, in, "rank", "model pick flagged HIGH risk")
		}
		amount := e.allocate(ctx, pair, in)
		if amount <= 0 {
			return Decision{Action: ActionNone, Reason: "balance below minimum order"}
		}
		return Decision{
			Action:     ActionBuy,
			Instrument: pair,
			Amount:     amount,
			Confidence: rec.Confidence,
			RiskTier:   rec.RiskTier,
			Reason:     rec.Reason,
			Source:     rec.ModelID,
		}
	default:
		logger.Warnf("decision: model outcome %s, falling back to rule score", outcome)
		return e.pickRule(in)
	}
}

// DecideSwap 评估换仓。接受条件：模型明确给出卖/买对、两者都来自提交
// 的集合、置信度达标。其余一律不换。
func (e *Engine) DecideSwap(ctx context.Context, now time.Time, losing []types.Position, prices map[string]float64, candidates []types.Candidate) Decision {
	if len(losing) == 0 || len(candidates) == 0 {
		return Decision{Action: ActionNone, Reason: "nothing to swap"}
	}
	if e.advisor == nil || !e.advisor.Available() {
		return Decision{Action: ActionNone, Reason: "model unavailable"}
	}
	rec, outcome := e.advisor.RecommendSwap(ctx, now, losing, prices, candidates)
	if outcome != OutcomeOK || !rec.ShouldSwap {
		return Decision{Action: ActionNone, Reason: "no swap advised"}
	}
	sell := symbol.Pair(rec.SellInstrument, e.quote)
	buy := symbol.Pair(rec.BuyInstrument, e.quote)
	if !containsPosition(losing, sell) {
		logger.Warnf("decision: swap sell %s not among losing positions", rec.SellInstrument)
		return Decision{Action: ActionNone, Reason: "swap sell outside submitted set"}
	}
	if !containsInstrument(candidates, buy) {
		logger.Warnf("decision: swap buy %s not among candidates", rec.BuyInstrument)
		return Decision{Action: ActionNone, Reason: "swap buy outside submitted set"}
	}
	if rec.Confidence < e.threshold() {
		return Decision{Action: ActionNone, Reason: fmt.Sprintf("swap confidence %d below threshold", rec.Confidence)}
	}
	return Decision{
		Action:         ActionSwap,
		Instrument:     buy,
		SellInstrument: sell,
		Confidence:     rec.Confidence,
		Reason:         rec.Reason,
		Source:         rec.ModelID,
	}
}

// pickDirect 直接取成交额排名第一的候选。
func (e *Engine) pickDirect(ctx context.Context, in Input, source, reason string) Decision {
	top := in.Candidates[0]
	amount := e.defaultAmount(in.Balance)
	if amount <= 0 {
		return Decision{Action: ActionNone, Reason: "balance below minimum order"}
	}
	return Decision{
		Action:     ActionBuy,
		Instrument: top.Instrument,
		Amount:     amount,
		RiskTier:   "MEDIUM",
		Reason:     reason,
		Source:     source,
	}
}

// pickRule 规则打分：量比质量与价格未追高程度各占一半，再叠加成交额
// 归一值。同样输入永远给同样答案。
func (e *Engine) pickRule(in Input) Decision {
	var maxNotional float64
	for _, c := range in.Candidates {
		if c.Notional > maxNotional {
			maxNotional = c.Notional
		}
	}
	best := in.Candidates[0]
	bestScore := -1.0
	for _, c := range in.Candidates {
		score := ruleScore(c, maxNotional)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	amount := e.defaultAmount(in.Balance)
	if amount <= 0 {
		return Decision{Action: ActionNone, Reason: "balance below minimum order"}
	}
	return Decision{
		Action:     ActionBuy,
		Instrument: best.Instrument,
		Amount:     amount,
		Confidence: int(math.Round(bestScore * 10)),
		RiskTier:   "MEDIUM",
		Reason:     fmt.Sprintf("rule score %.3f", bestScore),
		Source:     "rule",
	}
}

func ruleScore(c types.Candidate, maxNotional float64) float64 {
	volumeQuality := math.Min(c.VolumeRatio, 5) / 5
	changePct := math.Abs(c.ChangeRate) * 100
	priceQuality := 1 - math.Min(changePct, 20)/20
	quality := (volumeQuality + priceQuality) / 2
	notionalNorm := 0.0
	if maxNotional > 0 {
		notionalNorm = c.Notional / maxNotional
	}
	return 0.5*quality + 0.5*notionalNorm
}

// allocate 请模型给金额，失败或不合理就退回默认比例，最终都会被余额
// 上限与最小下单额夹住。
func (e *Engine) allocate(ctx context.Context, instrument string, in Input) float64 {
	proposed := in.Balance * defaultAllocRatio
	alloc, outcome := e.advisor.RecommendAllocation(ctx, instrument, in.Balance, in.OpenCount, in.MaxPositions)
	if outcome == OutcomeOK {
		proposed = alloc.Amount
	} else {
		logger.Infof("decision: allocation outcome %s, using default ratio", outcome)
	}
	return trading.ClampInvestment(proposed, in.Balance, e.minOrder, e.maxBalanceRatio)
}

func (e *Engine) defaultAmount(balance float64) float64 {
	return trading.ClampInvestment(balance*defaultAllocRatio, balance, e.minOrder, e.maxBalanceRatio)
}

func containsInstrument(candidates []types.Candidate, instrument string) bool {
	for _, c := range candidates {
		if c.Instrument == instrument {
			return true
		}
	}
	return false
}

func containsPosition(positions []types.Position, instrument string) bool {
	for _, p := range positions {
		if p.Instrument == instrument {
			return true
		}
	}
	return false
}
