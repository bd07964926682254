package decision

import (
	"context"
	"time"

	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/circuit"
	"coinbutler/internal/store"
	"coinbutler/internal/types"
)

// RecommendationSaver 持久化可用的模型建议（审计用，不参与控制流）。
type RecommendationSaver interface {
	SaveRecommendation(rec store.RecommendationRecord) (int64, error)
}

// Advisor 封装主/备模型、熔断器与响应解析，向引擎暴露三个问题：
// 买什么、换不换仓、投多少。
type Advisor struct {
	primary   ModelCaller
	fallback  ModelCaller // 可为 nil
	prompts   *PromptSet
	breaker   *circuit.Breaker
	saver     RecommendationSaver
	threshold func() int // 当前生效的置信度门槛
	nowFn     func() time.Time
}

// ModelCaller 与 provider.ModelClient 对齐，收窄成本包所需的最小面。
type ModelCaller interface {
	ID() string
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func NewAdvisor(primary, fallback ModelCaller, prompts *PromptSet, breaker *circuit.Breaker, saver RecommendationSaver, threshold func() int) *Advisor {
	return &Advisor{
		primary:   primary,
		fallback:  fallback,
		prompts:   prompts,
		breaker:   breaker,
		saver:     saver,
		threshold: threshold,
		nowFn:     time.Now,
	}
}

// Available 返回模型当前是否可用（熔断打开时不可用）。
func (a *Advisor) Available() bool {
	return a.primary != nil && a.breaker.Allow()
}

// Recommend 向主模型要一个买入建议；置信度不达标时用简化提示词问一次
// 备模型，保留两者中置信度更高的回答。
func (a *Advisor) Recommend(ctx context.Context, candidates []types.Candidate, mctx types.MarketContext, snapshots []types.TechnicalSnapshot) (Recommendation, Outcome) {
	best, outcome := a.askBuy(ctx, a.primary, false, candidates, mctx, snapshots)
	if outcome != OutcomeOK {
		return best, outcome
	}
	if best.Confidence < a.threshold() && a.fallback != nil {
		logger.Infof("decision: %s confidence %d below threshold %d, consulting %s",
			best.ModelID, best.Confidence, a.threshold(), a.fallback.ID())
		second, secondOutcome := a.askBuy(ctx, a.fallback, true, candidates, mctx, snapshots)
		if secondOutcome == OutcomeOK && second.Confidence > best.Confidence {
			best = second
		}
	}
	a.record(best, mctx, snapshots)
	return best, OutcomeOK
}

// RecommendSwap 询问是否用一个亏损持仓换一个候选。换仓没有规则兜底：
// 模型不可用或响应不合规时直接放弃本轮换仓。
func (a *Advisor) RecommendSwap(ctx context.Context, now time.Time, losing []types.Position, prices map[string]float64, candidates []types.Candidate) (SwapRecommendation, Outcome) {
	if !a.breaker.Allow() {
		return SwapRecommendation{}, OutcomeUnreachable
	}
	prompt, err := a.prompts.renderSwap(now, losing, prices, candidates)
	if err != nil {
		logger.Errorf("decision: swap prompt render failed: %v", err)
		return SwapRecommendation{}, OutcomeMalformed
	}
	raw, err := a.primary.Call(ctx, a.prompts.System, prompt)
	if err != nil {
		a.breaker.RecordFailure()
		logger.Warnf("decision: %s swap call failed: %v", a.primary.ID(), err)
		return SwapRecommendation{}, OutcomeUnreachable
	}
	a.breaker.RecordSuccess()
	return parseSwap(raw, a.primary.ID())
}

// RecommendAllocation 请模型在余额范围内给出建仓金额。
func (a *Advisor) RecommendAllocation(ctx context.Context, instrument string, balance float64, openCount, maxPositions int) (Allocation, Outcome) {
	if !a.breaker.Allow() {
		return Allocation{}, OutcomeUnreachable
	}
	prompt, err := a.prompts.renderAllocation(instrument, balance, openCount, maxPositions)
	if err != nil {
		logger.Errorf("decision: allocation prompt render failed: %v", err)
		return Allocation{}, OutcomeMalformed
	}
	raw, err := a.primary.Call(ctx, a.prompts.System, prompt)
	if err != nil {
		a.breaker.RecordFailure()
		logger.Warnf("decision: %s allocation call failed: %v", a.primary.ID(), err)
		return Allocation{}, OutcomeUnreachable
	}
	a.breaker.RecordSuccess()
	return parseAllocation(raw, a.primary.ID())
}

func (a *Advisor) askBuy(ctx context.Context, model ModelCaller, simple bool, candidates []types.Candidate, mctx types.MarketContext, snapshots []types.TechnicalSnapshot) (Recommendation, Outcome) {
	if model == nil || !a.breaker.Allow() {
		return Recommendation{}, OutcomeUnreachable
	}
	prompt, err := a.prompts.renderBuy(simple, candidates, mctx, snapshots)
	if err != nil {
		logger.Errorf("decision: buy prompt render failed: %v", err)
		return Recommendation{}, OutcomeMalformed
	}
	raw, err := model.Call(ctx, a.prompts.System, prompt)
	if err != nil {
		a.breaker.RecordFailure()
		logger.Warnf("decision: %s buy call failed: %v", model.ID(), err)
		return Recommendation{}, OutcomeUnreachable
	}
	a.breaker.RecordSuccess()
	return parseBuy(raw, model.ID())
}

func (a *Advisor) record(rec Recommendation, mctx types.MarketContext, snapshots []types.TechnicalSnapshot) {
	if a.saver == nil {
		return
	}
	_, err := a.saver.SaveRecommendation(store.RecommendationRecord{
		Timestamp:  a.nowFn(),
		ModelID:    rec.ModelID,
		Context:    mctx,
		Snapshots:  snapshots,
		Instrument: rec.Instrument,
		Confidence: rec.Confidence,
		RiskTier:   rec.RiskTier,
		Reason:     rec.Reason,
		TargetPct:  rec.TargetPct,
		StopPct:    rec.StopPct,
	})
	if err != nil {
		logger.Warnf("decision: saving recommendation failed: %v", err)
	}
}
