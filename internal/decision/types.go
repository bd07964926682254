// Package decision implements the hybrid engine: an AI collaborator picks
// among scanner candidates, with deterministic fallbacks when the model is
// unavailable, malformed or unconvincing.
package decision

type Action string

const (
	ActionNone Action = "no_action"
	ActionBuy  Action = "buy"
	ActionSwap Action = "swap"
)

// Decision 是引擎每个 tick 的唯一输出，三种动作互斥。
type Decision struct {
	Action         Action
	Instrument     string  // buy / swap 的买入标的
	SellInstrument string  // 仅 swap
	Amount         float64 // 计价币投入金额，仅 buy
	Confidence     int
	RiskTier       string
	Reason         string
	Source         string // 模型 ID 或 "rank" / "rule"
}

// Outcome 标记一次模型调用的结构化结果。调用方必须显式处理全部三种
// 状态，而不是靠异常兜底。
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeMalformed
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeUnreachable:
		return "unreachable"
	}
	return "unknown"
}

// Recommendation 是模型对买入问题的回答。
type Recommendation struct {
	Instrument string
	Confidence int
	RiskTier   string // LOW / MEDIUM / HIGH
	Reason     string
	TargetPct  float64
	StopPct    float64
	ModelID    string
}

// SwapRecommendation 是模型对换仓问题的回答。
type SwapRecommendation struct {
	ShouldSwap     bool
	SellInstrument string
	BuyInstrument  string
	Confidence     int
	Reason         string
	ModelID        string
}

// Allocation 是模型给出的建仓金额建议。
type Allocation struct {
	Amount float64
	Reason string
}
