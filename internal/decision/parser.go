package decision

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"coinbutler/internal/logger"
	"coinbutler/internal/pkg/jsonutil"
)

// parseBuy 把模型原文解析为 Recommendation。任何结构问题都归为
// Malformed，由上层决定降级路径。
func parseBuy(raw, modelID string) (Recommendation, Outcome) {
	body, ok := extractValidated(raw, buySchema, modelID)
	if !ok {
		return Recommendation{}, OutcomeMalformed
	}
	rec := Recommendation{
		Instrument: strings.ToUpper(strings.TrimSpace(gjson.Get(body, "coin").String())),
		Confidence: int(gjson.Get(body, "confidence").Int()),
		RiskTier:   normalizeRisk(gjson.Get(body, "risk_level").String()),
		Reason:     strings.TrimSpace(gjson.Get(body, "reason").String()),
		TargetPct:  gjson.Get(body, "target_profit").Float(),
		StopPct:    gjson.Get(body, "stop_loss").Float(),
		ModelID:    modelID,
	}
	if rec.Instrument == "" || rec.Confidence < 1 || rec.Confidence > 10 {
		logger.Warnf("decision: %s buy response out of range (coin=%q confidence=%d)", modelID, rec.Instrument, rec.Confidence)
		return Recommendation{}, OutcomeMalformed
	}
	return rec, OutcomeOK
}

func parseSwap(raw, modelID string) (SwapRecommendation, Outcome) {
	body, ok := extractValidated(raw, swapSchema, modelID)
	if !ok {
		return SwapRecommendation{}, OutcomeMalformed
	}
	rec := SwapRecommendation{
		ShouldSwap:     gjson.Get(body, "should_swap").Bool(),
		SellInstrument: strings.ToUpper(strings.TrimSpace(gjson.Get(body, "sell_coin").String())),
		BuyInstrument:  strings.ToUpper(strings.TrimSpace(gjson.Get(body, "buy_coin").String())),
		Confidence:     int(gjson.Get(body, "confidence").Int()),
		Reason:         strings.TrimSpace(gjson.Get(body, "reason").String()),
		ModelID:        modelID,
	}
	if rec.ShouldSwap && (rec.SellInstrument == "" || rec.BuyInstrument == "") {
		logger.Warnf("decision: %s swap response missing pair", modelID)
		return SwapRecommendation{}, OutcomeMalformed
	}
	return rec, OutcomeOK
}

func parseAllocation(raw, modelID string) (Allocation, Outcome) {
	body, ok := extractValidated(raw, allocationSchema, modelID)
	if !ok {
		return Allocation{}, OutcomeMalformed
	}
	alloc := Allocation{
		Amount: gjson.Get(body, "amount").Float(),
		Reason: strings.TrimSpace(gjson.Get(body, "reason").String()),
	}
	if alloc.Amount <= 0 {
		return Allocation{}, OutcomeMalformed
	}
	return alloc, OutcomeOK
}

// extractValidated 剥掉代码围栏、取出首个完整 JSON 对象并过一遍 schema。
func extractValidated(raw string, schema interface{ Validate(any) error }, modelID string) (string, bool) {
	body, ok := jsonutil.ExtractObject(raw)
	if !ok {
		logger.Warnf("decision: %s response contains no JSON object", modelID)
		return "", false
	}
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		logger.Warnf("decision: %s response JSON invalid: %v", modelID, err)
		return "", false
	}
	if err := schema.Validate(doc); err != nil {
		logger.Warnf("decision: %s response failed schema: %v", modelID, err)
		return "", false
	}
	return body, true
}

func normalizeRisk(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW", "低":
		return "LOW"
	case "HIGH", "高":
		return "HIGH"
	default:
		return "MEDIUM"
	}
}
