package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBuy(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		rec, outcome := parseBuy(`{"coin":"SOL","confidence":8,"risk_level":"low","reason":"breakout","target_profit":0.04,"stop_loss":-0.02}`, "primary")
		assert.Equal(t, OutcomeOK, outcome)
		assert.Equal(t, "SOL", rec.Instrument)
		assert.Equal(t, 8, rec.Confidence)
		assert.Equal(t, "LOW", rec.RiskTier)
		assert.Equal(t, 0.04, rec.TargetPct)
	})

	t.Run("code fence and stringy numbers", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"coin\": \"eth\", \"confidence\": \"7\", \"risk_level\": \"MEDIUM\"}\n```"
		rec, outcome := parseBuy(raw, "primary")
		assert.Equal(t, OutcomeOK, outcome)
		assert.Equal(t, "ETH", rec.Instrument)
		assert.Equal(t, 7, rec.Confidence)
	})

	t.Run("no JSON object", func(t *testing.T) {
		_, outcome := parseBuy("I cannot decide right now.", "primary")
		assert.Equal(t, OutcomeMalformed, outcome)
	})

	t.Run("missing coin", func(t *testing.T) {
		_, outcome := parseBuy(`{"confidence":8}`, "primary")
		assert.Equal(t, OutcomeMalformed, outcome)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		_, outcome := parseBuy(`{"coin":"BTC","confidence":0}`, "primary")
		assert.Equal(t, OutcomeMalformed, outcome)
	})
}

func TestParseSwap(t *testing.T) {
	t.Run("explicit pair", func(t *testing.T) {
		rec, outcome := parseSwap(`{"should_swap":true,"sell_coin":"doge","buy_coin":"sol","confidence":7,"reason":"rotation"}`, "primary")
		assert.Equal(t, OutcomeOK, outcome)
		assert.True(t, rec.ShouldSwap)
		assert.Equal(t, "DOGE", rec.SellInstrument)
		assert.Equal(t, "SOL", rec.BuyInstrument)
	})

	t.Run("decline is valid", func(t *testing.T) {
		rec, outcome := parseSwap(`{"should_swap":false,"reason":"hold"}`, "primary")
		assert.Equal(t, OutcomeOK, outcome)
		assert.False(t, rec.ShouldSwap)
	})

	t.Run("swap without pair is malformed", func(t *testing.T) {
		_, outcome := parseSwap(`{"should_swap":true,"confidence":9}`, "primary")
		assert.Equal(t, OutcomeMalformed, outcome)
	})
}

func TestParseAllocation(t *testing.T) {
	alloc, outcome := parseAllocation(`{"amount":"650.50","reason":"60-80% of balance"}`, "primary")
	assert.Equal(t, OutcomeOK, outcome)
	assert.Equal(t, 650.50, alloc.Amount)

	_, outcome = parseAllocation(`{"amount":-5}`, "primary")
	assert.Equal(t, OutcomeMalformed, outcome)
}
