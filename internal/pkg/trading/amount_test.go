package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampInvestment(t *testing.T) {
	t.Run("proposed within cap passes through", func(t *testing.T) {
		assert.Equal(t, 500.0, ClampInvestment(500, 1000, 10, 0.8))
	})
	t.Run("proposed above cap clamps to cap", func(t *testing.T) {
		assert.Equal(t, 800.0, ClampInvestment(5000, 1000, 10, 0.8))
	})
	t.Run("zero proposed falls back to cap", func(t *testing.T) {
		assert.Equal(t, 800.0, ClampInvestment(0, 1000, 10, 0.8))
	})
	t.Run("balance below minimum yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, ClampInvestment(500, 10, 10, 0.8))
	})
	t.Run("small proposed lifts to minimum", func(t *testing.T) {
		assert.Equal(t, 10.0, ClampInvestment(3, 1000, 10, 0.8))
	})
}

func TestRoundQuoteTruncates(t *testing.T) {
	assert.Equal(t, 123.45, RoundQuote(123.459))
	assert.Equal(t, 0.0, RoundQuote(-1))
}

func TestNotionalGuardsBadInput(t *testing.T) {
	assert.Equal(t, 1100.0, Notional(10, 110))
	assert.Equal(t, 0.0, Notional(0, 110))
	assert.Equal(t, 0.0, Notional(10, -1))
}
