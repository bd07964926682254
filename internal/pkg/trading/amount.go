// Package trading provides order sizing helpers shared by the decision engine
// and the orchestrator.
package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

// ClampInvestment bounds an AI-proposed investment amount to what the account
// can actually carry: no more than maxBalanceRatio of the available balance and
// never below the exchange minimum order notional. Returns 0 when the balance
// cannot fund even the minimum.
func ClampInvestment(proposed, available, minOrder, maxBalanceRatio float64) float64 {
	if available <= 0 || minOrder <= 0 {
		return 0
	}
	if maxBalanceRatio <= 0 || maxBalanceRatio > 1 {
		maxBalanceRatio = 1
	}
	cap := available * maxBalanceRatio
	if cap < minOrder {
		return 0
	}
	amount := proposed
	if amount <= 0 || amount > cap {
		amount = cap
	}
	if amount < minOrder {
		amount = minOrder
	}
	return RoundQuote(amount)
}

// RoundQuote rounds a quote-currency amount down to 2 decimals using decimal
// arithmetic so repeated sizing never drifts above the balance cap.
func RoundQuote(amount float64) float64 {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	out, _ := decimal.NewFromFloat(amount).RoundFloor(2).Float64()
	return out
}

// Notional is quantity*price guarded against NaN propagation from bad ticks.
func Notional(quantity, price float64) float64 {
	if quantity <= 0 || price <= 0 || math.IsNaN(quantity) || math.IsNaN(price) {
		return 0
	}
	out, _ := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Float64()
	return out
}
