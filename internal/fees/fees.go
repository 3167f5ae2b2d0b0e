// Package fees implements the fee and rounding policy applied to every
// money moving operation.
package fees

import (
	"github.com/shopspring/decimal"
)

var five = decimal.NewFromInt(5)
var hundred = decimal.NewFromInt(100)

// Compute returns the service fee for an amount given the configured
// percentage and fixed parts: ceil(amount * percent/100 + fixed).
func Compute(amount, percent, fixed decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Add(fixed).Ceil()
}

// Total is the amount payable on debit-type flows: principal plus fee.
func Total(amount, fee decimal.Decimal) decimal.Decimal {
	return amount.Add(fee)
}

// RoundCashIn rounds a settlement amount up to the next multiple of 5.
// Cash-in legs must never under-fund the external side.
func RoundCashIn(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(five).Ceil().Mul(five)
}

// RoundCashOut rounds a settlement amount down to the previous multiple
// of 5. Cash-out legs must never over-pay the external side.
func RoundCashOut(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(five).Floor().Mul(five)
}
