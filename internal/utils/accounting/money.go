package accounting

import (
	"github.com/shopspring/decimal"
)

// Precision of stored amounts.
const (
	FeePlaces    int32 = 8 // per-donation fee components
	MoneyPlaces  int32 = 2 // operator-facing EUR figures (reserve, operational fee)
	TargetPlaces int32 = 6 // USDT on TRON
)

var hundred = decimal.NewFromInt(100)

// RoundFee rounds to fee precision, half away from zero.
func RoundFee(d decimal.Decimal) decimal.Decimal {
	return d.Round(FeePlaces)
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundTarget rounds a settlement-currency amount to the token's decimals.
func RoundTarget(d decimal.Decimal) decimal.Decimal {
	return d.Round(TargetPlaces)
}

// Percent returns amount × pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// MaxZero clamps negative values to zero.
func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all values. An empty input sums to zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// WithinTolerance reports whether |a − b| ≤ tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
