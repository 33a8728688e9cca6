package alerts

import "github.com/shopspring/decimal"

// Evaluate reports whether rate crosses the alert threshold. Inactive alerts and
// missing rates never trigger; equality never triggers.
func Evaluate(a Alert, rate decimal.NullDecimal) bool {
	if !a.Active || !rate.Valid {
		return false
	}
	switch a.Mode {
	case ModeAbove:
		return rate.Decimal.GreaterThan(a.Threshold)
	case ModeBelow:
		return rate.Decimal.LessThan(a.Threshold)
	default:
		return false
	}
}
