package alerts

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEvaluate(t *testing.T) {
	threshold := decimal.RequireFromString("1.05")
	rate := func(v string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(v))
	}

	cases := []struct {
		name   string
		mode   Mode
		active bool
		rate   decimal.NullDecimal
		want   bool
	}{
		{"above crossed", ModeAbove, true, rate("1.10"), true},
		{"above under", ModeAbove, true, rate("1.00"), false},
		{"above equal", ModeAbove, true, rate("1.05"), false},
		{"below crossed", ModeBelow, true, rate("1.00"), true},
		{"below over", ModeBelow, true, rate("1.10"), false},
		{"below equal", ModeBelow, true, rate("1.0500"), false},
		{"null rate above", ModeAbove, true, decimal.NullDecimal{}, false},
		{"null rate below", ModeBelow, true, decimal.NullDecimal{}, false},
		{"inactive", ModeAbove, false, rate("2"), false},
		{"unknown mode", Mode("sideways"), true, rate("2"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Alert{Threshold: threshold, Mode: tc.mode, Active: tc.active}
			if got := Evaluate(a, tc.rate); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
