package rates

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time mapping of currency code to rate, expressed against Base.
type Snapshot struct {
	Source    string
	Base      string
	Rates     map[string]decimal.Decimal
	FetchedAt time.Time
}

// NewSnapshot copies rates so the snapshot never aliases caller-owned maps.
func NewSnapshot(source, base string, values map[string]decimal.Decimal, at time.Time) Snapshot {
	copied := make(map[string]decimal.Decimal, len(values))
	for code, rate := range values {
		copied[NormalizeCode(code)] = rate
	}
	return Snapshot{
		Source:    source,
		Base:      NormalizeCode(base),
		Rates:     copied,
		FetchedAt: at,
	}
}

// Rate looks up a single currency.
func (s Snapshot) Rate(code string) (decimal.Decimal, bool) {
	rate, ok := s.Rates[NormalizeCode(code)]
	return rate, ok
}

// Codes lists the currencies of the snapshot in lexical order.
func (s Snapshot) Codes() []string {
	return SortedCodes(s.Rates)
}

// SortedCodes returns the keys of a rate map in lexical order.
func SortedCodes(values map[string]decimal.Decimal) []string {
	codes := make([]string, 0, len(values))
	for code := range values {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// NormalizeCode trims and upper-cases a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is a three letter ASCII currency code.
func ValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}
