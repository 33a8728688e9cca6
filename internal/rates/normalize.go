package rates

import "github.com/shopspring/decimal"

// Normalize re-expresses snapshot rates against requestedBase by cross-rate division.
// The result is always a fresh map; the snapshot is left untouched.
func Normalize(snap Snapshot, requestedBase string) (map[string]decimal.Decimal, error) {
	base := NormalizeCode(requestedBase)
	out := make(map[string]decimal.Decimal, len(snap.Rates))

	if base == snap.Base {
		for code, rate := range snap.Rates {
			out[code] = rate
		}
		return out, nil
	}

	pivot, ok := snap.Rates[base]
	if !ok || pivot.IsZero() {
		return nil, BaseUnavailable(base)
	}

	for code, rate := range snap.Rates {
		out[code] = rate.Div(pivot)
	}
	return out, nil
}

// CrossRate resolves the rate of target expressed in base from a snapshot.
func CrossRate(snap Snapshot, base, target string) (decimal.Decimal, error) {
	normalized, err := Normalize(snap, base)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, ok := normalized[NormalizeCode(target)]
	if !ok {
		return decimal.Decimal{}, MissingCurrency("cross rate", NormalizeCode(target))
	}
	return rate, nil
}
