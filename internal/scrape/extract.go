// Package scrape turns the localized buy/sell tables of an exchange office page into rates.
package scrape

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLocalCurrency is the currency the scraped page quotes everything in.
const DefaultLocalCurrency = "MAD"

// Quote holds one side or both sides of a currency quotation.
type Quote struct {
	Buy  decimal.NullDecimal
	Sell decimal.NullDecimal
}

// Rate prefers the buy side and falls back to sell.
func (q Quote) Rate() (decimal.Decimal, bool) {
	if q.Buy.Valid {
		return q.Buy.Decimal, true
	}
	if q.Sell.Valid {
		return q.Sell.Decimal, true
	}
	return decimal.Decimal{}, false
}

var aliases = map[string]string{
	"EURO":     "EUR",
	"DOLLAR":   "USD",
	"USD":      "USD",
	"LIVRE":    "GBP",
	"STERLING": "GBP",
	"GBP":      "GBP",
	"FRANC":    "CHF",
	"CHF":      "CHF",
	"YEN":      "JPY",
	"JPY":      "JPY",
	"RIYAL":    "SAR",
	"SAR":      "SAR",
	"DIRHAM":   "AED",
	"AED":      "AED",
	"CAD":      "CAD",
}

// CurrencyCode maps a currency word of the page to its ISO code. Unknown words pass through.
func CurrencyCode(word string) string {
	if code, ok := aliases[strings.ToUpper(word)]; ok {
		return code
	}
	return word
}

type region struct {
	code    string
	pattern *regexp.Regexp
}

// Extractor matches the page grammar for a given local currency.
type Extractor struct {
	local   string
	buy     *regexp.Regexp
	sell    *regexp.Regexp
	regions []region
}

// NewExtractor compiles the grammar for pages quoting in local.
func NewExtractor(local string) *Extractor {
	local = strings.ToUpper(strings.TrimSpace(local))
	if local == "" {
		local = DefaultLocalCurrency
	}
	lc := regexp.QuoteMeta(local)
	quoted := `1\s+([A-Za-z]+)\s*=\s*(\d+[,.]\d+)\s*` + lc

	blockFor := func(label, word string) *regexp.Regexp {
		line := `1\s+` + word + `\s*=\s*(\d+[,.]\d+)\s*` + lc
		return regexp.MustCompile(`(?s)` + label + `.*?` + line + `.*?` + line)
	}

	return &Extractor{
		local: local,
		buy:   regexp.MustCompile(`Achat[\s/]*Nous achetons\s*` + quoted),
		sell:  regexp.MustCompile(`Vente[\s/]*Nous vendons\s*` + quoted),
		regions: []region{
			{code: "EUR", pattern: blockFor(`Europe`, `EURO`)},
			{code: "USD", pattern: blockFor(`Etats?[\s-]+Unis`, `USD`)},
			{code: "GBP", pattern: blockFor(`Royaume[\s-]+Unis?`, `GBP`)},
		},
	}
}

// Local returns the page's intrinsic currency.
func (x *Extractor) Local() string {
	return x.local
}

// Extract runs the strict grammar and, only when it finds nothing, the permissive one.
func (x *Extractor) Extract(text string) map[string]Quote {
	text = foldAccents(text)
	if quotes, ok := x.Primary(text); ok {
		return quotes
	}
	if quotes, ok := x.Fallback(text); ok {
		return quotes
	}
	return map[string]Quote{}
}

// Primary scans the buy and sell pattern families. A later occurrence of a currency
// only overwrites the side it was matched on.
func (x *Extractor) Primary(text string) (map[string]Quote, bool) {
	quotes := make(map[string]Quote)

	for _, m := range x.buy.FindAllStringSubmatch(text, -1) {
		code := CurrencyCode(m[1])
		q := quotes[code]
		q.Buy = parseNumber(m[2])
		quotes[code] = q
	}
	for _, m := range x.sell.FindAllStringSubmatch(text, -1) {
		code := CurrencyCode(m[1])
		q := quotes[code]
		q.Sell = parseNumber(m[2])
		quotes[code] = q
	}

	return quotes, len(quotes) > 0
}

// Fallback looks for region blocks carrying two quotations each (buy then sell).
func (x *Extractor) Fallback(text string) (map[string]Quote, bool) {
	quotes := make(map[string]Quote)
	for _, r := range x.regions {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		quotes[r.code] = Quote{Buy: parseNumber(m[1]), Sell: parseNumber(m[2])}
	}
	return quotes, len(quotes) > 0
}

// Rates flattens quotes to one rate per currency and adds the local currency at 1.
func (x *Extractor) Rates(quotes map[string]Quote) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(quotes)+1)
	for code, q := range quotes {
		if rate, ok := q.Rate(); ok {
			out[code] = rate
		}
	}
	out[x.local] = decimal.NewFromInt(1)
	return out
}

// Extract runs the default extractor over text.
func Extract(text string) map[string]Quote {
	return defaultExtractor.Extract(text)
}

var defaultExtractor = NewExtractor(DefaultLocalCurrency)

func parseNumber(raw string) decimal.NullDecimal {
	value, err := decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value)
}

func foldAccents(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}
