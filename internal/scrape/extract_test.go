package scrape

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", v, err)
	}
	return d
}

func TestExtractBuyAndSell(t *testing.T) {
	text := "Achat / Nous achetons\n1 EURO = 10,3500 MAD\n" +
		"Vente / Nous vendons\n1 EURO = 10,6500 MAD"

	quotes := Extract(text)
	eur, ok := quotes["EUR"]
	if !ok {
		t.Fatalf("EUR missing from %#v", quotes)
	}
	if !eur.Buy.Valid || !eur.Buy.Decimal.Equal(dec(t, "10.35")) {
		t.Fatalf("unexpected buy %v", eur.Buy)
	}
	if !eur.Sell.Valid || !eur.Sell.Decimal.Equal(dec(t, "10.65")) {
		t.Fatalf("unexpected sell %v", eur.Sell)
	}

	rates := defaultExtractor.Rates(quotes)
	if !rates["EUR"].Equal(dec(t, "10.35")) {
		t.Fatalf("buy side should be preferred, got %s", rates["EUR"])
	}
	if !rates["MAD"].Equal(decimal.NewFromInt(1)) {
		t.Fatalf("local currency should be 1, got %s", rates["MAD"])
	}
}

func TestExtractLaterMatchKeepsOtherSide(t *testing.T) {
	text := strings.Join([]string{
		"Achat / Nous achetons 1 DOLLAR = 9,1000 MAD",
		"Vente / Nous vendons 1 USD = 9,5000 MAD",
		"Achat / Nous achetons 1 USD = 9,2000 MAD",
	}, "\n")

	usd := Extract(text)["USD"]
	if !usd.Buy.Decimal.Equal(dec(t, "9.2")) {
		t.Fatalf("second buy should overwrite first, got %s", usd.Buy.Decimal)
	}
	if !usd.Sell.Valid || !usd.Sell.Decimal.Equal(dec(t, "9.5")) {
		t.Fatalf("sell side must survive later buy, got %v", usd.Sell)
	}
}

func TestExtractSellOnlyAndUnknownWord(t *testing.T) {
	text := "Vente / Nous vendons\n1 STERLING = 12,40 MAD\nAchat / Nous achetons 1 BAHT = 0,28 MAD"

	quotes := Extract(text)
	rates := defaultExtractor.Rates(quotes)
	if !rates["GBP"].Equal(dec(t, "12.40")) {
		t.Fatalf("sell side should be used when buy is absent, got %s", rates["GBP"])
	}
	if _, ok := quotes["BAHT"]; !ok {
		t.Fatalf("unknown currency word should pass through, got %#v", quotes)
	}
}

func TestExtractFallbackOnlyWhenPrimaryEmpty(t *testing.T) {
	text := "Europe\n1 EURO = 10,30 MAD\n1 EURO = 10,60 MAD\n" +
		"État Unis\n1 USD = 9,80 MAD\n1 USD = 10,10 MAD\n" +
		"Royaume Unis\n1 GBP = 12,00 MAD\n1 GBP = 12,50 MAD"

	quotes := Extract(text)
	if len(quotes) != 3 {
		t.Fatalf("expected 3 fallback currencies, got %#v", quotes)
	}
	if !quotes["USD"].Buy.Decimal.Equal(dec(t, "9.80")) || !quotes["USD"].Sell.Decimal.Equal(dec(t, "10.10")) {
		t.Fatalf("unexpected USD quote %#v", quotes["USD"])
	}

	withPrimary := "Achat / Nous achetons 1 YEN = 0,07 MAD\n" + text
	quotes = Extract(withPrimary)
	if len(quotes) != 1 {
		t.Fatalf("fallback must not run when primary matched, got %#v", quotes)
	}
	if _, ok := quotes["JPY"]; !ok {
		t.Fatalf("expected JPY from primary pass, got %#v", quotes)
	}
}

func TestExtractNothing(t *testing.T) {
	quotes := Extract("<html><body>maintenance</body></html>")
	if len(quotes) != 0 {
		t.Fatalf("expected no quotes, got %#v", quotes)
	}
	rates := defaultExtractor.Rates(quotes)
	if len(rates) != 1 {
		t.Fatalf("only the local currency should remain, got %#v", rates)
	}
}

func TestParseNumberDropsGarbage(t *testing.T) {
	if parseNumber("abc").Valid {
		t.Fatal("garbage must be treated as absent")
	}
	if got := parseNumber("10,3500"); !got.Valid || !got.Decimal.Equal(dec(t, "10.35")) {
		t.Fatalf("unexpected parse result %v", got)
	}
}

func TestExtractHTMLDecodesCharsetAndMarkup(t *testing.T) {
	var page bytes.Buffer
	page.WriteString("<html><head><script>var x = 'Achat / Nous achetons 1 CAD = 1,00 MAD';</script></head><body>")
	page.WriteString("<div>Europe</div><table><tr><td>1 EURO = 10,30 MAD</td><td>1 EURO = 10,60 MAD</td></tr></table>")
	page.WriteString("<div>\xc9tat Unis</div><p>1 USD = 9,80 <b>MAD</b></p><p>1 USD = 10,10 MAD</p>")
	page.WriteString("</body></html>")

	got, err := defaultExtractor.ExtractHTML(&page, "text/html; charset=windows-1252")
	if err != nil {
		t.Fatalf("extract html should succeed: %v", err)
	}
	if _, ok := got.Quotes["CAD"]; ok {
		t.Fatal("script contents must be ignored")
	}
	if got.Found() != 2 {
		t.Fatalf("expected EUR and USD, got %#v", got.Quotes)
	}
	if !got.Rates["USD"].Equal(dec(t, "9.80")) {
		t.Fatalf("unexpected USD rate %s", got.Rates["USD"])
	}
}

func TestNewExtractorCustomLocal(t *testing.T) {
	x := NewExtractor("tnd")
	quotes := x.Extract("Achat / Nous achetons 1 EURO = 3,35 TND")
	rates := x.Rates(quotes)
	if !rates["TND"].Equal(decimal.NewFromInt(1)) || !rates["EUR"].Equal(dec(t, "3.35")) {
		t.Fatalf("unexpected rates %#v", rates)
	}
	if x.Local() != "TND" {
		t.Fatalf("unexpected local %q", x.Local())
	}
}
