package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ratewatch/internal/rates"
)

const albarakaPage = `<html><body>
<div class="rate"><h3>Achat / Nous achetons</h3><p>1 EURO = 10,3500 MAD</p></div>
<div class="rate"><h3>Vente / Nous vendons</h3><p>1 EURO = 10,6500 MAD</p></div>
<div class="rate"><h3>Achat / Nous achetons</h3><p>1 DOLLAR = 9,9000 MAD</p></div>
</body></html>`

func TestScrapedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Language") != "fr" {
			t.Errorf("accept-language not forwarded: %q", r.Header.Get("Accept-Language"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(albarakaPage))
	}))
	defer srv.Close()

	s := NewScraped(ScrapedOptions{ProxyURL: srv.URL, AcceptLanguage: "fr", Timeout: time.Second}, noopLogger())
	snap, err := s.Fetch(context.Background(), "EUR", "USD")
	if err != nil {
		t.Fatalf("scrape should succeed: %v", err)
	}
	if snap.Base != "MAD" {
		t.Fatalf("snapshot base should be the local currency, got %s", snap.Base)
	}
	if eur, _ := snap.Rate("EUR"); !eur.Equal(decimal.RequireFromString("10.35")) {
		t.Fatalf("unexpected EUR rate %s", eur)
	}

	usdPerEur, err := rates.CrossRate(snap, "EUR", "USD")
	if err != nil {
		t.Fatalf("cross rate should succeed: %v", err)
	}
	want := decimal.RequireFromString("9.9").Div(decimal.RequireFromString("10.35"))
	if !usdPerEur.Equal(want) {
		t.Fatalf("expected %s, got %s", want, usdPerEur)
	}
}

func TestScrapedParseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>Site en maintenance</body></html>"))
	}))
	defer srv.Close()

	s := NewScraped(ScrapedOptions{ProxyURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := s.Fetch(context.Background(), "EUR", "USD"); !errors.Is(err, rates.ErrParseFailure) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestScrapedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewScraped(ScrapedOptions{ProxyURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := s.Fetch(context.Background(), "EUR", "USD"); !errors.Is(err, rates.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}
