package fetcher

import (
	"context"

	"ratewatch/internal/rates"
)

// Fetcher acquires a fresh rate snapshot able to price target against base.
type Fetcher interface {
	Fetch(ctx context.Context, base, target string) (rates.Snapshot, error)
}

// Kind enumerates the supported source variants.
type Kind int

const (
	KindStructuredFeed Kind = iota
	KindScrapedPage
	KindOnChain
)

func (k Kind) String() string {
	switch k {
	case KindStructuredFeed:
		return "structured_feed"
	case KindScrapedPage:
		return "scraped_page"
	case KindOnChain:
		return "onchain"
	default:
		return "unknown"
	}
}

// Source is the configured rate source, classified once when it is set.
type Source struct {
	Kind     Kind
	Raw      string
	Endpoint string
}

// Preset is a well-known source offered to users.
type Preset struct {
	Name string
	URL  string
}

// Presets lists the sources known to work out of the box.
var Presets = []Preset{
	{Name: "ExchangeRate-API", URL: "https://api.exchangerate-api.com/v4/latest"},
	{Name: "Frankfurter", URL: "https://api.frankfurter.app/latest"},
	{Name: "Open Exchange Rates", URL: "https://openexchangerates.org/api/latest.json"},
	{Name: "Albaraka Xchange (scraper)", URL: "/albarakaxchange"},
	{Name: "Chainlink (on-chain)", URL: "chainlink://"},
}
