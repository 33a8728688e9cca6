package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ratewatch/internal/rates"
	"ratewatch/internal/scrape"
)

// ScrapedOptions parameterise the HTML page fetcher. The page itself is reached
// through ProxyURL; the proxy rewrites the path and presents a browser identity.
type ScrapedOptions struct {
	ProxyURL       string
	PageHost       string
	PathPrefix     string
	LocalCurrency  string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// Scraped fetches the exchange office page and extracts its rate tables.
type Scraped struct {
	opts      ScrapedOptions
	extractor *scrape.Extractor
	logger    zerolog.Logger
	client    *http.Client
}

// NewScraped constructs a scraped page fetcher.
func NewScraped(opts ScrapedOptions, logger zerolog.Logger) *Scraped {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Scraped{
		opts:      opts,
		extractor: scrape.NewExtractor(opts.LocalCurrency),
		logger:    logger.With().Str("component", "scraped_fetcher").Logger(),
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the page and returns every currency it quotes against the local
// currency. base and target are resolved later by normalization.
func (s *Scraped) Fetch(ctx context.Context, base, target string) (rates.Snapshot, error) {
	if s.opts.ProxyURL == "" {
		return rates.Snapshot{}, rates.InvalidConfig("scraped page", "proxy url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.ProxyURL, nil)
	if err != nil {
		return rates.Snapshot{}, rates.NetworkError("scraped page request", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if lang := strings.TrimSpace(s.opts.AcceptLanguage); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return rates.Snapshot{}, rates.NetworkError("scraped page request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rates.Snapshot{}, rates.NetworkError("scraped page status", fmt.Errorf("proxy returned status %d", resp.StatusCode))
	}

	page, err := s.extractor.ExtractHTML(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return rates.Snapshot{}, rates.ParseFailure("scraped page", err)
	}
	if page.Found() == 0 {
		return rates.Snapshot{}, rates.ParseFailure("scraped page", errors.New("no currency found in page"))
	}

	s.logger.Debug().Int("currencies", page.Found()).Str("local", s.extractor.Local()).Msg("page scraped")
	return rates.NewSnapshot("scraped:"+hostOf(s.opts.ProxyURL), s.extractor.Local(), page.Rates, time.Now().UTC()), nil
}

var _ Fetcher = (*Scraped)(nil)
