package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/rates"
	"ratewatch/internal/version"
)

// FeedOptions parameterise JSON feed fetchers.
type FeedOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// Feed fetches `{"rates": {...}}` documents from a JSON endpoint.
type Feed struct {
	endpoint string
	opts     FeedOptions
	logger   zerolog.Logger
	client   *http.Client
}

// NewFeed constructs a structured feed fetcher.
func NewFeed(endpoint string, opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Feed{
		endpoint: strings.TrimSpace(endpoint),
		opts:     opts,
		logger:   logger.With().Str("component", "feed_fetcher").Logger(),
		client:   &http.Client{Timeout: timeout},
	}
}

// Fetch requests the feed for base, asking for target via the symbols parameter.
func (f *Feed) Fetch(ctx context.Context, base, target string) (rates.Snapshot, error) {
	base = rates.NormalizeCode(base)
	target = rates.NormalizeCode(target)

	endpoint, queryBase, err := f.requestURL(base, target)
	if err != nil {
		return rates.Snapshot{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rates.Snapshot{}, rates.NetworkError("feed request", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return rates.Snapshot{}, rates.NetworkError("feed request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return rates.Snapshot{}, rates.NetworkError("feed read", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rates.Snapshot{}, rates.NetworkError("feed status", parseHTTPError(resp.StatusCode, payload))
	}

	var body feedResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return rates.Snapshot{}, rates.NetworkError("feed decode", err)
	}

	snapBase := queryBase
	if body.Base != "" {
		snapBase = rates.NormalizeCode(body.Base)
	}

	values := make(map[string]decimal.Decimal, len(body.Rates)+1)
	for code, rate := range body.Rates {
		values[rates.NormalizeCode(code)] = rate
	}
	if _, ok := values[snapBase]; !ok {
		values[snapBase] = decimal.NewFromInt(1)
	}
	if _, ok := values[target]; target != "" && !ok {
		return rates.Snapshot{}, rates.MissingCurrency("feed", target)
	}

	f.logger.Debug().Str("base", snapBase).Int("rates", len(values)).Msg("feed snapshot fetched")
	return rates.NewSnapshot("feed:"+hostOf(f.endpoint), snapBase, values, time.Now().UTC()), nil
}

// requestURL returns the endpoint with base and symbols added when absent, and the
// base the feed will actually answer in.
func (f *Feed) requestURL(base, target string) (string, string, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return "", "", rates.InvalidConfig("feed", "invalid endpoint %q: %v", f.endpoint, err)
	}
	q := u.Query()
	if !q.Has("base") && base != "" {
		q.Set("base", base)
	}
	if !q.Has("symbols") && target != "" {
		q.Set("symbols", target)
	}
	u.RawQuery = q.Encode()
	return u.String(), rates.NormalizeCode(q.Get("base")), nil
}

type feedResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type errorResponse struct {
	Error       json.RawMessage `json:"error"`
	Description string          `json:"description"`
	Message     string          `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("feed error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("feed error (%d): %s", status, apiErr.Message)
		}
		if len(apiErr.Error) > 0 {
			return fmt.Errorf("feed error (%d): %s", status, strings.Trim(string(apiErr.Error), `"`))
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return errors.New("feed error: status " + http.StatusText(status))
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

var _ Fetcher = (*Feed)(nil)
