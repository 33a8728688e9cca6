package fetcher

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"ratewatch/internal/rates"
)

const onChainScheme = "chainlink://"

// ResolverOptions carry the per-variant settings used when a source is built.
type ResolverOptions struct {
	Feed    FeedOptions
	Scrape  ScrapedOptions
	OnChain OnChainOptions
}

// Resolver classifies a source URL into a Source and builds the matching Fetcher.
type Resolver struct {
	opts   ResolverOptions
	logger zerolog.Logger
}

// NewResolver constructs a resolver.
func NewResolver(opts ResolverOptions, logger zerolog.Logger) *Resolver {
	return &Resolver{opts: opts, logger: logger}
}

// Parse classifies raw without building a fetcher.
func (r *Resolver) Parse(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Source{}, rates.InvalidConfig("parse source", "source url is empty")
	}

	if r.isScrapedPage(trimmed) {
		if r.opts.Scrape.ProxyURL == "" {
			return Source{}, rates.InvalidConfig("parse source", "scrape.proxy_url is required for %s", trimmed)
		}
		return Source{Kind: KindScrapedPage, Raw: trimmed, Endpoint: r.opts.Scrape.ProxyURL}, nil
	}

	if strings.HasPrefix(strings.ToLower(trimmed), onChainScheme) {
		if r.opts.OnChain.RPCURL == "" {
			return Source{}, rates.InvalidConfig("parse source", "onchain.rpc_url is required for %s", trimmed)
		}
		return Source{Kind: KindOnChain, Raw: trimmed, Endpoint: r.opts.OnChain.RPCURL}, nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return Source{}, rates.InvalidConfig("parse source", "invalid source url %q: %v", trimmed, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Source{}, rates.InvalidConfig("parse source", "source url %q must be absolute http(s)", trimmed)
	}
	return Source{Kind: KindStructuredFeed, Raw: trimmed, Endpoint: trimmed}, nil
}

// Resolve classifies raw and builds the fetcher for it.
func (r *Resolver) Resolve(raw string) (Source, Fetcher, error) {
	src, err := r.Parse(raw)
	if err != nil {
		return Source{}, nil, err
	}

	var f Fetcher
	switch src.Kind {
	case KindScrapedPage:
		f = NewScraped(r.opts.Scrape, r.logger)
	case KindOnChain:
		f = NewOnChain(r.opts.OnChain, r.logger)
	default:
		f = NewFeed(src.Endpoint, r.opts.Feed, r.logger)
	}

	r.logger.Info().Str("kind", src.Kind.String()).Str("source", src.Raw).Msg("rate source resolved")
	return src, f, nil
}

func (r *Resolver) isScrapedPage(raw string) bool {
	lower := strings.ToLower(raw)
	if host := strings.ToLower(r.opts.Scrape.PageHost); host != "" && strings.Contains(lower, host) {
		return true
	}
	if prefix := strings.ToLower(r.opts.Scrape.PathPrefix); prefix != "" && strings.HasPrefix(lower, prefix) {
		return true
	}
	return false
}
