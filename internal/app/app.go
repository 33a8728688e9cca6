package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ratewatch/internal/alerting"
	"ratewatch/internal/alerts"
	"ratewatch/internal/config"
	"ratewatch/internal/fetcher"
	"ratewatch/internal/history"
	"ratewatch/internal/metrics"
	"ratewatch/internal/scheduler"
	"ratewatch/internal/service"
	"ratewatch/internal/state"
	"ratewatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// runtime is an engine wired to its backend, closed as a unit.
type runtime struct {
	engine     *service.Engine
	repo       *state.Repository
	dispatcher *alerting.Dispatcher
	metrics    *metrics.Metrics
	closers    []func()
	logger     zerolog.Logger
}

func (r *runtime) close(ctx context.Context) {
	if r.engine != nil {
		if err := r.engine.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Msg("engine close")
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) resolverOptions() fetcher.ResolverOptions {
	cfg := a.Config
	return fetcher.ResolverOptions{
		Feed: fetcher.FeedOptions{
			Timeout:   cfg.Source.RequestTimeout,
			UserAgent: cfg.Source.UserAgent,
		},
		Scrape: fetcher.ScrapedOptions{
			ProxyURL:       cfg.Scrape.ProxyURL,
			PageHost:       cfg.Scrape.PageHost,
			PathPrefix:     cfg.Scrape.PathPrefix,
			LocalCurrency:  cfg.Scrape.LocalCurrency,
			UserAgent:      cfg.Scrape.UserAgent,
			AcceptLanguage: cfg.Scrape.AcceptLanguage,
			Timeout:        cfg.Scrape.RequestTimeout,
		},
		OnChain: fetcher.OnChainOptions{
			RPCURL:  cfg.OnChain.RPCURL,
			Feeds:   cfg.OnChain.Feeds,
			Timeout: cfg.OnChain.RequestTimeout,
		},
	}
}

func (a *App) newCapabilities(grants alerting.GrantStore) ([]alerting.Capability, []func()) {
	var (
		caps    []alerting.Capability
		closers []func()
	)
	cfg := a.Config.Alerting
	for _, name := range cfg.Channels {
		switch name {
		case config.ChannelLog:
			caps = append(caps, alerting.NewLogChannel(a.Logger))
		case config.ChannelTelegram:
			tg := cfg.Telegram
			caps = append(caps, alerting.NewTelegramChannel(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger).UseGrants(grants))
		case config.ChannelKafka:
			k := alerting.NewKafkaChannel(cfg.Kafka.Brokers, cfg.Kafka.Topic, a.Logger)
			caps = append(caps, k)
			closers = append(closers, func() {
				if err := k.Close(); err != nil {
					a.Logger.Warn().Err(err).Msg("close kafka writer")
				}
			})
		}
	}
	return caps, closers
}

// openRuntime loads persisted state and builds the engine around it. sched may be nil
// for one-shot commands.
func (a *App) openRuntime(ctx context.Context, sched *scheduler.Scheduler, m *metrics.Metrics) (*runtime, error) {
	backend, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", a.Config.Storage.Backend, err)
	}
	rt := &runtime{metrics: m, closers: []func(){backend.Close}, logger: a.Logger}

	rt.repo = state.NewRepository(backend.KV, a.Logger)
	snap, err := rt.repo.Load(ctx)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	log, err := history.NewLog(snap.History, a.Config.History.Limit, rt.repo, a.Logger)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}

	caps, closers := a.newCapabilities(rt.repo)
	rt.closers = append(rt.closers, closers...)
	rt.dispatcher = alerting.NewDispatcher(caps, m, a.Logger)

	sourceURL := snap.SourceURL
	if sourceURL == "" {
		sourceURL = a.Config.Source.URL
	}

	rt.engine, err = service.New(service.Deps{
		Resolver:   fetcher.NewResolver(a.resolverOptions(), a.Logger),
		Alerts:     alerts.NewStore(snap.Alerts, rt.repo, a.Logger),
		History:    log,
		Dispatcher: rt.dispatcher,
		Sources:    rt.repo,
		Scheduler:  sched,
		Metrics:    m,
		Locker:     backend.Locker,
		LockKey:    a.Config.Scheduler.AdvisoryLockKey,

		WatchInterval: a.Config.Scheduler.WatchInterval,
	}, sourceURL, a.Logger)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

func (a *App) withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	rt, err := a.openRuntime(ctx, nil, nil)
	if err != nil {
		return err
	}
	defer rt.close(ctx)
	return fn(rt)
}

// Run executes the long-running alert engine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   true,
	}, a.Logger)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if a.Config.Metrics.Enabled {
		m = metrics.New()
	}

	rt, err := a.openRuntime(ctx, sched, m)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rt.close(closeCtx)
	}()

	if m != nil {
		srv := a.serveMetrics(m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	src := rt.engine.Source()
	a.Logger.Info().
		Str("source", src.Raw).
		Str("kind", src.Kind.String()).
		Int("alerts", len(rt.engine.Alerts())).
		Strs("channels", rt.dispatcher.Channels()).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting alert engine")

	if !rt.dispatcher.Available() {
		a.Logger.Warn().Msg("no notification channel configured; triggered alerts will only be recorded")
	}

	err = rt.engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert engine stopped")
	return nil
}

func (a *App) serveMetrics(m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              a.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server failed")
		}
	}()
	a.Logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
	return srv
}

// Check runs a single pass over the active alerts and prints what it recorded.
func (a *App) Check(ctx context.Context) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		res, err := rt.engine.RunPass(ctx)
		if err != nil {
			return err
		}
		if res.Locked {
			fmt.Fprintln(a.Out, "another process holds the pass lock; nothing checked")
			return nil
		}
		if res.Started == 0 {
			fmt.Fprintln(a.Out, "no active alerts")
			return nil
		}
		return a.printEntries(res.Entries)
	})
}

// ShowOptions configure the history show command.
type ShowOptions struct {
	Limit   int
	AlertID string
}

// ExportOptions hold parameters for exporting the history log.
type ExportOptions struct {
	AlertID   string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
