package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/alerting"
	"ratewatch/internal/alerts"
	"ratewatch/internal/fetcher"
	"ratewatch/internal/history"
	"ratewatch/internal/metrics"
	"ratewatch/internal/scheduler"
	"ratewatch/internal/storage"
)

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("engine closed")

// SourceStore persists the active source URL.
type SourceStore interface {
	SaveSourceURL(ctx context.Context, url string) error
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Resolver   *fetcher.Resolver
	Alerts     *alerts.Store
	History    *history.Log
	Dispatcher *alerting.Dispatcher
	Sources    SourceStore
	Scheduler  *scheduler.Scheduler
	Metrics    *metrics.Metrics
	Locker     storage.AdvisoryLocker
	LockKey    int64

	// WatchInterval is how often Run re-reads the alert set to notice edits
	// made by other processes. Zero disables watching.
	WatchInterval time.Duration
}

type binding struct {
	source  fetcher.Source
	fetcher fetcher.Fetcher
}

// Engine runs alert checks against the configured rate source.
type Engine struct {
	deps   Deps
	logger zerolog.Logger

	source atomic.Pointer[binding]

	mu       sync.Mutex
	inflight map[string]struct{}
	tasks    sync.WaitGroup

	commit  sync.RWMutex
	stopped atomic.Bool
	closed  bool
	cancel  context.CancelFunc
	runDone chan struct{}

	afterFetch func(alertID string)
}

// New builds an engine bound to sourceURL.
func New(deps Deps, sourceURL string, logger zerolog.Logger) (*Engine, error) {
	if deps.Resolver == nil || deps.Alerts == nil || deps.History == nil {
		return nil, fmt.Errorf("engine requires resolver, alert store and history log")
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = alerting.NewDispatcher(nil, deps.Metrics, logger)
	}

	e := &Engine{
		deps:     deps,
		logger:   logger.With().Str("component", "engine").Logger(),
		inflight: make(map[string]struct{}),
	}

	src, f, err := deps.Resolver.Resolve(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	e.source.Store(&binding{source: src, fetcher: f})
	return e, nil
}

// Alerts lists every alert.
func (e *Engine) Alerts() []alerts.Alert {
	return e.deps.Alerts.List()
}

// AddAlert creates an alert and schedules an immediate pass.
func (e *Engine) AddAlert(ctx context.Context, p alerts.Params) (alerts.Alert, error) {
	a, err := alerts.New(p, time.Now())
	if err != nil {
		return alerts.Alert{}, err
	}
	if err := e.deps.Alerts.Add(ctx, a); err != nil {
		return alerts.Alert{}, err
	}
	e.setChanged()
	return a, nil
}

// RemoveAlert deletes an alert and schedules an immediate pass.
func (e *Engine) RemoveAlert(ctx context.Context, id string) error {
	if err := e.deps.Alerts.Remove(ctx, id); err != nil {
		return err
	}
	e.setChanged()
	return nil
}

// ToggleAlert flips an alert on or off and schedules an immediate pass.
func (e *Engine) ToggleAlert(ctx context.Context, id string) (alerts.Alert, error) {
	a, err := e.deps.Alerts.Toggle(ctx, id)
	if err != nil {
		return alerts.Alert{}, err
	}
	e.setChanged()
	return a, nil
}

func (e *Engine) setChanged() {
	if e.deps.Scheduler != nil && !e.stopped.Load() {
		e.deps.Scheduler.Trigger()
	}
}

// Source returns the active source.
func (e *Engine) Source() fetcher.Source {
	return e.source.Load().source
}

// SetSourceURL classifies raw, persists it and makes it the active source.
// Checks already running finish against the previous source.
func (e *Engine) SetSourceURL(ctx context.Context, raw string) (fetcher.Source, error) {
	src, f, err := e.deps.Resolver.Resolve(raw)
	if err != nil {
		return fetcher.Source{}, err
	}
	if e.deps.Sources != nil {
		if err := e.deps.Sources.SaveSourceURL(ctx, src.Raw); err != nil {
			return fetcher.Source{}, err
		}
	}
	e.source.Store(&binding{source: src, fetcher: f})
	e.logger.Info().Str("kind", src.Kind.String()).Str("source", src.Raw).Msg("source updated")
	return src, nil
}

// Probe fetches one rate from raw without changing the active source.
func (e *Engine) Probe(ctx context.Context, raw, base, target string) (fetcher.Source, decimal.Decimal, error) {
	src, f, err := e.deps.Resolver.Resolve(raw)
	if err != nil {
		return fetcher.Source{}, decimal.Decimal{}, err
	}
	rate, err := e.fetchRate(ctx, &binding{source: src, fetcher: f}, base, target)
	return src, rate, err
}

// History returns the check log, newest first.
func (e *Engine) History() []history.Entry {
	return e.deps.History.Entries()
}

// Run blocks, driving passes from the scheduler until ctx is cancelled or
// Close is called.
func (e *Engine) Run(ctx context.Context) error {
	if e.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	defer close(done)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.cancel = cancel
	e.runDone = done
	e.mu.Unlock()

	var watcher sync.WaitGroup
	if e.deps.WatchInterval > 0 {
		watcher.Add(1)
		go func() {
			defer watcher.Done()
			e.watch(ctx, e.deps.WatchInterval)
		}()
	}

	err := e.deps.Scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := e.StartPass(ctx)
		return err
	})
	cancel()
	watcher.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watch reloads the alert set every interval and asks for an immediate pass
// when another process changed it.
func (e *Engine) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := e.deps.Alerts.Reload(ctx)
			if err != nil {
				e.logger.Warn().Err(err).Msg("watch alert set")
				continue
			}
			if changed {
				e.logger.Info().Msg("alert set changed in storage, scheduling a pass")
				e.setChanged()
			}
		}
	}
}

// Close stops the scheduler and waits for in-flight checks. Checks finishing
// after Close write neither history nor notifications.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel, done := e.cancel, e.runDone
	e.mu.Unlock()

	e.commit.Lock()
	e.stopped.Store(true)
	e.commit.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	waited := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		e.logger.Info().Msg("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight checks: %w", ctx.Err())
	}
}
