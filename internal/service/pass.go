package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
	"ratewatch/internal/history"
	"ratewatch/internal/rates"
)

// PassResult summarises one evaluation pass. Entries holds what the pass wrote
// to history, in completion order, and is only filled by RunPass.
type PassResult struct {
	Started int
	Skipped int
	Locked  bool
	Entries []history.Entry
}

type pass struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	entries []history.Entry
}

func (p *pass) record(e history.Entry) {
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
}

// StartPass launches one check per active alert and returns without waiting.
// An alert whose previous check is still running is skipped for this pass.
func (e *Engine) StartPass(ctx context.Context) (PassResult, error) {
	res, _, err := e.startPass(ctx)
	return res, err
}

// RunPass launches a pass and waits for every check it started.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	res, p, err := e.startPass(ctx)
	if err != nil || p == nil {
		return res, err
	}
	p.wg.Wait()
	res.Entries = p.entries
	return res, nil
}

func (e *Engine) startPass(ctx context.Context) (PassResult, *pass, error) {
	if e.stopped.Load() {
		return PassResult{}, nil, ErrClosed
	}

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return PassResult{}, nil, err
	}
	if !proceed {
		e.logger.Debug().Msg("skip pass because advisory lock held elsewhere")
		return PassResult{Locked: true}, nil, nil
	}

	if _, err := e.deps.Alerts.Reload(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("using cached alert set for this pass")
	}

	started := time.Now()
	active := e.deps.Alerts.Active()
	b := e.source.Load()
	p := &pass{}
	var res PassResult
	closed := false

claims:
	for _, a := range active {
		switch e.claim(a.ID, p) {
		case claimClosed:
			closed = true
			break claims
		case claimBusy:
			res.Skipped++
			e.deps.Metrics.RecordSkipped()
			e.logger.Debug().Str("alert_id", a.ID).Msg("previous check still running, skipping")
			continue
		}
		res.Started++
		go func(a alerts.Alert) {
			defer e.tasks.Done()
			defer p.wg.Done()
			defer e.release(a.ID)
			if entry, ok := e.check(context.WithoutCancel(ctx), b, a); ok {
				p.record(entry)
			}
		}(a)
	}

	go func() {
		p.wg.Wait()
		if unlock != nil {
			unlock()
		}
		e.deps.Metrics.RecordPass(len(active), time.Since(started).Seconds())
	}()

	if closed && res.Started == 0 {
		return PassResult{}, nil, ErrClosed
	}
	e.logger.Debug().Int("started", res.Started).Int("skipped", res.Skipped).Msg("pass started")
	return res, p, nil
}

type claimResult int

const (
	claimed claimResult = iota
	claimBusy
	claimClosed
)

// claim registers a check for id with the engine and the pass. It refuses
// once Close has begun so no task is added while Close waits for them.
func (e *Engine) claim(id string, p *pass) claimResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return claimClosed
	}
	if _, busy := e.inflight[id]; busy {
		return claimBusy
	}
	e.inflight[id] = struct{}{}
	e.tasks.Add(1)
	p.wg.Add(1)
	return claimed
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}

// check runs one alert: fetch, normalize, evaluate, record, notify. Failures
// become a history entry without a rate. Recording and notifying happen under
// the commit lock, so nothing is written once Close has returned.
func (e *Engine) check(ctx context.Context, b *binding, a alerts.Alert) (history.Entry, bool) {
	log := e.logger.With().Str("alert_id", a.ID).Str("pair", a.Pair()).Logger()

	rate, err := e.fetchRate(ctx, b, a.Base, a.Target)
	if e.afterFetch != nil {
		e.afterFetch(a.ID)
	}

	if _, rerr := e.deps.Alerts.Reload(ctx); rerr != nil {
		log.Warn().Err(rerr).Msg("using cached alert state")
	}

	e.commit.RLock()
	defer e.commit.RUnlock()

	if e.stopped.Load() {
		log.Debug().Msg("engine closed, discarding check result")
		return history.Entry{}, false
	}
	current, ok := e.deps.Alerts.Get(a.ID)
	if !ok || !current.Active {
		log.Debug().Msg("alert removed or disabled during check, discarding result")
		return history.Entry{}, false
	}

	entry := history.Entry{
		AlertID:   current.ID,
		Base:      current.Base,
		Target:    current.Target,
		Threshold: current.Threshold,
		Mode:      current.Mode,
	}
	if err != nil {
		entry.Error = err.Error()
		log.Warn().Err(err).Str("kind", string(rates.KindOf(err))).Msg("alert check failed")
		e.deps.Metrics.RecordEvaluation("failed")
	} else {
		entry.Rate = decimal.NewNullDecimal(rate)
		entry.Triggered = alerts.Evaluate(current, entry.Rate)
		if entry.Triggered {
			e.deps.Metrics.RecordEvaluation("triggered")
		} else {
			e.deps.Metrics.RecordEvaluation("quiet")
		}
	}

	stored, err := e.deps.History.Append(ctx, entry)
	if err != nil {
		log.Error().Err(err).Msg("history append not persisted")
	}

	if entry.Triggered {
		log.Info().Str("rate", rate.String()).Str("threshold", current.Threshold.String()).Msg("alert triggered")
		if !e.deps.Dispatcher.Available() {
			log.Warn().Msg("alert triggered but no notification channel is available")
		} else {
			e.deps.Dispatcher.Notify(ctx, current, rate)
		}
	}
	return stored, true
}

func (e *Engine) fetchRate(ctx context.Context, b *binding, base, target string) (decimal.Decimal, error) {
	started := time.Now()
	snap, err := b.fetcher.Fetch(ctx, base, target)
	e.deps.Metrics.RecordFetch(b.source.Kind.String(), time.Since(started).Seconds(), err)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rates.CrossRate(snap, base, target)
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.deps.LockKey == 0 || e.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.deps.Locker.TryAdvisoryLock(ctx, e.deps.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
