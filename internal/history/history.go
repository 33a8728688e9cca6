// Package history keeps the bounded, most-recent-first log of alert checks.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
)

// DefaultLimit bounds the log when no limit is configured.
const DefaultLimit = 100

// Entry records one alert check. Rate is null when the check failed, in which
// case Error carries the failure text.
type Entry struct {
	ID        string
	Timestamp time.Time
	AlertID   string
	Base      string
	Target    string
	Rate      decimal.NullDecimal
	Threshold decimal.Decimal
	Mode      alerts.Mode
	Triggered bool
	Error     string
}

// Pair renders the checked pair as BASE/TARGET.
func (e Entry) Pair() string {
	return e.Base + "/" + e.Target
}

// Failed reports whether the check could not produce a rate.
func (e Entry) Failed() bool {
	return !e.Rate.Valid
}

// Persister saves the full log after each append.
type Persister interface {
	SaveHistory(ctx context.Context, entries []Entry) error
}

// Loader is implemented by persisters shared with other processes. Append
// re-reads the stored log through it so entries written elsewhere survive.
type Loader interface {
	LoadHistory(ctx context.Context) ([]Entry, error)
}

// Log is the in-memory history, newest entry first.
type Log struct {
	appendMu sync.Mutex

	mu      sync.RWMutex
	entries []Entry
	limit   int
	persist Persister
	loader  Loader
	newID   func() string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewLog builds a log seeded with entries loaded at startup.
func NewLog(initial []Entry, limit int, persist Persister, logger zerolog.Logger) (*Log, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("init history id generator: %w", err)
	}

	entries := append([]Entry(nil), initial...)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	l := &Log{
		entries: entries,
		limit:   limit,
		persist: persist,
		newID:   gen,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With().Str("component", "history").Logger(),
	}
	if loader, ok := persist.(Loader); ok {
		l.loader = loader
	}
	return l, nil
}

// Append stamps e with a fresh id and timestamp, inserts it at the front and
// drops the oldest entries beyond the limit. When the persister can load, the
// stored log replaces the in-memory one first. The stored entry is returned
// even when persisting fails.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	if err := l.Reload(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("reload history before append, keeping local copy")
	}

	e.ID = l.newID()
	e.Timestamp = l.now()

	l.mu.Lock()
	if len(l.entries) >= l.limit {
		l.logger.Debug().Str("evicted", l.entries[len(l.entries)-1].ID).Msg("history full, evicting oldest entry")
	}
	next := make([]Entry, 0, min(len(l.entries)+1, l.limit))
	next = append(next, e)
	for _, existing := range l.entries {
		if len(next) == l.limit {
			break
		}
		next = append(next, existing)
	}
	l.entries = next
	snapshot := append([]Entry(nil), next...)
	l.mu.Unlock()

	if l.persist == nil {
		return e, nil
	}
	if err := l.persist.SaveHistory(ctx, snapshot); err != nil {
		return e, fmt.Errorf("persist history: %w", err)
	}
	return e, nil
}

// Reload replaces the in-memory log with the stored one. It is a no-op when
// the persister cannot load.
func (l *Log) Reload(ctx context.Context) error {
	if l.loader == nil {
		return nil
	}
	stored, err := l.loader.LoadHistory(ctx)
	if err != nil {
		return err
	}
	if len(stored) > l.limit {
		stored = stored[:l.limit]
	}
	l.mu.Lock()
	l.entries = append([]Entry(nil), stored...)
	l.mu.Unlock()
	return nil
}

// Entries returns the log newest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Recent returns at most n entries, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Entry {
	entries := l.Entries()
	if n > 0 && n < len(entries) {
		return entries[:n]
	}
	return entries
}

// ForAlert returns the entries produced by one alert, newest first.
func (l *Log) ForAlert(alertID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range l.entries {
		if e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out
}

// Limit reports the configured capacity.
func (l *Log) Limit() int {
	return l.limit
}
