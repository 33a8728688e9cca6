package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no alert carries the requested id.
var ErrNotFound = errors.New("alert not found")

// Persister saves the full alert set after each mutation.
type Persister interface {
	SaveAlerts(ctx context.Context, alerts []Alert) error
}

// Loader is implemented by persisters shared with other processes.
type Loader interface {
	LoadAlerts(ctx context.Context) ([]Alert, error)
}

// Store owns the alert set. Readers see an immutable slice; each mutation
// persists the next set and then swaps it in atomically. When the persister
// is also a Loader, mutations start from the stored set and Reload picks up
// changes made elsewhere.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[[]Alert]
	persist Persister
	loader  Loader
	logger  zerolog.Logger
}

// NewStore seeds the store with alerts loaded at startup.
func NewStore(initial []Alert, persist Persister, logger zerolog.Logger) *Store {
	s := &Store{persist: persist, logger: logger.With().Str("component", "alert_store").Logger()}
	if loader, ok := persist.(Loader); ok {
		s.loader = loader
	}
	set := append([]Alert(nil), initial...)
	s.current.Store(&set)
	return s
}

// Reload replaces the set with the stored one and reports whether it changed.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *Store) reloadLocked(ctx context.Context) (bool, error) {
	if s.loader == nil {
		return false, nil
	}
	stored, err := s.loader.LoadAlerts(ctx)
	if err != nil {
		return false, fmt.Errorf("reload alerts: %w", err)
	}
	if sameSet(*s.current.Load(), stored) {
		return false, nil
	}
	next := append([]Alert(nil), stored...)
	s.current.Store(&next)
	s.logger.Debug().Int("alerts", len(next)).Msg("alert set changed in storage")
	return true, nil
}

func sameSet(a, b []Alert) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Base != y.Base || x.Target != y.Target || x.Mode != y.Mode ||
			x.Active != y.Active || x.Frequency != y.Frequency ||
			!x.Threshold.Equal(y.Threshold) || !x.CreatedAt.Equal(y.CreatedAt) {
			return false
		}
	}
	return true
}

// List returns every alert in insertion order.
func (s *Store) List() []Alert {
	return append([]Alert(nil), *s.current.Load()...)
}

// Active returns the alerts currently enabled.
func (s *Store) Active() []Alert {
	set := *s.current.Load()
	active := make([]Alert, 0, len(set))
	for _, a := range set {
		if a.Active {
			active = append(active, a)
		}
	}
	return active
}

// Get looks an alert up by id.
func (s *Store) Get(id string) (Alert, bool) {
	for _, a := range *s.current.Load() {
		if a.ID == id {
			return a, true
		}
	}
	return Alert{}, false
}

// Add appends a validated alert.
func (s *Store) Add(ctx context.Context, a Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.reloadLocked(ctx); err != nil {
		return err
	}

	set := *s.current.Load()
	for _, existing := range set {
		if existing.ID == a.ID {
			return fmt.Errorf("alert %s already exists", a.ID)
		}
	}

	next := make([]Alert, 0, len(set)+1)
	next = append(next, set...)
	next = append(next, a)
	if err := s.replace(ctx, next); err != nil {
		return err
	}
	s.logger.Info().Str("alert_id", a.ID).Str("pair", a.Pair()).Msg("alert added")
	return nil
}

// Remove deletes the alert with id.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.reloadLocked(ctx); err != nil {
		return err
	}

	set := *s.current.Load()
	next := make([]Alert, 0, len(set))
	for _, a := range set {
		if a.ID != id {
			next = append(next, a)
		}
	}
	if len(next) == len(set) {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	if err := s.replace(ctx, next); err != nil {
		return err
	}
	s.logger.Info().Str("alert_id", id).Msg("alert removed")
	return nil
}

// Toggle flips the active flag of the alert with id and returns the new state.
func (s *Store) Toggle(ctx context.Context, id string) (Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.reloadLocked(ctx); err != nil {
		return Alert{}, err
	}

	set := *s.current.Load()
	next := make([]Alert, len(set))
	copy(next, set)

	idx := -1
	for i := range next {
		if next[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Alert{}, fmt.Errorf("toggle %s: %w", id, ErrNotFound)
	}
	next[idx].Active = !next[idx].Active

	if err := s.replace(ctx, next); err != nil {
		return Alert{}, err
	}
	s.logger.Info().Str("alert_id", id).Bool("active", next[idx].Active).Msg("alert toggled")
	return next[idx], nil
}

func (s *Store) replace(ctx context.Context, next []Alert) error {
	if s.persist != nil {
		if err := s.persist.SaveAlerts(ctx, next); err != nil {
			return fmt.Errorf("persist alerts: %w", err)
		}
	}
	s.current.Store(&next)
	return nil
}
