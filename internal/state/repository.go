// Package state maps the engine's persisted state onto a key-value backend.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ratewatch/internal/alerting"
	"ratewatch/internal/alerts"
	"ratewatch/internal/history"
	"ratewatch/internal/storage"
)

// Keys used in the backend.
const (
	KeySourceURL = "source_url"
	KeyAlerts    = "alerts"
	KeyHistory   = "history"

	KeyGrantPrefix = "grant:"
)

// Snapshot is everything restored at startup.
type Snapshot struct {
	SourceURL string
	Alerts    []alerts.Alert
	History   []history.Entry
}

// Repository reads and writes state through a storage.KV.
type Repository struct {
	kv     storage.KV
	logger zerolog.Logger
}

// NewRepository wraps kv.
func NewRepository(kv storage.KV, logger zerolog.Logger) *Repository {
	return &Repository{kv: kv, logger: logger.With().Str("component", "state").Logger()}
}

// Load restores state. Missing keys yield empty values; records that fail to
// decode are skipped individually.
func (r *Repository) Load(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)

	if snap.SourceURL, err = r.SourceURL(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Alerts, err = r.LoadAlerts(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.History, err = r.LoadHistory(ctx); err != nil {
		return Snapshot{}, err
	}

	r.logger.Debug().
		Int("alerts", len(snap.Alerts)).
		Int("history", len(snap.History)).
		Bool("custom_source", snap.SourceURL != "").
		Msg("state loaded")
	return snap, nil
}

// LoadAlerts reads the stored alert set, skipping malformed, invalid and
// duplicate records.
func (r *Repository) LoadAlerts(ctx context.Context) ([]alerts.Alert, error) {
	items, err := r.readArray(ctx, KeyAlerts)
	if err != nil {
		return nil, err
	}
	set := make([]alerts.Alert, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, raw := range items {
		var rec alertRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			r.logger.Warn().Err(err).Int("index", i).Msg("skipping malformed alert record")
			continue
		}
		a, err := rec.decode()
		if err != nil {
			r.logger.Warn().Err(err).Int("index", i).Str("alert_id", rec.ID).Msg("skipping invalid alert record")
			continue
		}
		if _, dup := seen[a.ID]; dup {
			r.logger.Warn().Str("alert_id", a.ID).Msg("skipping duplicate alert record")
			continue
		}
		seen[a.ID] = struct{}{}
		set = append(set, a)
	}
	return set, nil
}

// LoadHistory reads the stored log, newest first, skipping records that fail
// to decode.
func (r *Repository) LoadHistory(ctx context.Context) ([]history.Entry, error) {
	items, err := r.readArray(ctx, KeyHistory)
	if err != nil {
		return nil, err
	}
	entries := make([]history.Entry, 0, len(items))
	for i, raw := range items {
		var rec entryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			r.logger.Warn().Err(err).Int("index", i).Msg("skipping malformed history record")
			continue
		}
		e, err := rec.decode()
		if err != nil {
			r.logger.Warn().Err(err).Int("index", i).Msg("skipping invalid history record")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SourceURL returns the saved source URL, or "" when none was saved.
func (r *Repository) SourceURL(ctx context.Context) (string, error) {
	raw, err := r.kv.Get(ctx, KeySourceURL)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", KeySourceURL, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// SaveSourceURL persists the active source URL.
func (r *Repository) SaveSourceURL(ctx context.Context, url string) error {
	if err := r.kv.Set(ctx, KeySourceURL, []byte(url)); err != nil {
		return fmt.Errorf("save %s: %w", KeySourceURL, err)
	}
	return nil
}

// SaveAlerts persists the full alert set in order.
func (r *Repository) SaveAlerts(ctx context.Context, set []alerts.Alert) error {
	records := make([]alertRecord, 0, len(set))
	for _, a := range set {
		records = append(records, encodeAlert(a))
	}
	return r.writeArray(ctx, KeyAlerts, records)
}

// SaveHistory persists the log, newest first.
func (r *Repository) SaveHistory(ctx context.Context, entries []history.Entry) error {
	records := make([]entryRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, encodeEntry(e))
	}
	return r.writeArray(ctx, KeyHistory, records)
}

// LoadGrant returns the subject a notification channel last verified, or ""
// when it never did.
func (r *Repository) LoadGrant(ctx context.Context, channel string) (string, error) {
	key := grantKey(channel)
	raw, err := r.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return string(raw), nil
}

// SaveGrant records that channel verified subject.
func (r *Repository) SaveGrant(ctx context.Context, channel, subject string) error {
	key := grantKey(channel)
	if err := r.kv.Set(ctx, key, []byte(subject)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func grantKey(channel string) string {
	return KeyGrantPrefix + channel
}

func (r *Repository) readArray(ctx context.Context, key string) ([]json.RawMessage, error) {
	raw, err := r.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("stored value is not an array, ignoring")
		return nil, nil
	}
	return items, nil
}

func (r *Repository) writeArray(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.kv.Set(ctx, key, payload); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

var (
	_ alerts.Persister    = (*Repository)(nil)
	_ alerts.Loader       = (*Repository)(nil)
	_ history.Persister   = (*Repository)(nil)
	_ history.Loader      = (*Repository)(nil)
	_ alerting.GrantStore = (*Repository)(nil)
)
