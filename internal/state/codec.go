package state

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
	"ratewatch/internal/history"
	"ratewatch/internal/rates"
)

// alertRecord is the persisted shape of an alert. Frequency is kept in
// milliseconds.
type alertRecord struct {
	ID          string          `json:"id"`
	Base        string          `json:"base"`
	Target      string          `json:"target"`
	Threshold   decimal.Decimal `json:"threshold"`
	Mode        string          `json:"mode"`
	FrequencyMS int64           `json:"frequency"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func encodeAlert(a alerts.Alert) alertRecord {
	return alertRecord{
		ID:          a.ID,
		Base:        a.Base,
		Target:      a.Target,
		Threshold:   a.Threshold,
		Mode:        string(a.Mode),
		FrequencyMS: a.Frequency.Milliseconds(),
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
	}
}

func (r alertRecord) decode() (alerts.Alert, error) {
	mode, err := alerts.ParseMode(r.Mode)
	if err != nil {
		return alerts.Alert{}, err
	}
	freq := time.Duration(r.FrequencyMS) * time.Millisecond
	if freq == 0 {
		freq = alerts.DefaultFrequency
	}
	a := alerts.Alert{
		ID:        r.ID,
		Base:      rates.NormalizeCode(r.Base),
		Target:    rates.NormalizeCode(r.Target),
		Threshold: r.Threshold,
		Mode:      mode,
		Frequency: freq,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
	if err := a.Validate(); err != nil {
		return alerts.Alert{}, err
	}
	return a, nil
}

// entryRecord is the persisted shape of a history entry. Rate is null for a
// failed check.
type entryRecord struct {
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	AlertID   string              `json:"alertId"`
	Base      string              `json:"base"`
	Target    string              `json:"target"`
	Rate      decimal.NullDecimal `json:"rate"`
	Threshold decimal.Decimal     `json:"threshold"`
	Mode      string              `json:"mode"`
	Triggered bool                `json:"triggered"`
	Error     string              `json:"error,omitempty"`
}

func encodeEntry(e history.Entry) entryRecord {
	return entryRecord{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		AlertID:   e.AlertID,
		Base:      e.Base,
		Target:    e.Target,
		Rate:      e.Rate,
		Threshold: e.Threshold,
		Mode:      string(e.Mode),
		Triggered: e.Triggered,
		Error:     e.Error,
	}
}

func (r entryRecord) decode() (history.Entry, error) {
	if r.ID == "" || r.AlertID == "" {
		return history.Entry{}, fmt.Errorf("history entry missing id")
	}
	if r.Timestamp.IsZero() {
		return history.Entry{}, fmt.Errorf("history entry %s missing timestamp", r.ID)
	}
	mode, err := alerts.ParseMode(r.Mode)
	if err != nil {
		return history.Entry{}, err
	}
	return history.Entry{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		AlertID:   r.AlertID,
		Base:      rates.NormalizeCode(r.Base),
		Target:    rates.NormalizeCode(r.Target),
		Rate:      r.Rate,
		Threshold: r.Threshold,
		Mode:      mode,
		Triggered: r.Triggered,
		Error:     r.Error,
	}, nil
}
