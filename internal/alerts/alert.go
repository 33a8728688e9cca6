// Package alerts holds user-defined threshold alerts, their evaluation and the
// in-process store owning the alert set.
package alerts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ratewatch/internal/rates"
)

// Mode selects the crossing direction that triggers an alert.
type Mode string

const (
	ModeAbove Mode = "above"
	ModeBelow Mode = "below"
)

const (
	// MinFrequency is the shortest check frequency an alert may carry.
	MinFrequency = time.Minute
	// DefaultFrequency applies when an alert is created without one.
	DefaultFrequency = 5 * time.Minute
)

// ParseMode accepts "above" or "below" in any case.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAbove:
		return ModeAbove, nil
	case ModeBelow:
		return ModeBelow, nil
	}
	return "", rates.InvalidConfig("parse mode", "mode must be above or below, got %q", raw)
}

// Alert watches Target expressed in Base against Threshold. Frequency is kept for
// display; checks run on the engine's global tick.
type Alert struct {
	ID        string
	Base      string
	Target    string
	Threshold decimal.Decimal
	Mode      Mode
	Frequency time.Duration
	Active    bool
	CreatedAt time.Time
}

// Params are the user-supplied fields of a new alert.
type Params struct {
	Base      string
	Target    string
	Threshold decimal.Decimal
	Mode      Mode
	Frequency time.Duration
}

// New validates params and returns an active alert with a fresh id.
func New(p Params, now time.Time) (Alert, error) {
	freq := p.Frequency
	if freq == 0 {
		freq = DefaultFrequency
	}
	a := Alert{
		ID:        uuid.NewString(),
		Base:      rates.NormalizeCode(p.Base),
		Target:    rates.NormalizeCode(p.Target),
		Threshold: p.Threshold,
		Mode:      p.Mode,
		Frequency: freq,
		Active:    true,
		CreatedAt: now.UTC(),
	}
	if err := a.Validate(); err != nil {
		return Alert{}, err
	}
	return a, nil
}

// Validate reports the first field that makes the alert unusable.
func (a Alert) Validate() error {
	const op = "validate alert"
	if strings.TrimSpace(a.ID) == "" {
		return rates.InvalidConfig(op, "id is required")
	}
	if !rates.ValidCode(a.Base) {
		return rates.InvalidConfig(op, "base %q is not a 3-letter currency code", a.Base)
	}
	if !rates.ValidCode(a.Target) {
		return rates.InvalidConfig(op, "target %q is not a 3-letter currency code", a.Target)
	}
	if !a.Threshold.IsPositive() {
		return rates.InvalidConfig(op, "threshold must be greater than zero, got %s", a.Threshold)
	}
	if a.Mode != ModeAbove && a.Mode != ModeBelow {
		return rates.InvalidConfig(op, "mode must be above or below, got %q", a.Mode)
	}
	if a.Frequency < MinFrequency {
		return rates.InvalidConfig(op, "frequency must be at least %s, got %s", MinFrequency, a.Frequency)
	}
	return nil
}

// Pair renders the watched pair as BASE/TARGET.
func (a Alert) Pair() string {
	return a.Base + "/" + a.Target
}
