// Package alerting delivers triggered alerts through permission-gated channels.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
)

const tagPrefix = "rate-alert-"

// Notification is one user-visible alert message. Tag is stable per alert so a
// channel can replace an earlier message instead of stacking another.
type Notification struct {
	Tag       string
	Title     string
	Body      string
	AlertID   string
	Base      string
	Target    string
	Rate      decimal.Decimal
	Threshold decimal.Decimal
	Mode      alerts.Mode
	At        time.Time
}

// Tag derives the coalescing tag from an alert id.
func Tag(alertID string) string {
	return tagPrefix + alertID
}

// NewNotification renders the message for a triggered alert.
func NewNotification(a alerts.Alert, rate decimal.Decimal, at time.Time) Notification {
	return Notification{
		Tag:       Tag(a.ID),
		Title:     "Rate alert " + a.Pair(),
		Body:      renderBody(a, rate),
		AlertID:   a.ID,
		Base:      a.Base,
		Target:    a.Target,
		Rate:      rate,
		Threshold: a.Threshold,
		Mode:      a.Mode,
		At:        at.UTC(),
	}
}

func renderBody(a alerts.Alert, rate decimal.Decimal) string {
	direction := "above"
	if a.Mode == alerts.ModeBelow {
		direction = "below"
	}
	return fmt.Sprintf("1 %s = %s %s, %s your threshold of %s",
		a.Base, rate.StringFixed(4), a.Target, direction, a.Threshold.String())
}

// Text is the title and body joined for plain-text channels.
func (n Notification) Text() string {
	var b strings.Builder
	b.WriteString(n.Title)
	b.WriteString("\n")
	b.WriteString(n.Body)
	if !n.At.IsZero() {
		b.WriteString("\n")
		b.WriteString(n.At.Format(time.RFC3339))
	}
	return b.String()
}

// Permission is the state of a delivery capability.
type Permission int

const (
	PermissionUnavailable Permission = iota
	PermissionUnauthorized
	PermissionAuthorized
)

func (p Permission) String() string {
	switch p {
	case PermissionAuthorized:
		return "authorized"
	case PermissionUnauthorized:
		return "unauthorized"
	default:
		return "unavailable"
	}
}

// Capability is one delivery channel. Permission reports the current state
// without side effects; RequestPermission tries to move an unauthorized
// channel to authorized.
type Capability interface {
	Name() string
	Permission(ctx context.Context) Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Deliver(ctx context.Context, n Notification) error
}
