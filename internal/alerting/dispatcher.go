package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
	"ratewatch/internal/metrics"
)

// Outcome is what happened on one channel for one notification.
type Outcome string

const (
	OutcomeDelivered           Outcome = "delivered"
	OutcomeUnavailable         Outcome = "unavailable"
	OutcomePermissionRequested Outcome = "permission_requested"
	OutcomeFailed              Outcome = "failed"
)

// Result reports the outcome on one channel.
type Result struct {
	Channel string
	Outcome Outcome
	Err     error
}

// Results is the per-channel report of one dispatch.
type Results []Result

// Delivered counts channels that accepted the notification.
func (r Results) Delivered() int {
	n := 0
	for _, res := range r {
		if res.Outcome == OutcomeDelivered {
			n++
		}
	}
	return n
}

// Dispatcher fans a notification out to every configured capability.
type Dispatcher struct {
	caps    []Capability
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewDispatcher constructs a dispatcher. m may be nil.
func NewDispatcher(caps []Capability, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		caps:    caps,
		metrics: m,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		now:     time.Now,
	}
}

// Available reports whether at least one capability is configured.
func (d *Dispatcher) Available() bool {
	return len(d.caps) > 0
}

// Channels lists the configured capability names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.caps))
	for _, c := range d.caps {
		names = append(names, c.Name())
	}
	return names
}

// Notify renders and sends the notification for a triggered alert.
func (d *Dispatcher) Notify(ctx context.Context, a alerts.Alert, rate decimal.Decimal) Results {
	return d.Send(ctx, NewNotification(a, rate, d.now()))
}

// Send delivers n on every authorized capability. An unauthorized capability
// is asked for permission and skipped for this notification; nothing is queued.
func (d *Dispatcher) Send(ctx context.Context, n Notification) Results {
	if len(d.caps) == 0 {
		d.logger.Debug().Str("tag", n.Tag).Msg("no notification capability configured")
		return Results{{Channel: "none", Outcome: OutcomeUnavailable}}
	}

	results := make(Results, 0, len(d.caps))
	for _, c := range d.caps {
		res := d.sendOne(ctx, c, n)
		d.metrics.RecordNotification(res.Channel, string(res.Outcome))
		results = append(results, res)
	}
	return results
}

func (d *Dispatcher) sendOne(ctx context.Context, c Capability, n Notification) Result {
	res := Result{Channel: c.Name()}
	log := d.logger.With().Str("channel", res.Channel).Str("tag", n.Tag).Logger()

	switch c.Permission(ctx) {
	case PermissionAuthorized:
	case PermissionUnauthorized:
		granted, err := c.RequestPermission(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("permission request failed")
		} else {
			log.Info().Str("permission", granted.String()).Msg("permission requested, delivery skipped this cycle")
		}
		res.Outcome = OutcomePermissionRequested
		res.Err = err
		return res
	default:
		log.Debug().Msg("channel unavailable")
		res.Outcome = OutcomeUnavailable
		return res
	}

	if err := c.Deliver(ctx, n); err != nil {
		log.Error().Err(err).Msg("notification delivery failed")
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	log.Info().Str("alert_id", n.AlertID).Msg("notification delivered")
	res.Outcome = OutcomeDelivered
	return res
}
