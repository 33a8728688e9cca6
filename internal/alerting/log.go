package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel writes notifications to the structured log. It is always authorized.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel constructs the log channel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Permission(ctx context.Context) Permission { return PermissionAuthorized }

func (l *LogChannel) RequestPermission(ctx context.Context) (Permission, error) {
	return PermissionAuthorized, nil
}

func (l *LogChannel) Deliver(ctx context.Context, n Notification) error {
	l.logger.Warn().
		Str("tag", n.Tag).
		Str("alert_id", n.AlertID).
		Str("pair", n.Base+"/"+n.Target).
		Str("rate", n.Rate.String()).
		Str("threshold", n.Threshold.String()).
		Str("mode", string(n.Mode)).
		Msg(n.Title)
	return nil
}

var _ Capability = (*LogChannel)(nil)
