package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval and on every manual trigger.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	RunOnStart   bool
}

// Scheduler owns the single recurring timer of the engine. Trigger requests an
// extra run outside the regular cadence.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	trigger chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", opts.Interval)
	}
	if opts.StartupDelay < 0 {
		return nil, fmt.Errorf("scheduler startup delay must not be negative, got %s", opts.StartupDelay)
	}
	return &Scheduler{
		opts:    opts,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Interval reports the recurring period.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Trigger asks the running loop for an immediate tick. Requests made while one
// is already pending collapse into it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks, invoking tick at each interval and on each trigger until ctx is
// cancelled. Ticks never overlap.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunOnStart {
		s.execute(ctx, tick, "start")
	}

	next := time.Now().Add(s.opts.Interval)
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = time.Now().Add(s.opts.Interval)
			delay = s.opts.Interval
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.trigger:
			timer.Stop()
			s.execute(ctx, tick, "trigger")
		case <-timer.C:
			s.execute(ctx, tick, "interval")
			next = next.Add(s.opts.Interval)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, reason string) {
	at := time.Now().UTC()
	s.logger.Debug().Time("at", at).Str("reason", reason).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Str("reason", reason).Msg("tick execution failed")
	}
}
