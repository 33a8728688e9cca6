package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerTicksOnInterval(t *testing.T) {
	s := newScheduler(t, Options{Interval: 20 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var ticks atomic.Int32
	err := s.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run should stop with the context, got %v", err)
	}
	if ticks.Load() < 2 {
		t.Fatalf("expected several ticks, got %d", ticks.Load())
	}
}

func TestSchedulerTriggerRunsImmediately(t *testing.T) {
	s := newScheduler(t, Options{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) error {
			fired <- struct{}{}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	s.Trigger()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("trigger should run a tick well before the interval")
	}

	s.Trigger()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduler should keep running after a failed tick")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected run error %v", err)
	}
}

func TestSchedulerRunOnStartAndDelay(t *testing.T) {
	s := newScheduler(t, Options{Interval: time.Hour, StartupDelay: 10 * time.Millisecond, RunOnStart: true})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var ticks atomic.Int32
	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return nil
	})
	if ticks.Load() != 1 {
		t.Fatalf("expected exactly the start tick, got %d", ticks.Load())
	}
}

func TestTriggerCollapses(t *testing.T) {
	s := newScheduler(t, Options{Interval: time.Minute})
	s.Trigger()
	s.Trigger()
	if len(s.trigger) != 1 {
		t.Fatalf("pending triggers should collapse, got %d", len(s.trigger))
	}
}

func newScheduler(t *testing.T, opts Options) *Scheduler {
	t.Helper()
	s, err := New(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestNewRejectsBadOptions(t *testing.T) {
	for _, opts := range []Options{
		{},
		{Interval: -time.Second},
		{Interval: time.Minute, StartupDelay: -time.Second},
	} {
		s, err := New(opts, zerolog.Nop())
		if err == nil || s != nil {
			t.Fatalf("options %+v should be rejected", opts)
		}
	}
}
