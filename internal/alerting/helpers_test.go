package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testAlert() alerts.Alert {
	return alerts.Alert{
		ID:        "a1",
		Base:      "EUR",
		Target:    "USD",
		Threshold: decimal.RequireFromString("1.05"),
		Mode:      alerts.ModeAbove,
		Frequency: alerts.DefaultFrequency,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

type fakeCapability struct {
	name       string
	permission Permission
	grant      Permission
	grantErr   error
	deliverErr error

	requests  int
	delivered []Notification
}

func (f *fakeCapability) Name() string { return f.name }

func (f *fakeCapability) Permission(ctx context.Context) Permission { return f.permission }

func (f *fakeCapability) RequestPermission(ctx context.Context) (Permission, error) {
	f.requests++
	if f.grantErr != nil {
		return f.permission, f.grantErr
	}
	f.permission = f.grant
	return f.grant, nil
}

func (f *fakeCapability) Deliver(ctx context.Context, n Notification) error {
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, n)
	return nil
}

var errBoom = errors.New("boom")
