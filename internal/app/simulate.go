package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
)

// SimulateAlert dispatches the notification an alert would send at rate,
// without fetching or writing history. The threshold is not checked.
func (a *App) SimulateAlert(ctx context.Context, alertID string, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return errors.New("rate must be greater than zero")
	}

	return a.withRuntime(ctx, func(rt *runtime) error {
		var target alerts.Alert
		found := false
		for _, al := range rt.engine.Alerts() {
			if al.ID == alertID {
				target, found = al, true
				break
			}
		}
		if !found {
			return fmt.Errorf("simulate %s: %w", alertID, alerts.ErrNotFound)
		}

		if !rt.dispatcher.Available() {
			return errors.New("no notification channel configured")
		}

		if !alerts.Evaluate(target, decimal.NewNullDecimal(rate)) {
			fmt.Fprintf(a.Out, "note: %s would not trigger %s %s at this rate\n", target.Pair(), target.Mode, target.Threshold)
		}

		results := rt.dispatcher.Notify(ctx, target, rate)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(a.Out, "%s: %s (%v)\n", r.Channel, r.Outcome, r.Err)
				continue
			}
			fmt.Fprintf(a.Out, "%s: %s\n", r.Channel, r.Outcome)
		}
		if results.Delivered() == 0 {
			return errors.New("notification was not delivered on any channel")
		}
		return nil
	})
}
