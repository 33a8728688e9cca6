package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"ratewatch/internal/alerts"
	"ratewatch/internal/rates"
)

// AlertInput is the raw alert definition supplied on the command line.
type AlertInput struct {
	Base      string
	Target    string
	Threshold string
	Mode      string
	Frequency time.Duration
}

func (in AlertInput) params() (alerts.Params, error) {
	threshold, err := decimal.NewFromString(in.Threshold)
	if err != nil {
		return alerts.Params{}, rates.InvalidConfig("parse threshold", "threshold %q is not a number", in.Threshold)
	}
	mode, err := alerts.ParseMode(in.Mode)
	if err != nil {
		return alerts.Params{}, err
	}
	return alerts.Params{
		Base:      in.Base,
		Target:    in.Target,
		Threshold: threshold,
		Mode:      mode,
		Frequency: in.Frequency,
	}, nil
}

// AddAlert creates an alert and prints its id.
func (a *App) AddAlert(ctx context.Context, in AlertInput) error {
	p, err := in.params()
	if err != nil {
		return err
	}
	return a.withRuntime(ctx, func(rt *runtime) error {
		created, err := rt.engine.AddAlert(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "created alert %s: %s %s %s\n", created.ID, created.Pair(), created.Mode, created.Threshold)
		return nil
	})
}

// ListAlerts prints every alert.
func (a *App) ListAlerts(ctx context.Context) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		list := rt.engine.Alerts()
		if len(list) == 0 {
			fmt.Fprintln(a.Out, "no alerts defined")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tPair\tMode\tThreshold\tFrequency\tActive\tCreated (UTC)")
		for _, al := range list {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
				al.ID,
				al.Pair(),
				al.Mode,
				al.Threshold.String(),
				al.Frequency,
				al.Active,
				al.CreatedAt.UTC().Format(time.RFC3339),
			)
		}
		return writer.Flush()
	})
}

// RemoveAlert deletes an alert.
func (a *App) RemoveAlert(ctx context.Context, id string) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		if err := rt.engine.RemoveAlert(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "removed alert %s\n", id)
		return nil
	})
}

// ToggleAlert enables or disables an alert.
func (a *App) ToggleAlert(ctx context.Context, id string) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		toggled, err := rt.engine.ToggleAlert(ctx, id)
		if err != nil {
			return err
		}
		state := "disabled"
		if toggled.Active {
			state = "enabled"
		}
		fmt.Fprintf(a.Out, "alert %s %s\n", toggled.ID, state)
		return nil
	})
}
