package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"ratewatch/internal/history"
)

// ShowHistory prints recent history entries, newest first.
func (a *App) ShowHistory(ctx context.Context, opts ShowOptions) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		entries := filterEntries(rt.engine.History(), opts.AlertID)
		if opts.Limit > 0 && len(entries) > opts.Limit {
			entries = entries[:opts.Limit]
		}
		if len(entries) == 0 {
			fmt.Fprintln(a.Out, "no history entries found")
			return nil
		}
		return a.printEntries(entries)
	})
}

func (a *App) printEntries(entries []history.Entry) error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAlert\tPair\tRate\tMode\tThreshold\tTriggered\tError")

	for _, e := range entries {
		rate := "-"
		if e.Rate.Valid {
			rate = e.Rate.Decimal.StringFixed(6)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339),
			shortID(e.AlertID),
			e.Pair(),
			rate,
			e.Mode,
			e.Threshold.String(),
			e.Triggered,
			sanitizeInline(e.Error),
		)
	}

	return writer.Flush()
}

func filterEntries(entries []history.Entry, alertID string) []history.Entry {
	if alertID == "" {
		return entries
	}
	out := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
