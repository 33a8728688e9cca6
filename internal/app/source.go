package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"ratewatch/internal/fetcher"
)

// SetSource validates and saves the rate source used by every later check.
func (a *App) SetSource(ctx context.Context, raw string) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		src, err := rt.engine.SetSourceURL(ctx, raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "source set to %s (%s)\n", src.Raw, src.Kind)
		return nil
	})
}

// ShowSource prints the active source.
func (a *App) ShowSource(ctx context.Context) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		src := rt.engine.Source()
		fmt.Fprintf(a.Out, "source: %s\nkind: %s\nendpoint: %s\n", src.Raw, src.Kind, src.Endpoint)
		return nil
	})
}

// TestSource fetches one rate from raw, or from the active source when raw is
// empty, without saving anything.
func (a *App) TestSource(ctx context.Context, raw, base, target string) error {
	return a.withRuntime(ctx, func(rt *runtime) error {
		if raw == "" {
			raw = rt.engine.Source().Raw
		}
		src, rate, err := rt.engine.Probe(ctx, raw, base, target)
		if err != nil {
			return fmt.Errorf("source test failed: %w", err)
		}
		fmt.Fprintf(a.Out, "%s (%s): 1 %s = %s %s\n", src.Raw, src.Kind, base, rate.StringFixed(6), target)
		return nil
	})
}

// ListPresets prints the built-in sources.
func (a *App) ListPresets() error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tURL")
	for _, p := range fetcher.Presets {
		fmt.Fprintf(writer, "%s\t%s\n", p.Name, p.URL)
	}
	return writer.Flush()
}
