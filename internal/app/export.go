package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ratewatch/internal/history"
)

// ExportHistory renders the history log as CSV and/or a PNG chart.
func (a *App) ExportHistory(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	return a.withRuntime(ctx, func(rt *runtime) error {
		entries := chronological(filterEntries(rt.engine.History(), opts.AlertID))
		if len(entries) == 0 {
			a.Logger.Info().Msg("no history entries to export")
			return nil
		}

		downsampled := downsampleEntries(entries, opts.MaxPoints)
		a.Logger.Info().Int("total", len(entries)).Int("exported", len(downsampled)).Msg("exporting history")

		if opts.CSVPath != "" {
			if err := writeEntriesCSV(opts.CSVPath, downsampled); err != nil {
				return err
			}
		}

		if opts.PNGPath != "" {
			if err := writeEntriesPNG(opts.PNGPath, downsampled); err != nil {
				return err
			}
		}

		return nil
	})
}

func chronological(entries []history.Entry) []history.Entry {
	out := make([]history.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

func downsampleEntries(entries []history.Entry, max int) []history.Entry {
	if max <= 1 || len(entries) <= max {
		return entries
	}

	result := make([]history.Entry, 0, max)
	step := float64(len(entries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		result = append(result, entries[idx])
	}
	return result
}

func writeEntriesCSV(path string, entries []history.Entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "alert_id", "base", "target", "rate", "threshold", "mode", "triggered", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		rate := ""
		if e.Rate.Valid {
			rate = e.Rate.Decimal.String()
		}
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.AlertID,
			e.Base,
			e.Target,
			rate,
			e.Threshold.String(),
			string(e.Mode),
			strconv.FormatBool(e.Triggered),
			e.Error,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

type plotSeries struct {
	label     string
	threshold float64
	x         []time.Time
	y         []float64
}

// writeEntriesPNG draws one rate line per alert plus its threshold. Failed
// checks leave gaps; alerts with fewer than two rates are not plotted.
func writeEntriesPNG(path string, entries []history.Entry) error {
	order := make([]string, 0)
	byAlert := make(map[string]*plotSeries)
	for _, e := range entries {
		if !e.Rate.Valid {
			continue
		}
		s, ok := byAlert[e.AlertID]
		if !ok {
			s = &plotSeries{
				label:     e.Pair() + " " + shortID(e.AlertID),
				threshold: e.Threshold.InexactFloat64(),
			}
			byAlert[e.AlertID] = s
			order = append(order, e.AlertID)
		}
		s.x = append(s.x, e.Timestamp)
		s.y = append(s.y, e.Rate.Decimal.InexactFloat64())
	}

	var series []chart.Series
	for _, id := range order {
		s := byAlert[id]
		if len(s.x) < 2 {
			continue
		}
		limit := make([]float64, len(s.x))
		for i := range limit {
			limit[i] = s.threshold
		}
		series = append(series,
			chart.TimeSeries{
				Name:    s.label,
				XValues: s.x,
				YValues: s.y,
			},
			chart.TimeSeries{
				Name:    s.label + " threshold",
				XValues: s.x,
				YValues: limit,
				Style: chart.Style{
					StrokeDashArray: []float64{5, 5},
				},
			},
		)
	}
	if len(series) == 0 {
		return errors.New("not enough successful checks to plot")
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate",
			ValueFormatter: rateFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
