package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ratewatch/internal/app"
)

var (
	showOpts   app.ShowOptions
	exportOpts app.ExportOptions
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded alert checks",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent checks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showOpts.Limit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().ShowHistory(cmd.Context(), showOpts)
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export checks as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ExportHistory(cmd.Context(), exportOpts)
	},
}

func init() {
	historyShowCmd.Flags().IntVar(&showOpts.Limit, "limit", 20, "Number of entries to display")
	historyShowCmd.Flags().StringVar(&showOpts.AlertID, "alert", "", "Only show entries for this alert id")

	historyExportCmd.Flags().StringVar(&exportOpts.PNGPath, "png", "", "Path to write PNG chart")
	historyExportCmd.Flags().StringVar(&exportOpts.CSVPath, "csv", "", "Path to write CSV data")
	historyExportCmd.Flags().StringVar(&exportOpts.AlertID, "alert", "", "Only export entries for this alert id")
	historyExportCmd.Flags().IntVar(&exportOpts.MaxPoints, "max-points", 0, "Maximum entries to export (0 exports all)")

	historyCmd.AddCommand(historyShowCmd, historyExportCmd)
}
