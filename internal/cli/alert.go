package cli

import (
	"github.com/spf13/cobra"

	"ratewatch/internal/alerts"
	"ratewatch/internal/app"
)

var alertInput app.AlertInput

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage rate alerts",
}

var alertAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Create an alert",
	Example: "  ratewatch alert add --base EUR --target USD --threshold 1.10 --mode above",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AddAlert(cmd.Context(), alertInput)
	},
}

var alertListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context())
	},
}

var alertRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an alert",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveAlert(cmd.Context(), args[0])
	},
}

var alertToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ToggleAlert(cmd.Context(), args[0])
	},
}

func init() {
	flags := alertAddCmd.Flags()
	flags.StringVar(&alertInput.Base, "base", "", "Base currency code, e.g. EUR")
	flags.StringVar(&alertInput.Target, "target", "", "Target currency code, e.g. USD")
	flags.StringVar(&alertInput.Threshold, "threshold", "", "Rate threshold")
	flags.StringVar(&alertInput.Mode, "mode", string(alerts.ModeAbove), "Trigger when the rate is above or below the threshold")
	flags.DurationVar(&alertInput.Frequency, "frequency", alerts.DefaultFrequency, "Check frequency (minimum 1m)")
	_ = alertAddCmd.MarkFlagRequired("base")
	_ = alertAddCmd.MarkFlagRequired("target")
	_ = alertAddCmd.MarkFlagRequired("threshold")

	alertCmd.AddCommand(alertAddCmd, alertListCmd, alertRemoveCmd, alertToggleCmd)
}
