package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateAlertID string
	simulateRate    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send the notification an alert would produce at a given rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAlertID == "" {
			return errors.New("--alert must be provided")
		}
		rate, err := decimal.NewFromString(simulateRate)
		if err != nil || !rate.IsPositive() {
			return errors.New("--rate must be a number greater than 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateAlertID, rate)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAlertID, "alert", "", "Alert id to simulate")
	simulateCmd.Flags().StringVar(&simulateRate, "rate", "", "Rate to report in the notification")
}
