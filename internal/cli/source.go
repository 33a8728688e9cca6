package cli

import (
	"github.com/spf13/cobra"
)

var (
	sourceTestBase   string
	sourceTestTarget string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Configure where rates are fetched from",
}

var sourceSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Save the rate source used by every check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetSource(cmd.Context(), args[0])
	},
}

var sourceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active rate source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowSource(cmd.Context())
	},
}

var sourceTestCmd = &cobra.Command{
	Use:   "test [url]",
	Short: "Fetch one rate without saving anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := ""
		if len(args) == 1 {
			raw = args[0]
		}
		return getApp().TestSource(cmd.Context(), raw, sourceTestBase, sourceTestTarget)
	},
}

var sourcePresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPresets()
	},
}

func init() {
	sourceTestCmd.Flags().StringVar(&sourceTestBase, "base", "EUR", "Base currency")
	sourceTestCmd.Flags().StringVar(&sourceTestTarget, "target", "USD", "Target currency")

	sourceCmd.AddCommand(sourceSetCmd, sourceShowCmd, sourceTestCmd, sourcePresetsCmd)
}
