package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "freshcart",
	Short: "Grocery ordering and delivery backend",
	Long:  `Freshcart runs the grocery ordering API, the background worker and the delivery-client tooling.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
