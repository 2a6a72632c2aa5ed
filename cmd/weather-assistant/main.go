package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "weather-assistant",
		Short: "Weather, geocoding and AI chat aggregator behind a REST API",
		// serve is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
