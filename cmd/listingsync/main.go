package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "listingsync",
		Short: "Publish rental listings to third-party platforms",
		Long: `listingsync publishes property listings to rental platforms, keeps the
users' platform connections fresh and tracks each listing's status.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file (environment only when empty)")

	rootCmd.AddCommand(
		newServeCommand(),
		newPlatformsCommand(),
		newResyncCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
