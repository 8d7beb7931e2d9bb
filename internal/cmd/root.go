// Package cmd assembles the rolloutd command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/f4biogr/rollout/internal/config"
)

// NewRootCmd builds the rolloutd root command with every subcommand
// attached.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rolloutd",
		Short: "Rolling release orchestrator for supervised worker fleets",
		Long: `rolloutd drives package releases across fleets of hosts: stop the
workers, back up the previous version, install, reload supervision, start,
and probe every worker. A release commits only when the whole fleet is
healthy; otherwise every touched host is rolled back.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "path to the configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newReleaseCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newFleetCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
