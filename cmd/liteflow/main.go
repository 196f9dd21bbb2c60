package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "liteflow",
		Short: "liteflow: a lightweight Nextflow pipeline console",
		Long: `liteflow imports Nextflow pipelines from GitHub, manages named Nextflow
configs and prepares per-run parameter directories from a small web console.

Settings come from an optional YAML file (--config) and LITEFLOW_* environment
variables.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to liteflow config file (optional)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newHashPasswordCmd())
	cmd.AddCommand(newDBCmd(&configPath))
	cmd.AddCommand(newPipelineCmd(&configPath))
	cmd.AddCommand(newCacheCmd(&configPath))
	cmd.AddCommand(newStorageCmd(&configPath))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "liteflow %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
