package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/liteflow/internal/db"
)

func newDBCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBMigrateCmd(configPath))
	return cmd
}

func newDBMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the liteflow tables",
		Long:  "Connects to the configured database and migrates the config, pipeline and run config tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, *configPath)
		},
	}
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gdb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}
