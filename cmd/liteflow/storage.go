package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/liteflow/internal/storage"
)

func newStorageCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Storage backend commands",
	}
	cmd.AddCommand(newStorageCheckCmd(configPath))
	return cmd
}

func newStorageCheckCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the storage declarations and list each backend root",
		Long: `Loads the storage backend declarations (or the local defaults when no file
exists), builds every backend and lists its root. Fails if any backend cannot
be listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorageCheck(cmd, *configPath, timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-backend listing timeout")
	return cmd
}

func runStorageCheck(cmd *cobra.Command, configPath string, timeout time.Duration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	decls, err := loadDeclarations(cfg)
	if err != nil {
		return err
	}
	mgr, err := storage.NewManager(decls, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tENTRIES\tSTATUS")
	failed := 0
	for _, b := range mgr.Backends() {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		entries, err := b.List(ctx, "")
		cancel()
		status, count := "ok", fmt.Sprint(len(entries))
		if err != nil {
			failed++
			status, count = err.Error(), "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Name(), b.Kind(), count, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d storage backends failed", failed, len(mgr.Backends()))
	}
	return nil
}
