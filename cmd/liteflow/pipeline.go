package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/liteflow/internal/db"
	"github.com/zulandar/liteflow/internal/models"
	"github.com/zulandar/liteflow/internal/pipeline"
)

func newPipelineCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage imported pipelines",
	}
	cmd.AddCommand(newPipelineListCmd(configPath))
	cmd.AddCommand(newPipelineImportCmd(configPath))
	cmd.AddCommand(newPipelinePinCmd(configPath))
	cmd.AddCommand(newPipelineRemoveCmd(configPath))
	return cmd
}

// withRegistry opens the database and an uncached remote client for the
// duration of fn. The shared cache file stays with serve, which holds its
// lock while running.
func withRegistry(configPath string, fn func(*pipeline.Registry) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gdb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)
	client, err := newRemote(cfg, nil)
	if err != nil {
		return err
	}
	return fn(pipeline.NewRegistry(gdb, pipeline.RemoteSource{Client: client}))
}

func parseRepoArg(arg string) (string, string, error) {
	org, project, err := pipeline.ParseRepository(arg)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository %q: use organization/pipeline_name", arg)
	}
	return org, project, nil
}

func newPipelineListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(*configPath, func(r *pipeline.Registry) error {
				list, err := r.All()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No pipelines imported.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPIPELINE\tREF\tTYPE\tIMPORTED")
				for _, p := range list {
					ref := p.Ref
					if ref == "" {
						ref = "-"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.FullName(), ref, p.RefType, p.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}
}

func newPipelineImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <organization/pipeline_name>",
		Short: "Import a pipeline from GitHub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, project, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			return withRegistry(*configPath, func(r *pipeline.Registry) error {
				p, err := r.Import(context.Background(), org, project)
				if errors.Is(err, pipeline.ErrAlreadyImported) {
					fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s already imported.\n", p.FullName())
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s.\n", p.FullName())
				return nil
			})
		},
	}
}

func newPipelinePinCmd(configPath *string) *cobra.Command {
	var refType string

	cmd := &cobra.Command{
		Use:   "pin <organization/pipeline_name> <ref>",
		Short: "Set the default ref shown for a pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, project, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			return withRegistry(*configPath, func(r *pipeline.Registry) error {
				p, err := r.Pin(context.Background(), org, project, args[1], refType)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s to %s %s.\n", p.FullName(), p.RefType, p.Ref)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&refType, "type", "t", models.RefTypeBranch, "ref type: branch, tag or commit")
	return cmd
}

func newPipelineRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <organization/pipeline_name>",
		Short: "Remove an imported pipeline that no run config uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, project, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			return withRegistry(*configPath, func(r *pipeline.Registry) error {
				if err := r.Remove(org, project); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s/%s.\n", org, project)
				return nil
			})
		},
	}
}

