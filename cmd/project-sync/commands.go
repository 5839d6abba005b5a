package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alexjbarnes/project-sync/internal/projects"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync [tenant]",
		Short: "Run one reconciliation pass and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args, true)
			if err != nil {
				return err
			}

			return a.withSession(cmd.Context(), func(ctx context.Context, e *engine) error {
				if dryRun {
					plan, err := e.syncer.Plan(ctx)
					if err != nil {
						return err
					}

					printPlan(cmd, plan)

					return nil
				}

				_, err := e.syncer.Run(ctx)

				return err
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without transferring anything")

	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [tenant]",
		Short: "Reconcile, then push local changes as they happen",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args, true)
			if err != nil {
				return err
			}

			return a.withSession(cmd.Context(), func(ctx context.Context, e *engine) error {
				w := projects.NewWatcher(a.project, e.exec, a.filter, a.logger, projects.WatchOptions{
					Debounce:  a.cfg.WatchDebounce,
					QueueSize: a.cfg.WatchQueueSize,
				})

				// Register before the initial pass so edits made while it
				// runs are still reported.
				if err := w.Start(); err != nil {
					return err
				}
				defer w.Close()

				if _, err := e.syncer.Run(ctx); err != nil {
					return err
				}

				return w.Watch(ctx)
			})
		},
	}
}

func newCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "command <command line>",
		Short: "Run a command in the tenant's remote project",
		Long: "Runs a command in the tenant's remote project and prints its output.\n" +
			"Commands containing \"make\" may generate files; those missing locally are downloaded afterwards.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, nil, false)
			if err != nil {
				return err
			}

			line := strings.Join(args, " ")

			return a.withSession(cmd.Context(), func(ctx context.Context, e *engine) error {
				out, err := e.client.RunCommand(ctx, a.project.Tenant(), line)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), out)

				if !generatesFiles(line) {
					return nil
				}

				n, err := e.syncer.PullMissing(ctx)
				if err != nil {
					return err
				}

				a.logger.Info("pulled generated files", slog.Int("count", n))

				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [tenant]",
		Short: "Show the last recorded transfer for each path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args, true)
			if err != nil {
				return err
			}

			entries, err := a.state.Ledger(a.project.Tenant())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no transfers recorded")
				return nil
			}

			for _, e := range entries {
				line := fmt.Sprintf("%s  %-8s %-17s %s", time.Unix(e.SyncedAt, 0).Format(time.RFC3339), e.Direction, e.ActionType, e.Path)
				if e.Conflict {
					line += "  (backup: " + e.BackupPath + ")"
				}

				fmt.Fprintln(out, line)
			}

			return nil
		},
	}
}

// generatesFiles reports whether a remote command may create files that
// should be pulled afterwards.
func generatesFiles(line string) bool {
	return strings.Contains(line, "make")
}

func printPlan(cmd *cobra.Command, plan *projects.Plan) {
	out := cmd.OutOrStdout()

	pending := plan.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(out, "up to date")
		return
	}

	for _, a := range pending {
		switch a.Kind {
		case projects.ActionUpload:
			fmt.Fprintf(out, "upload (%s)  %s\n", a.UploadType, a.Path)
		case projects.ActionConflictDownload:
			fmt.Fprintf(out, "conflict     %s  (local copy kept as %s)\n", a.Path, a.BackupPath)
		default:
			fmt.Fprintf(out, "%-12s %s\n", a.Kind, a.Path)
		}
	}
}
