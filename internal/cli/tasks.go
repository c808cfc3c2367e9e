package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

func newCancelCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Cancel a task; a process running it stops after in-flight files finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				task, err := a.manager.Cancel(args[0])
				return reportTask(p, task, err)
			})
		},
	}
}

func newListCmd(ro *RootOpts) *cobra.Command {
	var status []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(status)
			if err != nil {
				return err
			}
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				tasks, err := a.manager.List(statuses...)
				if err != nil {
					return err
				}
				return p.Tasks(tasks)
			})
		},
	}

	cmd.Flags().StringSliceVar(&status, "status", nil, "Only tasks in these statuses (comma-separated)")
	return cmd
}

func newDeleteTaskCmd(ro *RootOpts) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "delete-task TASK_ID",
		Short: "Delete a task and its ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				if err := a.manager.Delete(args[0], purge); err != nil {
					return err
				}
				if p.json {
					return p.JSON(map[string]any{"deleted": args[0], "purged_files": purge})
				}
				p.Linef("Deleted task %s", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&purge, "purge-files", false, "Also remove the task's download directory")
	return cmd
}

func newCleanupCmd(ro *RootOpts) *cobra.Command {
	var (
		status []string
		purge  bool
	)

	cmd := &cobra.Command{
		Use:     "cleanup",
		Aliases: []string{"clean"},
		Short:   "Delete finished tasks and their ledgers",
		Long: `Delete every completed, failed or cancelled task. --status selects other
statuses instead; running tasks are never deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(status)
			if err != nil {
				return err
			}
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				deleted, err := a.manager.Cleanup(purge, statuses...)
				if p.json {
					if perr := p.JSON(map[string]any{"deleted": deleted, "purged_files": purge}); perr != nil && err == nil {
						err = perr
					}
					return err
				}
				for _, id := range deleted {
					p.Linef("Deleted task %s", id)
				}
				if len(deleted) == 0 && err == nil {
					p.Linef("No tasks to clean up")
				}
				return err
			})
		},
	}

	cmd.Flags().StringSliceVar(&status, "status", nil, "Only tasks in these statuses (comma-separated)")
	cmd.Flags().BoolVar(&purge, "purge-files", false, "Also remove each task's download directory")
	return cmd
}

func newVerifyCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TASK_ID",
		Short: "Compare the ledger with the files on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				report, err := a.manager.Verify(args[0])
				if err != nil {
					return err
				}
				return p.Verify(report)
			})
		},
	}
}

func parseStatuses(in []string) ([]domain.TaskStatus, error) {
	var statuses []domain.TaskStatus
	for _, s := range in {
		ts := domain.TaskStatus(strings.TrimSpace(s))
		if !ts.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, s)
		}
		statuses = append(statuses, ts)
	}
	return statuses, nil
}
