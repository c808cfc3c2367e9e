package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/service/manager"
	"github.com/vertextoedge/batchfetch/internal/service/tracker"
)

// withApp opens the app for one command run
func withApp(cmd *cobra.Command, ro *RootOpts, manifest string, fn func(a *app, p *printer) error) error {
	a, err := newApp(ro, manifest)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, newPrinter(cmd.OutOrStdout(), ro.JSONOut))
}

// withProgress shows a progress bar on stderr while batches run
func withProgress(cmd *cobra.Command, ro *RootOpts, a *app) func() {
	if ro.Quiet || ro.JSONOut {
		return func() {}
	}
	h := newProgressHandler(cmd.ErrOrStderr())
	a.events.Subscribe(h)
	return func() { a.events.Unsubscribe(h) }
}

// reportTask prints the task state even when the run stopped with an error,
// so the operator sees what to do next
func reportTask(p *printer, task *domain.Task, err error) error {
	if task != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		if perr := p.Task(task); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func newPlanBatchCmd(ro *RootOpts) *cobra.Command {
	var (
		rf       repoFlags
		capacity string
		margin   float64
	)

	cmd := &cobra.Command{
		Use:   "plan-batch REPO",
		Short: "Show how a repository would be split into batches, without downloading",
		Example: `  batchfetch plan-batch meta-llama/Llama-3.1-405B --capacity 2TB
  batchfetch plan-batch datasets/HuggingFaceFW/fineweb --capacity 500GiB --safety-margin 0.8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := rf.ref(args[0])
			if err != nil {
				return err
			}
			capBytes, err := parseCapacity(capacity)
			if err != nil {
				return err
			}
			return withApp(cmd, ro, rf.manifest, func(a *app, p *printer) error {
				plan, _, err := a.manager.PlanBatch(cmd.Context(), repo, capBytes, margin)
				if err != nil {
					return err
				}
				return p.Plan(repo, plan)
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVarP(&capacity, "capacity", "c", "", "Disk capacity per batch (e.g. 500GB, 1.8TiB)")
	cmd.Flags().Float64Var(&margin, "safety-margin", 0, "Usable fraction of capacity (default from config)")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}

func newBatchDownloadCmd(ro *RootOpts) *cobra.Command {
	var (
		rf       repoFlags
		capacity string
		margin   float64
		localDir string
		auto     bool
	)

	cmd := &cobra.Command{
		Use:   "batch-download REPO",
		Short: "Create a batch download task and run its first batch",
		Long: `Creates a task, stores its batch plan and downloads batch 1. The task then
pauses so the finished files can be moved off the disk; run batch-continue
for the next batch. With --auto every batch runs without pausing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := rf.ref(args[0])
			if err != nil {
				return err
			}
			capBytes, err := parseCapacity(capacity)
			if err != nil {
				return err
			}
			return withApp(cmd, ro, rf.manifest, func(a *app, p *printer) error {
				defer withProgress(cmd, ro, a)()
				task, err := a.manager.StartBatchDownload(cmd.Context(), manager.StartRequest{
					Repo:         repo,
					Capacity:     capBytes,
					SafetyMargin: margin,
					LocalDir:     localDir,
					AutoProceed:  auto,
				})
				return reportTask(p, task, err)
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVarP(&capacity, "capacity", "c", "", "Disk capacity per batch (e.g. 500GB, 1.8TiB)")
	cmd.Flags().Float64Var(&margin, "safety-margin", 0, "Usable fraction of capacity (default from config)")
	cmd.Flags().StringVarP(&localDir, "output", "o", "", "Download directory (default <root_dir>/<owner>_<name>)")
	cmd.Flags().BoolVar(&auto, "auto", false, "Run every batch without pausing for rotation")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}

func newBatchContinueCmd(ro *RootOpts) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "batch-continue TASK_ID BATCH",
		Short: "Run the next batch of a task after rotating the previous one off disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseBatchNumber(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				defer withProgress(cmd, ro, a)()
				task, err := a.manager.ContinueBatch(cmd.Context(), args[0], number, force)
				return reportTask(p, task, err)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Continue even if the task is not paused")
	return cmd
}

func newBatchStatusCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "batch-status TASK_ID",
		Short: "Show a task with its per-batch progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				report, err := a.manager.Status(args[0])
				if err != nil {
					return err
				}
				return p.Status(report)
			})
		},
	}
}

func newResumeCmd(ro *RootOpts) *cobra.Command {
	var moved string

	cmd := &cobra.Command{
		Use:   "resume TASK_ID",
		Short: "Re-run the current batch of an interrupted or failed task",
		Long: `Re-runs the current batch. Completed files missing from disk are presumed
moved during rotation and skipped; --moved-files redownload fetches them again
for operators who know they were deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := tracker.ParsePolicy(moved)
			if err != nil {
				return err
			}
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				defer withProgress(cmd, ro, a)()
				task, err := a.manager.Resume(cmd.Context(), args[0], policy)
				return reportTask(p, task, err)
			})
		},
	}

	cmd.Flags().StringVar(&moved, "moved-files", string(tracker.PolicySkipMoved), "Completed files missing from disk: skip|redownload")
	return cmd
}

func newDownloadCmd(ro *RootOpts) *cobra.Command {
	var (
		rf       repoFlags
		localDir string
	)

	cmd := &cobra.Command{
		Use:   "download REPO",
		Short: "Download a repository in one go, sized to the current free space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := rf.ref(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, ro, rf.manifest, func(a *app, p *printer) error {
				defer withProgress(cmd, ro, a)()
				task, err := a.manager.Download(cmd.Context(), repo, localDir)
				return reportTask(p, task, err)
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVarP(&localDir, "output", "o", "", "Download directory (default <root_dir>/<owner>_<name>)")
	return cmd
}

func newReplanCmd(ro *RootOpts) *cobra.Command {
	var (
		capacity string
		margin   float64
	)

	cmd := &cobra.Command{
		Use:   "replan TASK_ID",
		Short: "Split the files a task has not completed into new batches",
		Long: `Creates a new plan version over the files that are not completed yet, for
example after switching to a disk of different size. The task pauses and any
batch of the new plan may be continued next.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capBytes, err := parseCapacity(capacity)
			if err != nil {
				return err
			}
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				task, err := a.manager.Replan(cmd.Context(), args[0], capBytes, margin)
				if err != nil {
					return reportTask(p, task, err)
				}
				return p.Plan(task.Repo, task.Plan)
			})
		},
	}

	cmd.Flags().StringVarP(&capacity, "capacity", "c", "", "Disk capacity per batch (e.g. 500GB, 1.8TiB)")
	cmd.Flags().Float64Var(&margin, "safety-margin", 0, "Usable fraction of capacity (default from config)")
	_ = cmd.MarkFlagRequired("capacity")
	return cmd
}
