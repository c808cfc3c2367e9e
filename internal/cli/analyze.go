package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/batchfetch/internal/adapter/manifestfile"
	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/service/planner"
)

func newAnalyzeCmd(ro *RootOpts) *cobra.Command {
	var (
		rf       repoFlags
		capacity string
		margin   float64
		top      int
		save     string
	)

	cmd := &cobra.Command{
		Use:   "analyze REPO",
		Short: "Show manifest statistics and, with --capacity, a batch preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := rf.ref(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				var lister port.Lister = a.hub
				if rf.manifest != "" {
					lister = manifestfile.New(rf.manifest)
				}
				manifest, err := lister.ListFiles(cmd.Context(), repo)
				if err != nil {
					return fmt.Errorf("list %s: %w", repo, err)
				}

				if save != "" {
					if err := manifestfile.Write(save, repo.ID, manifest); err != nil {
						return err
					}
				}

				stats := planner.Summarize(manifest, top)
				var plan *domain.BatchPlan
				if capacity != "" {
					capBytes, err := parseCapacity(capacity)
					if err != nil {
						return err
					}
					if margin == 0 {
						margin = a.cfg.Download.SafetyMargin
					}
					if plan, err = planner.Plan("", manifest, capBytes, margin); err != nil {
						return err
					}
				}

				if p.json {
					return p.JSON(map[string]any{"stats": stats, "plan": plan})
				}
				p.Analysis(repo, stats)
				if plan != nil {
					return p.Plan(repo, plan)
				}
				return nil
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVarP(&capacity, "capacity", "c", "", "Also preview batches for this capacity")
	cmd.Flags().Float64Var(&margin, "safety-margin", 0, "Usable fraction of capacity (default from config)")
	cmd.Flags().IntVar(&top, "top", 10, "Number of largest files to show")
	cmd.Flags().StringVar(&save, "save-manifest", "", "Write the file list to a YAML manifest for offline planning")
	return cmd
}

func newCheckSystemCmd(ro *RootOpts) *cobra.Command {
	var (
		dir     string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "check-system",
		Short: "Check free space, write access, hub connectivity and the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, ro, "", func(a *app, p *printer) error {
				var hub port.Pinger = a.hub
				if offline {
					hub = nil
				}
				results, err := a.manager.CheckSystem(cmd.Context(), dir, hub)
				if err != nil {
					return err
				}
				if err := p.Checks(results); err != nil {
					return err
				}
				for _, r := range results {
					if !r.OK {
						return fmt.Errorf("check %s failed: %s", r.Name, r.Detail)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "output", "o", "", "Directory to check (default download root)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the hub connectivity check")
	return cmd
}
