package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Config   string
	LogLevel string
	LogFile  string
	JSONOut  bool
	Quiet    bool
}

// NewRootCmd builds the command tree. Split from Execute so tests can run
// commands against their own output buffers.
func NewRootCmd(version string) *cobra.Command {
	ro := &RootOpts{}

	root := &cobra.Command{
		Use:   "batchfetch",
		Short: "Download Hugging Face repositories larger than the local disk, batch by batch",
		Long: `batchfetch splits a repository into batches that fit the available disk,
downloads one batch at a time and pauses so finished files can be moved to
other media. A ledger records every completed file, so files moved away are
never fetched again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (YAML); defaults to ./batchfetch.yaml if present")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Also write logs to this file, rotated by size")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON instead of tables")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Hide the progress bar")

	root.AddCommand(
		newPlanBatchCmd(ro),
		newBatchDownloadCmd(ro),
		newBatchContinueCmd(ro),
		newBatchStatusCmd(ro),
		newResumeCmd(ro),
		newDownloadCmd(ro),
		newReplanCmd(ro),
		newCancelCmd(ro),
		newListCmd(ro),
		newDeleteTaskCmd(ro),
		newCleanupCmd(ro),
		newVerifyCmd(ro),
		newAnalyzeCmd(ro),
		newCheckSystemCmd(ro),
		newConfigCmd(ro),
		newServeCmd(ro),
	)
	return root
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return NewRootCmd(version).ExecuteContext(ctx)
}
