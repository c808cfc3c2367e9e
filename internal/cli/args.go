package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// repoFlags are shared by commands that take a repository argument
type repoFlags struct {
	dataset  bool
	revision string
	manifest string
}

func (f *repoFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dataset, "dataset", false, "Treat the repository as a dataset")
	cmd.Flags().StringVarP(&f.revision, "revision", "b", "main", "Revision/branch to download")
	cmd.Flags().StringVar(&f.manifest, "manifest", "", "Read the file list from a YAML manifest instead of the hub")
}

func (f *repoFlags) ref(arg string) (domain.RepoRef, error) {
	return parseRepo(arg, f.dataset, f.revision)
}

// parseRepo accepts "owner/name", "owner/name@rev" and "datasets/owner/name"
func parseRepo(arg string, dataset bool, revision string) (domain.RepoRef, error) {
	ref := domain.RepoRef{ID: strings.TrimSpace(arg), Type: domain.RepoTypeModel, Revision: revision}
	if dataset {
		ref.Type = domain.RepoTypeDataset
	}
	if rest, ok := strings.CutPrefix(ref.ID, "datasets/"); ok {
		ref.ID = rest
		ref.Type = domain.RepoTypeDataset
	}
	if id, rev, ok := strings.Cut(ref.ID, "@"); ok {
		ref.ID = id
		ref.Revision = rev
	}
	if ref.Revision == "" {
		ref.Revision = "main"
	}
	if err := ref.Validate(); err != nil {
		return ref, fmt.Errorf("invalid repository %q, expected owner/name: %w", arg, err)
	}
	return ref, nil
}

// parseCapacity reads sizes such as "500GB", "1.5TiB" or a plain byte count
func parseCapacity(s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("--capacity is required")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid capacity %q: %w", s, err)
	}
	if n == 0 {
		return 0, domain.NewPlanningError(domain.PlanningInvalidCapacity, "capacity must be positive")
	}
	return n, nil
}

// parseBatchNumber reads a one-based batch number
func parseBatchNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: batch number must be a positive integer, got %q", domain.ErrInvalidInput, s)
	}
	return n, nil
}
