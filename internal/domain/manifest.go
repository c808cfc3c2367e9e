package domain

import "strings"

// RepoType distinguishes Hugging Face model and dataset repositories.
type RepoType string

const (
	RepoTypeModel   RepoType = "model"
	RepoTypeDataset RepoType = "dataset"
)

// RepoRef identifies a remote repository snapshot.
type RepoRef struct {
	ID       string   `json:"id"`
	Type     RepoType `json:"type"`
	Revision string   `json:"revision,omitempty"`
}

// String returns "dataset:owner/name@rev" style identifiers for logs
func (r RepoRef) String() string {
	var b strings.Builder
	if r.Type == RepoTypeDataset {
		b.WriteString("dataset:")
	}
	b.WriteString(r.ID)
	if r.Revision != "" && r.Revision != "main" {
		b.WriteString("@")
		b.WriteString(r.Revision)
	}
	return b.String()
}

// Validate checks the reference is usable
func (r RepoRef) Validate() error {
	parts := strings.Split(r.ID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ErrInvalidInput
	}
	switch r.Type {
	case RepoTypeModel, RepoTypeDataset:
		return nil
	default:
		return ErrInvalidInput
	}
}

// ManifestEntry is a remote file and its advertised size.
// SizeUnknown entries carry ExpectedSize 0.
type ManifestEntry struct {
	Path         string `json:"path"`
	ExpectedSize uint64 `json:"expected_size"`
	SizeUnknown  bool   `json:"size_unknown,omitempty"`
}

// ManifestBytes returns the total advertised size of the entries
func ManifestBytes(entries []ManifestEntry) uint64 {
	var total uint64
	for _, e := range entries {
		total += e.ExpectedSize
	}
	return total
}
