// Package manifestfile lists repository files from a local YAML or JSON
// manifest instead of the hub API. Entries may omit their size.
package manifestfile

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

// Manifest is the on-disk document
type Manifest struct {
	Repo  string `yaml:"repo,omitempty"`
	Files []File `yaml:"files"`
}

// File is one manifest line; Size accepts integers or strings like "5 GB"
type File struct {
	Path string `yaml:"path"`
	Size string `yaml:"size,omitempty"`
}

// Lister reads a manifest file on every call
type Lister struct {
	path string
}

var _ port.Lister = (*Lister)(nil)

// New creates a lister for the manifest at path
func New(path string) *Lister {
	return &Lister{path: path}
}

// ListFiles parses the manifest and returns its entries in file order
func (l *Lister) ListFiles(_ context.Context, repo domain.RepoRef) ([]domain.ManifestEntry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	if m.Repo != "" && repo.ID != "" && m.Repo != repo.ID {
		return nil, fmt.Errorf("%w: manifest is for %s, not %s", port.ErrNotFound, m.Repo, repo.ID)
	}

	return m.Entries()
}

// Parse decodes a YAML (or JSON) manifest document
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Entries converts manifest lines into manifest entries
func (m *Manifest) Entries() ([]domain.ManifestEntry, error) {
	entries := make([]domain.ManifestEntry, 0, len(m.Files))
	for i, f := range m.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("%w: file %d has no path", domain.ErrInvalidInput, i)
		}
		entry := domain.ManifestEntry{Path: f.Path}
		if f.Size == "" {
			entry.SizeUnknown = true
		} else {
			size, err := parseSize(f.Size)
			if err != nil {
				return nil, fmt.Errorf("%w: file %s: %v", domain.ErrInvalidInput, f.Path, err)
			}
			entry.ExpectedSize = size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseSize(s string) (uint64, error) {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	return humanize.ParseBytes(s)
}

// Write stores entries as a manifest document
func Write(path, repo string, entries []domain.ManifestEntry) error {
	m := Manifest{Repo: repo, Files: make([]File, 0, len(entries))}
	for _, e := range entries {
		f := File{Path: e.Path}
		if !e.SizeUnknown {
			f.Size = strconv.FormatUint(e.ExpectedSize, 10)
		}
		m.Files = append(m.Files, f)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
