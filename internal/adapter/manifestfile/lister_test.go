package manifestfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLister_ListFiles(t *testing.T) {
	path := writeManifest(t, `
repo: org/data
files:
  - path: train/part-0.parquet
    size: 10 GiB
  - path: train/part-1.parquet
    size: 2048
  - path: README.md
`)

	entries, err := New(path).ListFiles(context.Background(), domain.RepoRef{ID: "org/data"})
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	want := []domain.ManifestEntry{
		{Path: "train/part-0.parquet", ExpectedSize: 10 << 30},
		{Path: "train/part-1.parquet", ExpectedSize: 2048},
		{Path: "README.md", SizeUnknown: true},
	}
	if len(entries) != len(want) {
		t.Fatalf("ListFiles() = %+v", entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestLister_JSONAndErrors(t *testing.T) {
	path := writeManifest(t, `{"files":[{"path":"a.bin","size":"3"}]}`)
	entries, err := New(path).ListFiles(context.Background(), domain.RepoRef{ID: "any/repo"})
	if err != nil || len(entries) != 1 || entries[0].ExpectedSize != 3 {
		t.Fatalf("ListFiles(json) = %+v, %v", entries, err)
	}

	wrongRepo := writeManifest(t, "repo: a/b\nfiles: []\n")
	if _, err := New(wrongRepo).ListFiles(context.Background(), domain.RepoRef{ID: "c/d"}); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("repo mismatch error = %v, want ErrNotFound", err)
	}

	badSize := writeManifest(t, "files:\n  - path: x\n    size: lots\n")
	if _, err := New(badSize).ListFiles(context.Background(), domain.RepoRef{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad size error = %v, want ErrInvalidInput", err)
	}

	if _, err := New(filepath.Join(t.TempDir(), "absent.yaml")).ListFiles(context.Background(), domain.RepoRef{}); err == nil {
		t.Error("missing file should fail")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	in := []domain.ManifestEntry{
		{Path: "a.bin", ExpectedSize: 7},
		{Path: "b.txt", SizeUnknown: true},
	}
	if err := Write(path, "org/m", in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out, err := New(path).ListFiles(context.Background(), domain.RepoRef{ID: "org/m"})
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("entry %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}
