package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

// TempSuffix marks a partial download next to its destination
const TempSuffix = ".part"

// Manager handles local filesystem operations
type Manager struct {
	bufferSize int
}

// Ensure Manager implements port.FileSystem and port.SpaceProbe
var (
	_ port.FileSystem = (*Manager)(nil)
	_ port.SpaceProbe = (*Manager)(nil)
)

// NewManager creates a new filesystem manager
func NewManager() *Manager {
	return NewManagerWithBufferSize(8 * 1024 * 1024) // 8MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = 8 * 1024 * 1024
	}
	return &Manager{bufferSize: bufferSize}
}

// LocalPath maps a repository-relative path under dir
func (m *Manager) LocalPath(dir, relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if relPath == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: unsafe path %q", domain.ErrInvalidInput, relPath)
	}
	return filepath.Join(dir, clean), nil
}

// Stat returns whether a file exists and its size
func (m *Manager) Stat(localPath string) (port.LocalFile, error) {
	info, err := os.Stat(localPath)
	if os.IsNotExist(err) {
		return port.LocalFile{}, nil
	}
	if err != nil {
		return port.LocalFile{}, err
	}
	if info.IsDir() {
		return port.LocalFile{}, fmt.Errorf("%s is a directory", localPath)
	}
	return port.LocalFile{Exists: true, Size: uint64(info.Size())}, nil
}

// TempPath returns the partial-download path for a destination
func (m *Manager) TempPath(localPath string) string {
	return localPath + TempSuffix
}

// PartialSize returns the size of an existing partial download, or 0
func (m *Manager) PartialSize(localPath string) uint64 {
	info, err := os.Stat(m.TempPath(localPath))
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}

// WriteFile streams reader into the destination through its temp path
func (m *Manager) WriteFile(localPath string, reader io.Reader, resume bool) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	tempPath := m.TempPath(localPath)

	var f *os.File
	var existingSize int64
	var err error

	if resume {
		if info, statErr := os.Stat(tempPath); statErr == nil {
			existingSize = info.Size()
		}
		f, err = os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	} else {
		f, err = os.Create(tempPath)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open temp file: %w", err)
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return uint64(existingSize + written), nil
}

// DiscardPartial removes the temp file of a destination
func (m *Manager) DiscardPartial(localPath string) error {
	if err := os.Remove(m.TempPath(localPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// RemoveAll deletes a directory tree
func (m *Manager) RemoveAll(dir string) error {
	if dir == "" || filepath.Clean(dir) == string(filepath.Separator) {
		return fmt.Errorf("%w: refusing to remove %q", domain.ErrInvalidInput, dir)
	}
	return os.RemoveAll(dir)
}

// CheckWritable verifies files can be created in dir
func (m *Manager) CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(dir string, olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, TempSuffix) && info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
