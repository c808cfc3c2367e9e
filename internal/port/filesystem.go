package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// LocalFile is the on-disk state of a planned file
type LocalFile struct {
	Exists bool
	Size   uint64
}

// FileSystem defines local storage operations for a download directory
type FileSystem interface {
	// LocalPath maps a repository-relative path under dir
	// Returns domain.ErrInvalidInput for paths escaping dir
	LocalPath(dir, relPath string) (string, error)

	// Stat returns whether a file exists and its size
	Stat(localPath string) (LocalFile, error)

	// TempPath returns the partial-download path for a destination
	TempPath(localPath string) string

	// PartialSize returns the size of an existing partial download, or 0
	PartialSize(localPath string) uint64

	// WriteFile streams reader into the destination through its temp path.
	// With resume, the temp file is appended to instead of truncated.
	// Returns total bytes in the finished file.
	WriteFile(localPath string, reader io.Reader, resume bool) (uint64, error)

	// DiscardPartial removes the temp file of a destination
	DiscardPartial(localPath string) error

	// RemoveAll deletes a directory tree
	RemoveAll(dir string) error

	// CheckWritable verifies files can be created in dir
	CheckWritable(dir string) error

	// GetDiskUsage returns disk usage statistics for the volume holding path
	GetDiskUsage(path string) (*DiskUsage, error)

	// CleanOldTempFiles removes temp files under dir older than the duration
	// Returns the number of files deleted
	CleanOldTempFiles(dir string, olderThan time.Duration) (int, error)
}
