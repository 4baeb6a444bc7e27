// Package scanner walks a local directory tree and streams the files
// eligible for corpus ingestion. It skips well-known junk directories,
// sensitive files, and binaries, and honors .gitignore rules including
// nested ignore files.
package scanner

import "time"

// FileInfo describes a file discovered during a scan.
type FileInfo struct {
	Path    string    // Relative to the scan root, forward slashes
	AbsPath string    // Absolute path on disk
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// RootDir is the directory to walk.
	RootDir string

	// ExcludePatterns lists additional gitignore-style patterns to skip.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing, including nested files.
	RespectGitignore bool

	// FollowSymlinks resolves symbolic links instead of skipping them.
	FollowSymlinks bool

	// MaxFileSize is the maximum file size in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// Workers sizes the result channel buffer (0 = NumCPU).
	Workers int
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024
