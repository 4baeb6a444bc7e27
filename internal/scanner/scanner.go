package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docweave/docweave/internal/gitignore"
)

const gitignoreCacheSize = 128

// defaultExcludeDirs are never descended into, regardless of options.
var defaultExcludeDirs = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	".next",
	".nuxt",
	"__pycache__",
	"venv",
	".venv",
	".idea",
	".vscode",
	".pytest_cache",
	".mypy_cache",
	".tox",
	".cache",
}

// defaultExcludeFiles are lockfiles, generated bundles, and VCS plumbing
// that carry no documentation value.
var defaultExcludeFiles = []string{
	".DS_Store",
	".gitignore",
	".gitattributes",
	".gitmodules",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"*.min.js",
	"*.min.css",
	"*.map",
	"*.lock",
}

// sensitiveFilePatterns match credential material that must never enter a
// corpus. Matched case-insensitively against the base name.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*.keystore",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
	"*.secret",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
}

// Scanner streams eligible files from a directory tree. It caches parsed
// .gitignore matchers per directory so repeated scans stay cheap.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a Scanner with an empty gitignore cache.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks opts.RootDir and sends every eligible file on the returned
// channel. The channel is closed when the walk finishes or ctx is canceled.
// Errors on individual entries are reported as ScanResult.Error and do not
// stop the scan.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (<-chan ScanResult, error) {
	if opts.RootDir == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root directory: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("reading root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", opts.RootDir)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var extra *gitignore.Matcher
	if len(opts.ExcludePatterns) > 0 {
		extra = gitignore.New()
		for _, p := range opts.ExcludePatterns {
			extra.Add(p)
		}
	}

	results := make(chan ScanResult, workers*10)

	go func() {
		defer close(results)

		walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				if !send(ctx, results, ScanResult{Error: fmt.Errorf("walking %s: %w", path, err)}) {
					return ctx.Err()
				}
				return nil
			}

			rel, err := filepath.Rel(absRoot, path)
			if err != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if excludedDir(d.Name()) {
					return filepath.SkipDir
				}
				if extra != nil && extra.Match(rel, true) {
					return filepath.SkipDir
				}
				if opts.RespectGitignore && s.gitignored(absRoot, rel, true) {
					return filepath.SkipDir
				}
				return nil
			}

			var fi fs.FileInfo
			if d.Type()&fs.ModeSymlink != 0 {
				if !opts.FollowSymlinks {
					return nil
				}
				fi, err = os.Stat(path)
				if err != nil || fi.IsDir() {
					return nil
				}
			} else {
				fi, err = d.Info()
				if err != nil {
					if !send(ctx, results, ScanResult{Error: fmt.Errorf("stat %s: %w", rel, err)}) {
						return ctx.Err()
					}
					return nil
				}
			}

			if fi.Size() > maxSize {
				return nil
			}
			if excludedFile(d.Name()) || sensitiveFile(d.Name()) {
				return nil
			}
			if extra != nil && extra.Match(rel, false) {
				return nil
			}
			if opts.RespectGitignore && s.gitignored(absRoot, rel, false) {
				return nil
			}
			if binary, err := isBinaryFile(path); err != nil || binary {
				return nil
			}

			if !send(ctx, results, ScanResult{File: &FileInfo{
				Path:    rel,
				AbsPath: path,
				Size:    fi.Size(),
				ModTime: fi.ModTime(),
			}}) {
				return ctx.Err()
			}
			return nil
		})

		if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
			send(ctx, results, ScanResult{Error: walkErr})
		}
	}()

	return results, nil
}

func send(ctx context.Context, results chan<- ScanResult, res ScanResult) bool {
	select {
	case results <- res:
		return true
	case <-ctx.Done():
		return false
	}
}

// gitignored checks rel against the root .gitignore and every nested
// .gitignore along its path. Each nested file is matched against the part
// of the path below its own directory.
func (s *Scanner) gitignored(root, rel string, isDir bool) bool {
	if m := s.matcherFor(root); m != nil && m.Match(rel, isDir) {
		return true
	}
	parts := strings.Split(rel, "/")
	dir := root
	for i := 0; i < len(parts)-1; i++ {
		dir = filepath.Join(dir, parts[i])
		sub := strings.Join(parts[i+1:], "/")
		if m := s.matcherFor(dir); m != nil && m.Match(sub, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the parsed .gitignore for dir, or nil if the directory
// has none. Results, including misses, are cached.
func (s *Scanner) matcherFor(dir string) *gitignore.Matcher {
	s.cacheMu.RLock()
	if m, ok := s.gitignoreCache.Get(dir); ok {
		s.cacheMu.RUnlock()
		return m
	}
	s.cacheMu.RUnlock()

	var m *gitignore.Matcher
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		gm := gitignore.New()
		if err := gm.AddFromFile(path, ""); err == nil {
			m = gm
		}
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(dir, m)
	s.cacheMu.Unlock()
	return m
}

func excludedDir(name string) bool {
	for _, d := range defaultExcludeDirs {
		if name == d {
			return true
		}
	}
	return false
}

func excludedFile(name string) bool {
	for _, pat := range defaultExcludeFiles {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func sensitiveFile(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range sensitiveFilePatterns {
		if ok, _ := filepath.Match(pat, lower); ok {
			return true
		}
	}
	return false
}

// isBinaryFile reports whether the file looks binary: a NUL byte within the
// first 512 bytes, the same heuristic git uses.
func isBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) != -1, nil
}
