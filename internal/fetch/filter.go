package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

// ignoredPathPatterns reject dependency trees, VCS internals, build output,
// caches, and editor state wherever they appear in a path. Matched
// case-insensitively, anywhere in the path.
var ignoredPathPatterns = compilePatterns([]string{
	`node_modules`,
	`\.git`,
	`dist`,
	`build`,
	`\.next`,
	`venv`,
	`__pycache__`,
	`\.env`,
	`\.DS_Store`,
	`\.idea`,
	`\.vscode`,
	`\.pytest_cache`,
	`\.mypy_cache`,
	`\.tox`,
	`\.cache`,
})

func compilePatterns(raw []string) []*regexp.Regexp {
	pats := make([]*regexp.Regexp, len(raw))
	for i, r := range raw {
		pats[i] = regexp.MustCompile(`(?i)` + r)
	}
	return pats
}

// allowedExtensions whitelists what the pipeline can chunk and embed:
// source code, markup and config, and extractable documents.
var allowedExtensions = map[string]struct{}{
	"py": {}, "js": {}, "jsx": {}, "ts": {}, "tsx": {}, "java": {}, "kt": {},
	"dart": {}, "go": {}, "rs": {}, "cpp": {}, "c": {}, "h": {}, "cs": {},
	"html": {}, "css": {}, "md": {}, "txt": {}, "json": {}, "yaml": {}, "yml": {}, "xml": {},
	"pdf": {}, "doc": {}, "docx": {},
}

func ignoredPath(path string) bool {
	p := strings.ReplaceAll(path, "\\", "/")
	for _, re := range ignoredPathPatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// fileExtension returns the lowercase text after the last dot, or "" when
// the path has none.
func fileExtension(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return strings.ToLower(path[i+1:])
	}
	return ""
}

func allowedExtension(path string) bool {
	_, ok := allowedExtensions[fileExtension(path)]
	return ok
}

// selector applies the shared filter pipeline in order: ignored paths,
// extension whitelist, per-file size cap, file count cap, total size
// budget. Rejections are recorded as "path (reason)" lines; tripping a
// cumulative cap also sets full, after which the source stops considering
// files.
type selector struct {
	limits   Limits
	included int
	chars    int
	skipped  []string
	warnings []string
	full     bool
}

func newSelector(limits Limits) *selector {
	return &selector{limits: limits.orDefaults()}
}

// consider reports whether the file at path with the given size survives
// filtering.
func (s *selector) consider(path string, size int) bool {
	if ignoredPath(path) {
		s.skip(path, "ignored pattern")
		return false
	}
	if !allowedExtension(path) {
		s.skip(path, "unsupported extension")
		return false
	}
	if size > s.limits.MaxFileBytes {
		s.skip(path, fmt.Sprintf("too large: %d bytes", size))
		s.warn("Skipped %s: exceeds max file size (%d bytes)", path, s.limits.MaxFileBytes)
		return false
	}
	if s.included >= s.limits.MaxFiles {
		s.skip(path, fmt.Sprintf("max files reached: %d", s.limits.MaxFiles))
		s.warn("Reached maximum file limit (%d). Some files were skipped.", s.limits.MaxFiles)
		s.full = true
		return false
	}
	if s.chars+size > s.limits.MaxTotalChars {
		s.skip(path, "total size limit reached")
		s.warn("Reached total size limit (%d chars). Processed %d files with %d characters.",
			s.limits.MaxTotalChars, s.included, s.chars)
		s.full = true
		return false
	}
	return true
}

// accept records an admitted file's contribution to the budgets.
func (s *selector) accept(size int) {
	s.included++
	s.chars += size
}

func (s *selector) skip(path, reason string) {
	s.skipped = append(s.skipped, fmt.Sprintf("%s (%s)", path, reason))
}

func (s *selector) warn(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}
