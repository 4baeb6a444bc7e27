// Package gitignore matches paths against gitignore-style patterns
// (https://git-scm.com/docs/gitignore) so directory corpora skip what the
// repository itself marks as disposable. Matchers are built once while a
// directory tree is walked and are read-only afterwards.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher holds compiled patterns from one or more gitignore files.
type Matcher struct {
	rules []rule
}

type rule struct {
	regex    *regexp.Regexp
	base     string // directory the pattern is scoped to ("" = root)
	negation bool   // pattern started with !
	dirOnly  bool   // pattern ended with /
	anchored bool   // pattern contained / before the final segment
}

// New returns an empty matcher.
func New() *Matcher {
	return &Matcher{}
}

// Add registers one pattern scoped to the corpus root. Empty lines and
// comments are ignored.
func (m *Matcher) Add(pattern string) {
	m.add(pattern, "")
}

// AddFromFile loads every pattern in a gitignore file. base scopes the
// patterns to the directory holding the file; "" means the corpus root.
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening gitignore: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.add(scanner.Text(), base)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading gitignore: %w", err)
	}
	return nil
}

// Len reports how many patterns compiled.
func (m *Matcher) Len() int {
	return len(m.rules)
}

func (m *Matcher) add(pattern, base string) {
	// "\ " at the end of a pattern keeps the space; remember it before
	// trimming.
	escapedTrailingSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)

	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return
	}

	r := rule{base: base}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negation = true
		pattern = pattern[1:]
	}

	if escapedTrailingSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// A slash before the final segment anchors the pattern to its scope:
	// "doc/frotz" means "/doc/frotz", never "**/doc/frotz".
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + translate(pattern) + "$")
	m.rules = append(m.rules, r)
}

// Match reports whether path is ignored. Later patterns override earlier
// ones, so a negation after a match un-ignores the path.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	ignored := false
	for _, r := range m.rules {
		if r.matches(path, isDir) {
			ignored = !r.negation
		}
	}
	return ignored
}

func (r rule) matches(path string, isDir bool) bool {
	if r.base != "" {
		switch {
		case path == r.base:
			path = filepath.Base(path)
		case strings.HasPrefix(path, r.base+"/"):
			path = strings.TrimPrefix(path, r.base+"/")
		default:
			return false
		}
	}

	parts := strings.Split(path, "/")

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		// A dir-only pattern also ignores everything under the matched
		// directory.
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(parts[len(parts)-1]) {
		return true
	}
	if r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// translate converts a gitignore pattern into regex source. `*` stays inside
// one path segment, `?` matches one non-slash character, `**/` spans any
// directory depth, and `[...]` classes pass through.
func translate(pattern string) string {
	var b strings.Builder

	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 3
					continue
				}
				if i == 0 || pattern[i-1] == '/' {
					b.WriteString(".*")
					i += 2
					continue
				}
			}
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				b.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}
