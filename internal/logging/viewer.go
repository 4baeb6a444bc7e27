package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// followPollInterval is how often follow mode re-reads a file for new
// lines.
const followPollInterval = 100 * time.Millisecond

// maxLineBytes bounds a single JSON log line when scanning files.
const maxLineBytes = 1024 * 1024

// LogEntry is one parsed JSON log line. Lines that fail to parse keep
// their raw text and IsValid false so the viewer can still show them.
type LogEntry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Source  string         `json:"source"`
	Attrs   map[string]any `json:"-"`
	Raw     string         `json:"-"`
	IsValid bool           `json:"-"`
}

// ViewerConfig filters and styles viewer output.
type ViewerConfig struct {
	// Level drops entries below this severity. Empty keeps everything.
	Level string

	// Pattern, when set, keeps only entries whose raw line matches.
	Pattern *regexp.Regexp

	// NoColor disables ANSI styling.
	NoColor bool

	// ShowSource prefixes each line with its [source] label, for merged
	// multi-file views.
	ShowSource bool
}

// Viewer reads, filters, and renders JSON log files for the companion
// docweave-logs binary.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

// NewViewer returns a Viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// Tail returns the matching entries among the last n lines of one file.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	lines, err := lastLines(path, n)
	if err != nil {
		return nil, err
	}

	var entries []LogEntry
	for _, line := range lines {
		if entry := v.parseLine(line); v.keep(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// TailMultiple tails several files and merges their entries into one
// timeline ordered by timestamp, capped at n entries. Files that cannot
// be read are skipped so one missing log does not hide the others.
func (v *Viewer) TailMultiple(paths []string, n int) ([]LogEntry, error) {
	var merged []LogEntry
	for _, path := range paths {
		lines, err := lastLines(path, n)
		if err != nil {
			continue
		}
		source := sourceFromPath(path)
		for _, line := range lines {
			if entry := v.parseLineWithSource(line, source); v.keep(entry) {
				merged = append(merged, entry)
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})
	if len(merged) > n {
		merged = merged[len(merged)-n:]
	}
	return merged, nil
}

// Follow streams new entries from one file into the channel until the
// context ends.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	return v.followFile(ctx, path, sourceFromPath(path), entries)
}

// FollowMultiple follows several files at once, tagging each entry with
// its file's source. It blocks until the context ends.
func (v *Viewer) FollowMultiple(ctx context.Context, paths []string, entries chan<- LogEntry) error {
	var wg sync.WaitGroup
	for _, path := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_ = v.followFile(ctx, p, sourceFromPath(p), entries)
		}(path)
	}
	wg.Wait()
	return nil
}

// followFile polls one file from its current end, parsing and filtering
// new lines as they are appended.
func (v *Viewer) followFile(ctx context.Context, path, source string, entries chan<- LogEntry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimSuffix(line, "\n")
			if line == "" {
				continue
			}
			entry := v.parseLineWithSource(line, source)
			if !v.keep(entry) {
				continue
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Print renders entries to the viewer's output.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

// FormatEntry renders one entry as "15:04:05.000 LEVEL [source] msg k=v".
// Unparseable lines pass through raw.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.styleLevel(entry.Level))
	b.WriteByte(' ')
	if v.config.ShowSource && entry.Source != "" {
		b.WriteString(v.styleSource(entry.Source))
		b.WriteByte(' ')
	}
	b.WriteString(entry.Msg)

	for k, val := range entry.Attrs {
		fmt.Fprintf(&b, " %s=%v", k, val)
	}
	return b.String()
}

// lastLines returns up to n trailing lines of the file at path.
func lastLines(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// sourceFromPath infers the log source from the file name: server.log is
// the HTTP server, docweave.log the CLI.
func sourceFromPath(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "server"):
		return string(LogSourceServer)
	case strings.HasPrefix(base, "docweave"):
		return string(LogSourceCLI)
	default:
		return "unknown"
	}
}

func (v *Viewer) parseLineWithSource(line, fallback string) LogEntry {
	entry := v.parseLine(line)
	if entry.Source == "" {
		entry.Source = fallback
	}
	return entry
}

func (v *Viewer) parseLine(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return entry
	}
	entry.IsValid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			entry.Time = parsed
		}
	}
	entry.Level, _ = data["level"].(string)
	entry.Msg, _ = data["msg"].(string)
	entry.Source, _ = data["source"].(string)

	entry.Attrs = make(map[string]any)
	for k, val := range data {
		switch k {
		case "time", "level", "msg", "source":
		default:
			entry.Attrs[k] = val
		}
	}
	return entry
}

// keep applies the level and pattern filters.
func (v *Viewer) keep(entry LogEntry) bool {
	if v.config.Level != "" &&
		LevelFromString(entry.Level) < LevelFromString(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(entry.Raw) {
		return false
	}
	return true
}

// ANSI escapes for levels and source labels.
const (
	ansiReset   = "\033[0m"
	ansiGray    = "\033[90m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiRed     = "\033[31m"
	ansiCyan    = "\033[36m"
	ansiMagenta = "\033[35m"
)

func (v *Viewer) styleLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	label = fmt.Sprintf("%-5s", label)
	if v.config.NoColor {
		return label
	}

	switch strings.ToLower(level) {
	case "debug":
		return ansiGray + label + ansiReset
	case "info":
		return ansiGreen + label + ansiReset
	case "warn", "warning":
		return ansiYellow + label + ansiReset
	case "error":
		return ansiRed + label + ansiReset
	default:
		return label
	}
}

func (v *Viewer) styleSource(source string) string {
	label := "[" + source + "]"
	if v.config.NoColor {
		return label
	}

	switch source {
	case string(LogSourceCLI):
		return ansiCyan + label + ansiReset
	case string(LogSourceServer):
		return ansiMagenta + label + ansiReset
	default:
		return ansiGray + label + ansiReset
	}
}
