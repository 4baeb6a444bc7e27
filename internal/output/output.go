// Package output formats human-facing CLI messages. Commands that print
// structured data (JSON, YAML) write it directly; everything conversational
// goes through a Writer so status lines look the same across commands.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Icons for the common message kinds.
const (
	iconSuccess = "✅"
	iconWarning = "⚠️ "
	iconError   = "❌"
)

// Writer prints status lines to a terminal or buffer. Write errors are
// dropped: there is nothing useful to do when stdout itself fails.
type Writer struct {
	out io.Writer
}

// New returns a Writer printing to out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints one line prefixed by an icon. An empty icon indents the
// line so it aligns under a preceding iconed message.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf is Status with printf formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a checkmarked line.
func (w *Writer) Success(msg string) {
	w.Status(iconSuccess, msg)
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status(iconWarning, msg)
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status(iconError, msg)
}

// Code prints content as an indented block with a blank line on each side,
// for snippets quoted inside status output.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
