package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo contains generation job status information.
type StatusInfo struct {
	RepoID      string    `json:"repo_id"`
	Type        string    `json:"type,omitempty"`
	Status      string    `json:"status"`
	Running     bool      `json:"running"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	Chapters    int       `json:"completed_chapters"`
	TotalSteps  int       `json:"total_chapters"`
	Files       int       `json:"file_count"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`

	// Artifact paths and sizes (zero when not yet produced)
	MarkdownPath string `json:"markdown_path,omitempty"`
	MarkdownSize int64  `json:"markdown_size,omitempty"`
	PDFPath      string `json:"pdf_path,omitempty"`
	IndexPath    string `json:"index_path,omitempty"`
	IndexSize    int64  `json:"index_size,omitempty"`
}

// StatusRenderer displays generation job status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	// Header
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Generation Status: "+info.RepoID))

	if info.Type != "" {
		_, _ = fmt.Fprintf(r.out, "  Type:     %s\n", info.Type)
	}

	status := info.Status
	if info.Running {
		status += " (running)"
	}
	_, _ = fmt.Fprintf(r.out, "  Status:   %s\n", r.renderStatus(status, info.Status))
	_, _ = fmt.Fprintf(r.out, "  Progress: %d%%\n", info.Progress)

	if info.CurrentStep != "" {
		_, _ = fmt.Fprintf(r.out, "  Step:     %s\n", info.CurrentStep)
	}
	if info.TotalSteps > 0 {
		_, _ = fmt.Fprintf(r.out, "  Chapters: %d / %d\n", info.Chapters, info.TotalSteps)
	}
	if info.Files > 0 {
		_, _ = fmt.Fprintf(r.out, "  Files:    %d\n", info.Files)
	}
	if !info.StartedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Started:  %s\n", formatTime(info.StartedAt))
	}
	if !info.LastUpdated.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Updated:  %s\n", formatTime(info.LastUpdated))
	}
	if info.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  Error:    %s\n", r.styles.Error.Render(info.Error))
	}

	// Artifacts
	if info.MarkdownPath != "" || info.PDFPath != "" || info.IndexPath != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Artifacts:")
		if info.MarkdownPath != "" {
			_, _ = fmt.Fprintf(r.out, "    Markdown: %s%s\n", info.MarkdownPath, sizeSuffix(info.MarkdownSize))
		}
		if info.PDFPath != "" {
			_, _ = fmt.Fprintf(r.out, "    PDF:      %s\n", info.PDFPath)
		}
		if info.IndexPath != "" {
			_, _ = fmt.Fprintf(r.out, "    Index:    %s%s\n", info.IndexPath, sizeSuffix(info.IndexSize))
		}
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(display, status string) string {
	switch status {
	case "completed":
		return r.styles.Success.Render(display)
	case "failed":
		return r.styles.Error.Render(display)
	case "interrupted":
		return r.styles.Warning.Render(display)
	default:
		return r.styles.Active.Render(display)
	}
}

func sizeSuffix(size int64) string {
	if size <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", FormatBytes(size))
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
