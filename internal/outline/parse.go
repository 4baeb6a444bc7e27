package outline

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// parseOutline turns raw LLM output into chapters. It tries JSON first,
// then a Markdown-style outline. Callers normalize the result, so an empty
// slice here is acceptable.
func parseOutline(text string) []Chapter {
	if chapters, ok := parseJSON(text); ok {
		return chapters
	}
	if strings.Contains(text, `"chapters"`) {
		slog.Warn("outline_json_parse_failed")
	}
	return parseMarkdown(text)
}

// parseJSON decodes the outline object from the response. Models wrap JSON
// in prose and code fences despite instructions, so the whole trimmed body
// is tried first and a balanced-brace extraction second.
func parseJSON(text string) ([]Chapter, bool) {
	trimmed := stripFences(text)
	if strings.HasPrefix(trimmed, "{") {
		if chapters, ok := decodeChapters(trimmed); ok {
			return chapters, true
		}
	}
	if obj, ok := extractObject(text); ok {
		if chapters, ok := decodeChapters(obj); ok {
			return chapters, true
		}
	}
	return nil, false
}

// stripFences removes a surrounding Markdown code fence, including its info
// string, and trims whitespace.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// extractObject finds the innermost JSON object containing a "chapters" key
// by scanning braces with string-literal awareness. A lazy regex cannot do
// this once the queries arrays span lines.
func extractObject(text string) (string, bool) {
	key := strings.Index(text, `"chapters"`)
	if key < 0 {
		return "", false
	}
	start := strings.LastIndex(text[:key], "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeChapters(raw string) ([]Chapter, bool) {
	var payload struct {
		Chapters []struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Queries     []string `json:"queries"`
		} `json:"chapters"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}
	if len(payload.Chapters) == 0 {
		return nil, false
	}
	chapters := make([]Chapter, 0, len(payload.Chapters))
	for _, ch := range payload.Chapters {
		title := ch.Title
		if title == "" {
			title = "Untitled"
		}
		chapters = append(chapters, Chapter{
			Title:       title,
			Description: ch.Description,
			Queries:     ch.Queries,
		})
	}
	return chapters, true
}

// parseMarkdown reads a heading-style outline: "##" lines open chapters,
// "-" or "*" bullets become queries, and remaining prose joins into the
// description. "###" subheadings are ignored.
func parseMarkdown(text string) []Chapter {
	var chapters []Chapter
	var current *Chapter

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "##") && !strings.HasPrefix(line, "###"):
			if current != nil {
				chapters = append(chapters, *current)
			}
			current = &Chapter{Title: strings.TrimSpace(strings.TrimLeft(line, "#"))}
		case current == nil:
			// Preamble before the first heading.
		case strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*"):
			if q := strings.TrimSpace(strings.TrimLeft(line, "-*")); q != "" {
				current.Queries = append(current.Queries, q)
			}
		case !strings.HasPrefix(line, "#"):
			if current.Description != "" {
				current.Description += " " + line
			} else {
				current.Description = line
			}
		}
	}
	if current != nil {
		chapters = append(chapters, *current)
	}
	return chapters
}

// normalize enforces the plan shape: chapter count within bounds or the
// default plan substitutes, every chapter titled, and query lists deduped,
// topped up from the title, and capped.
func normalize(chapters []Chapter) []Chapter {
	if len(chapters) < minChapters || len(chapters) > maxChapters {
		slog.Warn("outline_plan_replaced", slog.Int("parsed_chapters", len(chapters)))
		return DefaultPlan()
	}
	out := make([]Chapter, len(chapters))
	for i, ch := range chapters {
		ch.Title = strings.TrimSpace(ch.Title)
		if ch.Title == "" {
			ch.Title = "Untitled"
		}
		ch.Description = strings.TrimSpace(ch.Description)
		ch.Queries = normalizeQueries(ch.Title, ch.Queries)
		out[i] = ch
	}
	return out
}

func normalizeQueries(title string, queries []string) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	if len(out) > maxQueries {
		return out[:maxQueries]
	}
	for _, q := range []string{title, title + " implementation", title + " examples"} {
		if len(out) >= minQueries {
			break
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// DefaultPlan returns the fixed outline used when the model output cannot
// be parsed into a usable plan.
func DefaultPlan() []Chapter {
	return []Chapter{
		{
			Title:       "Overview",
			Description: "Repository overview and introduction",
			Queries:     []string{"repository structure", "main entry point", "README"},
		},
		{
			Title:       "Architecture",
			Description: "System architecture and design",
			Queries:     []string{"architecture", "design patterns", "system structure"},
		},
		{
			Title:       "Core Components",
			Description: "Main components and modules",
			Queries:     []string{"main components", "core modules", "key classes"},
		},
		{
			Title:       "API Reference",
			Description: "API endpoints and interfaces",
			Queries:     []string{"API routes", "endpoints", "interfaces"},
		},
		{
			Title:       "Usage Examples",
			Description: "Usage examples and tutorials",
			Queries:     []string{"usage examples", "how to use", "tutorial"},
		},
	}
}
