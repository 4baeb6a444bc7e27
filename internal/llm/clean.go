package llm

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	thinkBlockRe   = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkTagRe     = regexp.MustCompile(`(?i)</?think>`)
	numberedItemRe = regexp.MustCompile(`^\d+[.)]`)
)

// thinkingPhrases are paragraph openers reasoning models leak before the
// actual answer. Matched case-insensitively against the start of leading
// paragraphs.
var thinkingPhrases = []string{
	"okay",
	"alright",
	"hmm",
	"let me",
	"let's see",
	"first,",
	"looking at",
	"wait",
	"i think",
	"i need to",
	"i should",
	"the user wants",
	"the user is asking",
	"based on",
}

// CleanOutput strips reasoning artifacts from model output: <think> blocks,
// leading thinking-phrase paragraphs, and broken word spacing.
func CleanOutput(text string) string {
	cleaned := thinkBlockRe.ReplaceAllString(text, "")
	cleaned = thinkTagRe.ReplaceAllString(cleaned, "")
	cleaned = stripLeadingThinking(cleaned)
	cleaned = NormalizeSpaces(cleaned)
	return strings.TrimSpace(cleaned)
}

// stripLeadingThinking drops leading paragraphs that open with a thinking
// phrase. Stripping stops at the first structural content marker or the
// first paragraph that reads as real prose, which is preserved verbatim.
func stripLeadingThinking(text string) string {
	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			i++
			continue
		}
		if isContentMarker(trimmed) || !startsWithThinkingPhrase(trimmed) {
			break
		}
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			i++
		}
	}
	return strings.Join(lines[i:], "\n")
}

// isContentMarker reports whether a line opens real document structure:
// a heading, code fence, table row, or list item.
func isContentMarker(line string) bool {
	if strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "```") ||
		strings.HasPrefix(line, "|") {
		return true
	}
	if strings.HasPrefix(line, "- ") ||
		strings.HasPrefix(line, "* ") ||
		strings.HasPrefix(line, "+ ") {
		return true
	}
	return numberedItemRe.MatchString(line)
}

func startsWithThinkingPhrase(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range thinkingPhrases {
		if strings.HasPrefix(lower, phrase) {
			return true
		}
	}
	return false
}

// NormalizeSpaces repairs missing word spacing in model output. When at most
// 70% of expected word boundaries already carry whitespace the text is
// treated as mangled and every fused boundary is split; otherwise only
// conservative fixes are applied (clear camelCase fusions and sentence
// punctuation without a trailing space), leaving code spans untouched.
func NormalizeSpaces(text string) string {
	carried, total := boundaryStats(text)
	if total == 0 {
		return text
	}
	minimal := float64(carried)/float64(total) > 0.70
	return insertSpaces(text, minimal)
}

// boundaryStats counts expected word boundaries and how many of them
// already carry whitespace. Expected boundaries are a lowercase letter
// ending a word and sentence punctuation followed by an uppercase letter.
func boundaryStats(text string) (carried, total int) {
	runes := []rune(text)
	for i := 0; i+1 < len(runes); i++ {
		cur, next := runes[i], runes[i+1]
		switch {
		case unicode.IsLower(cur) && unicode.IsSpace(next):
			carried++
			total++
		case unicode.IsLower(cur) && unicode.IsUpper(next):
			total++
		case isSentencePunct(cur) && unicode.IsSpace(next):
			carried++
			total++
		case isSentencePunct(cur) && unicode.IsUpper(next):
			total++
		}
	}
	return carried, total
}

func isSentencePunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}

// insertSpaces splits fused boundaries line by line. Fenced code blocks are
// never modified; minimal mode additionally skips inline code spans and
// splits camelCase only when the fused word continues in lowercase.
func insertSpaces(text string, minimal bool) string {
	lines := strings.Split(text, "\n")
	inFence := false
	for idx, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[idx] = fixLineSpacing(line, minimal)
	}
	return strings.Join(lines, "\n")
}

func fixLineSpacing(line string, minimal bool) string {
	runes := []rune(line)
	var b strings.Builder
	b.Grow(len(line) + len(line)/8)

	inCode := false
	for i, r := range runes {
		b.WriteRune(r)
		if r == '`' {
			inCode = !inCode
		}
		if i+1 >= len(runes) || (minimal && inCode) {
			continue
		}

		next := runes[i+1]
		switch {
		case isSentencePunct(r) && unicode.IsUpper(next):
			b.WriteByte(' ')
		case unicode.IsLower(r) && unicode.IsUpper(next):
			if !minimal {
				b.WriteByte(' ')
			} else if i+2 < len(runes) && unicode.IsLower(runes[i+2]) {
				b.WriteByte(' ')
			}
		}
	}
	return b.String()
}
