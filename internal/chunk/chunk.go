// Package chunk splits corpus text into retrievable units.
//
// The default splitter works on sentence boundaries and word counts, which
// holds up well for prose, markdown, and mixed README-style content. For
// source files an opt-in syntax-aware splitter (CodeSplitter) keeps chunks
// aligned with declaration boundaries.
package chunk

import (
	"strings"
)

// Splitter defaults. Word counts approximate tokens closely enough for
// retrieval purposes without a tokenizer dependency.
const (
	DefaultChunkSizeWords = 500
	DefaultOverlapWords   = 100
)

// Splitter splits text into overlapping chunks bounded by a word budget.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Zero values select the defaults.
func NewSplitter(chunkSizeWords, overlapWords int) *Splitter {
	if chunkSizeWords <= 0 {
		chunkSizeWords = DefaultChunkSizeWords
	}
	if overlapWords <= 0 {
		overlapWords = DefaultOverlapWords
	}
	if overlapWords >= chunkSizeWords {
		overlapWords = chunkSizeWords / 5
	}
	return &Splitter{chunkSize: chunkSizeWords, overlap: overlapWords}
}

// Split breaks text into chunks of roughly chunkSize words.
//
// Text with sentence boundaries (`.`, `!`, `?` followed by whitespace) is
// split sentence by sentence: sentences accumulate until adding the next one
// would exceed the budget, the chunk is emitted, and the next chunk is seeded
// with the smallest sentence suffix of the emitted chunk carrying at least
// the overlap word count. Text without boundaries falls back to a plain
// word window. Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	if len(sentences) == 1 {
		return s.windowSplit(text)
	}

	var chunks []string
	var cur []string
	curWords := 0

	for _, sent := range sentences {
		wc := wordCount(sent)
		if curWords > 0 && curWords+wc > s.chunkSize {
			chunks = append(chunks, strings.Join(cur, " "))
			cur, curWords = s.overlapSuffix(cur)
		}
		cur = append(cur, sent)
		curWords += wc
	}
	if curWords > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}

	return filterEmpty(chunks)
}

// overlapSuffix returns the smallest trailing run of sentences whose word
// count reaches the overlap target. A chunk smaller than the target is
// carried forward whole; that is as much context as exists.
func (s *Splitter) overlapSuffix(sents []string) ([]string, int) {
	if s.overlap <= 0 || len(sents) == 0 {
		return nil, 0
	}

	total := 0
	start := len(sents)
	for i := len(sents) - 1; i >= 0; i-- {
		total += wordCount(sents[i])
		start = i
		if total >= s.overlap {
			break
		}
	}

	suffix := make([]string, len(sents)-start)
	copy(suffix, sents[start:])

	words := 0
	for _, sent := range suffix {
		words += wordCount(sent)
	}
	return suffix, words
}

// windowSplit is the fallback for boundary-free text: fixed word windows
// advancing by chunkSize-overlap.
func (s *Splitter) windowSplit(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := s.chunkSize - s.overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + s.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
		start = end - s.overlap
	}
	return chunks
}

// splitSentences scans for terminators followed by whitespace. The trailing
// fragment (terminated or not) counts as the final sentence. Byte scanning is
// safe here: the characters of interest are ASCII and never occur inside
// multi-byte UTF-8 sequences.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && isSpaceByte(text[i+1]) {
			if seg := strings.TrimSpace(text[start : i+1]); seg != "" {
				sentences = append(sentences, seg)
			}
			start = i + 1
		}
	}

	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isSpaceByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func filterEmpty(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
