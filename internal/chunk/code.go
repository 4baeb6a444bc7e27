package chunk

import (
	"context"
	"path/filepath"
	"strings"
)

// CodeSplitter splits source files at top-level declaration boundaries
// instead of sentence boundaries. Consecutive declarations are packed into
// chunks up to the word budget, so small helpers travel together while a
// large function gets a chunk of its own. Files in languages without a
// registered grammar fall back to plain text splitting.
type CodeSplitter struct {
	parser   *Parser
	registry *LanguageRegistry
	fallback *Splitter
}

// NewCodeSplitter creates a code-aware splitter. Zero or negative sizes
// fall back to the same defaults as NewSplitter.
func NewCodeSplitter(chunkSizeWords, overlapWords int) *CodeSplitter {
	registry := DefaultRegistry()
	return &CodeSplitter{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		fallback: NewSplitter(chunkSizeWords, overlapWords),
	}
}

// Supports reports whether path has a registered grammar.
func (c *CodeSplitter) Supports(path string) bool {
	_, ok := c.registry.GetByExtension(filepath.Ext(path))
	return ok
}

// Split chunks source code along declaration boundaries. Unsupported
// languages and unparseable content use the plain text splitter.
func (c *CodeSplitter) Split(ctx context.Context, path, content string) []string {
	config, ok := c.registry.GetByExtension(filepath.Ext(path))
	if !ok {
		return c.fallback.Split(content)
	}

	tree, err := c.parser.Parse(ctx, []byte(content), config.Name)
	if err != nil || tree.Root == nil || len(tree.Root.Children) == 0 {
		return c.fallback.Split(content)
	}

	return c.pack(c.elements(tree, config))
}

// Close releases parser resources.
func (c *CodeSplitter) Close() {
	c.parser.Close()
}

// element is a top-level span of the source file: one declaration, one
// comment, or the text between them. Spans cover the file contiguously so
// that joining them reproduces the source.
type element struct {
	text    string
	words   int
	symbol  bool
	comment bool
}

// elements slices the source into spans along the root node's children.
// The byte cursor keeps inter-node text (whitespace, stray tokens) attached
// to the following node so nothing is dropped.
func (c *CodeSplitter) elements(tree *Tree, config *LanguageConfig) []element {
	src := tree.Source
	elems := make([]element, 0, len(tree.Root.Children))

	cursor := uint32(0)
	for _, node := range tree.Root.Children {
		end := node.EndByte
		if end > uint32(len(src)) {
			end = uint32(len(src))
		}
		if end <= cursor {
			continue
		}
		text := string(src[cursor:end])
		cursor = end

		elems = append(elems, element{
			text:    text,
			words:   wordCount(text),
			symbol:  config.IsSymbol(node.Type),
			comment: config.IsComment(node.Type),
		})
	}

	if int(cursor) < len(src) {
		tail := string(src[cursor:])
		if strings.TrimSpace(tail) != "" {
			elems = append(elems, element{text: tail, words: wordCount(tail)})
		}
	}

	return elems
}

// pack groups consecutive elements into chunks within the word budget.
// When a declaration would overflow the current chunk, any trailing
// comments move with it so doc comments stay next to the code they
// describe. Single elements larger than the budget are re-split as text.
func (c *CodeSplitter) pack(elems []element) []string {
	budget := c.fallback.chunkSize

	var chunks []string
	var cur []element
	curWords := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		var b strings.Builder
		for _, e := range cur {
			b.WriteString(e.text)
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			chunks = append(chunks, text)
		}
		cur = cur[:0]
		curWords = 0
	}

	for _, e := range elems {
		if curWords > 0 && curWords+e.words > budget {
			var carry []element
			if e.symbol {
				for len(cur) > 1 && cur[len(cur)-1].comment {
					carry = append(carry, cur[len(cur)-1])
					cur = cur[:len(cur)-1]
				}
				// restore source order
				for i, j := 0, len(carry)-1; i < j; i, j = i+1, j-1 {
					carry[i], carry[j] = carry[j], carry[i]
				}
			}
			flush()
			for _, ce := range carry {
				cur = append(cur, ce)
				curWords += ce.words
			}
		}
		cur = append(cur, e)
		curWords += e.words
	}
	flush()

	var out []string
	for _, chunk := range chunks {
		if wordCount(chunk) > budget {
			out = append(out, c.fallback.Split(chunk)...)
		} else {
			out = append(out, chunk)
		}
	}
	return filterEmpty(out)
}
