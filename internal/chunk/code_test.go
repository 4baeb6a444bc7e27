package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeSplitter_Supports(t *testing.T) {
	c := NewCodeSplitter(0, 0)
	defer c.Close()

	supported := []string{"main.go", "app.py", "types.pyi", "index.ts", "view.tsx", "util.js", "comp.jsx", "mod.mjs", "legacy.cjs"}
	for _, path := range supported {
		assert.True(t, c.Supports(path), path)
	}

	unsupported := []string{"README.md", "notes.txt", "config.yaml", "Makefile", ""}
	for _, path := range unsupported {
		assert.False(t, c.Supports(path), path)
	}
}

func TestCodeSplitter_UnsupportedFallsBackToText(t *testing.T) {
	c := NewCodeSplitter(0, 0)
	defer c.Close()

	chunks := c.Split(context.Background(), "notes.txt", "Alpha beta. Gamma delta.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alpha beta. Gamma delta.", chunks[0])
}

func TestCodeSplitter_EmptyFile(t *testing.T) {
	c := NewCodeSplitter(0, 0)
	defer c.Close()

	assert.Empty(t, c.Split(context.Background(), "empty.go", ""))
}

func TestCodeSplitter_GoDeclarationBoundaries(t *testing.T) {
	source := `package sample

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`

	c := NewCodeSplitter(20, 5)
	defer c.Close()

	chunks := c.Split(context.Background(), "math.go", source)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "package sample")
	assert.Contains(t, chunks[0], "func Add")
	assert.NotContains(t, chunks[0], "func Sub")
	assert.Contains(t, chunks[1], "func Sub")
}

func TestCodeSplitter_DocCommentStaysWithDeclaration(t *testing.T) {
	source := `package sample

func Add(a, b int) int {
	return a + b
}

// Sub subtracts b from a.
func Sub(a, b int) int {
	return a - b
}
`

	c := NewCodeSplitter(20, 5)
	defer c.Close()

	chunks := c.Split(context.Background(), "math.go", source)

	require.Len(t, chunks, 2)
	assert.NotContains(t, chunks[0], "// Sub subtracts")
	assert.Contains(t, chunks[1], "// Sub subtracts")
	assert.Contains(t, chunks[1], "func Sub")
}

func TestCodeSplitter_OversizedDeclarationResplit(t *testing.T) {
	source := `package sample

func Big() {
	v := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen", "seventeen", "eighteen", "nineteen", "twenty"}
	_ = v
}
`

	c := NewCodeSplitter(10, 2)
	defer c.Close()

	chunks := c.Split(context.Background(), "big.go", source)

	require.Greater(t, len(chunks), 2, "oversized declaration should be re-split")
	for i, chunk := range chunks {
		assert.LessOrEqual(t, wordCount(chunk), 10, "chunk %d over budget", i)
	}
}

func TestCodeSplitter_PythonDefinitions(t *testing.T) {
	source := `import os


def add(a, b):
    return a + b


def sub(a, b):
    return a - b
`

	c := NewCodeSplitter(12, 3)
	defer c.Close()

	chunks := c.Split(context.Background(), "math.py", source)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "import os")
	assert.Contains(t, chunks[0], "def add")
	assert.Contains(t, chunks[1], "def sub")
	assert.NotContains(t, chunks[1], "def add")
}

func TestLanguageRegistry_GetByExtension(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		ext  string
		lang string
		ok   bool
	}{
		{".go", "go", true},
		{"go", "go", true},
		{".PY", "python", true},
		{".tsx", "tsx", true},
		{".jsx", "javascript", true},
		{".rb", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		config, ok := r.GetByExtension(tt.ext)
		assert.Equal(t, tt.ok, ok, tt.ext)
		if tt.ok {
			require.NotNil(t, config)
			assert.Equal(t, tt.lang, config.Name)
		}
	}
}

func TestParser_ParseGo(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte("package x\n\nfunc F() {}\n"), "go")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, "source_file", tree.Root.Type)

	var types []string
	for _, child := range tree.Root.Children {
		types = append(types, child.Type)
	}
	assert.Contains(t, types, "package_clause")
	assert.Contains(t, types, "function_declaration")
}

func TestParser_UnsupportedLanguage(t *testing.T) {
	p := NewParser()
	defer p.Close()

	_, err := p.Parse(context.Background(), []byte("x"), "cobol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestNode_Content(t *testing.T) {
	source := []byte("package x\n")
	n := &Node{StartByte: 0, EndByte: 7}
	assert.Equal(t, "package", n.Content(source))

	out := &Node{StartByte: 5, EndByte: 50}
	assert.Equal(t, "", out.Content(source))
}
