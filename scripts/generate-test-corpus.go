//go:build ignore

// Generates a reproducible synthetic documentation corpus for the
// chunker benchmarks.
//
// Usage: go run scripts/generate-test-corpus.go -docs 50 -output internal/chunk/testdata/bench
//
// The output is plain markdown prose plus a handful of Go sources, the
// same mix a real repository feeds the pipeline. The benchmarks fall
// back to an in-memory corpus when the directory is absent, so
// committing the output is optional.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs   = flag.Int("docs", 50, "number of markdown documents to generate")
	wordsPer  = flag.Int("words", 2000, "target word count per document")
	numGo     = flag.Int("go", 10, "number of Go source files to generate")
	outputDir = flag.String("output", "internal/chunk/testdata/bench", "output directory")
	seed      = flag.Int64("seed", 7, "random seed")
)

// Vocabulary skewed toward documentation prose so sentence lengths and
// punctuation density resemble the README and design docs the pipeline
// actually ingests.
var (
	subjects = []string{
		"the pipeline", "the indexer", "each worker", "the scheduler",
		"the embedding client", "the checkpoint store", "the fetcher",
		"a resumed run", "the merge step", "the outline planner",
		"the retrieval layer", "the corpus scanner",
	}
	verbs = []string{
		"persists", "streams", "retries", "validates", "coalesces",
		"partitions", "normalizes", "resumes", "tracks", "rebuilds",
		"filters", "batches",
	}
	objects = []string{
		"chapter drafts", "chunk offsets", "progress anchors",
		"vector rows", "source files", "section headings",
		"retrieval hits", "token budgets", "ignore patterns",
		"upload archives", "stream frames", "lock files",
	}
	tails = []string{
		"before the next phase starts", "under concurrent access",
		"when the context is cancelled", "without blocking the caller",
		"after every flush", "across restarts", "one file at a time",
		"unless the budget is exhausted",
	}
	headings = []string{
		"Overview", "Configuration", "Indexing", "Retrieval",
		"Checkpoints", "Streaming", "Error Handling", "Operations",
		"Limits", "Internals",
	}
)

func sentence(rng *rand.Rand) string {
	s := fmt.Sprintf("%s %s %s %s.",
		subjects[rng.Intn(len(subjects))],
		verbs[rng.Intn(len(verbs))],
		objects[rng.Intn(len(objects))],
		tails[rng.Intn(len(tails))])
	return strings.ToUpper(s[:1]) + s[1:]
}

func paragraph(rng *rand.Rand) (string, int) {
	n := 3 + rng.Intn(5)
	sents := make([]string, n)
	words := 0
	for i := range sents {
		sents[i] = sentence(rng)
		words += len(strings.Fields(sents[i]))
	}
	return strings.Join(sents, " "), words
}

func document(rng *rand.Rand, title string, targetWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	words := 0
	for words < targetWords {
		fmt.Fprintf(&b, "\n## %s\n", headings[rng.Intn(len(headings))])
		paras := 2 + rng.Intn(3)
		for i := 0; i < paras; i++ {
			p, w := paragraph(rng)
			b.WriteString("\n" + p + "\n")
			words += w
		}
	}
	return b.String()
}

func goSource(rng *rand.Rand, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\nimport \"context\"\n", name)
	funcs := 4 + rng.Intn(4)
	for i := 0; i < funcs; i++ {
		comment, _ := paragraph(rng)
		fmt.Fprintf(&b, "\n// Step%d: %s\nfunc Step%d(ctx context.Context, in string) (string, error) {\n\tif err := ctx.Err(); err != nil {\n\t\treturn \"\", err\n\t}\n\treturn in, nil\n}\n", i, comment, i)
	}
	return b.String()
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	total := 0
	for i := 0; i < *numDocs; i++ {
		title := fmt.Sprintf("Guide %02d", i)
		doc := document(rng, title, *wordsPer)
		path := filepath.Join(*outputDir, fmt.Sprintf("doc_%03d.md", i))
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		total += len(strings.Fields(doc))
	}
	for i := 0; i < *numGo; i++ {
		src := goSource(rng, fmt.Sprintf("pkg%d", i))
		path := filepath.Join(*outputDir, fmt.Sprintf("src_%03d.go.txt", i))
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Printf("generated %d markdown docs (%d words) and %d Go sources in %s\n",
		*numDocs, total, *numGo, *outputDir)
}
