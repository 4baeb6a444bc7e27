package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject_PrettyPrintedJSON(t *testing.T) {
	obj := `{
  "chapters": [
    {
      "title": "Overview",
      "description": "Intro",
      "queries": ["main entry point", "README", "project structure"]
    },
    {
      "title": "Internals",
      "description": "Deep dive",
      "queries": ["worker pool", "scheduler", "queue"]
    }
  ]
}`
	text := "Here is the outline:\n\n" + obj + "\n\nHope this helps!"

	got, ok := extractObject(text)
	require.True(t, ok)
	assert.Equal(t, obj, got)
}

func TestExtractObject_BracesInsideStrings(t *testing.T) {
	obj := `{"chapters": [{"title": "Uses } and { in text", "description": "a \"quoted\" phrase", "queries": ["q"]}]}`
	text := "prefix " + obj + " suffix"

	got, ok := extractObject(text)
	require.True(t, ok)
	assert.Equal(t, obj, got)
}

func TestExtractObject_NoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"no json here at all",
		`the chapters are listed below`,
		`{"chapters": [{"title": "truncated"`,
	} {
		_, ok := extractObject(text)
		assert.False(t, ok, "text %q", text)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stripFences(tc.in))
	}
}

func TestDecodeChapters_MissingTitleDefaultsToUntitled(t *testing.T) {
	chapters, ok := decodeChapters(`{"chapters": [{"description": "d", "queries": ["a"]}]}`)
	require.True(t, ok)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Untitled", chapters[0].Title)
}

func TestParseMarkdown_NoHeadings(t *testing.T) {
	assert.Empty(t, parseMarkdown("just prose\nwith no structure"))
	assert.Empty(t, parseMarkdown(""))
}

func TestNormalize_BoundsReplaceWithDefault(t *testing.T) {
	def := DefaultPlan()

	for _, n := range []int{0, 4, 13} {
		chapters := make([]Chapter, n)
		for i := range chapters {
			chapters[i] = Chapter{Title: "T", Queries: []string{"a", "b", "c"}}
		}
		got := normalize(chapters)
		require.Len(t, got, len(def), "%d chapters", n)
		assert.Equal(t, def[0].Title, got[0].Title)
	}
}

func TestNormalize_KeepsInBoundsPlan(t *testing.T) {
	chapters := make([]Chapter, 7)
	for i := range chapters {
		chapters[i] = Chapter{Title: "T", Queries: []string{"a", "b", "c"}}
	}
	got := normalize(chapters)
	assert.Len(t, got, 7)
}
