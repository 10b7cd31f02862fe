package summarize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "go.yaml.in/yaml/v3"
)

func TestNoteRender(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.FixedZone("WIB", 7*3600))
	out, err := Note{
		Title:     "Go: the good parts",
		Source:    "https://example.com/go",
		CreatedAt: at,
		Tags:      []string{"go", " ", "lang "},
		Body:      "\n\n# Summary\n\nBody text.\n\n",
	}.Render()
	require.NoError(t, err)

	s := string(out)
	require.True(t, strings.HasPrefix(s, "---\n"))
	head, body, ok := strings.Cut(strings.TrimPrefix(s, "---\n"), "---\n\n")
	require.True(t, ok, "frontmatter terminator missing: %q", s)
	assert.Equal(t, "# Summary\n\nBody text.\n", body)

	var fm map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(head), &fm))
	assert.Equal(t, "Go: the good parts", fm["title"])
	assert.Equal(t, "https://example.com/go", fm["source"])
	switch v := fm["created_at"].(type) {
	case string:
		assert.Equal(t, "2024-03-09T07:05:00Z", v)
	case time.Time:
		assert.Equal(t, "2024-03-09T07:05:00Z", v.Format(time.RFC3339))
	default:
		t.Fatalf("created_at has type %T", v)
	}
	assert.Equal(t, []any{"go", "lang"}, fm["tags"])
	assert.Equal(t, []any{}, fm["categories"])
	assert.Equal(t, []any{}, fm["keywords"])
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello-world"},
		{"  --Go 1.24 release notes--  ", "go-1-24-release-notes"},
		{"https://example.com/a/b?c=d", "https-example-com-a-b-c-d"},
		{"日本語", "note"},
		{"", "note"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in, "note"), tt.in)
	}
}

func TestDefaultFilename(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 3, 4, 59, 0, time.UTC)
	assert.Equal(t, "summary-202501020304-my-title.md", DefaultFilename("My Title", "https://x.test/p", at))
	assert.Equal(t, "summary-202501020304-https-x-test-p.md", DefaultFilename("  ", "https://x.test/p", at))
	assert.Equal(t, "summary-202501020304-note.md", DefaultFilename("", "", at))

	long := DefaultFilename(strings.Repeat("ab ", 60), "", at)
	slug := strings.TrimSuffix(strings.TrimPrefix(long, "summary-202501020304-"), ".md")
	assert.LessOrEqual(t, len(slug), 80)
	assert.False(t, strings.HasSuffix(slug, "-"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "notes-go-.md", SanitizeFilename("notes/go?"))
	assert.Equal(t, "a.md", SanitizeFilename(" a.md "))
	assert.Equal(t, "my_file.txt.md", SanitizeFilename("my_file.txt"))
}
