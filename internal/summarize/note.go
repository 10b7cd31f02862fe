package summarize

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Note is a Markdown body plus its YAML frontmatter fields.
type Note struct {
	Title      string
	Source     string
	CreatedAt  time.Time
	Tags       []string
	Categories []string
	Keywords   []string
	Body       string
}

// frontmatter fixes the key order of the rendered YAML.
type frontmatter struct {
	Title      string   `yaml:"title"`
	Source     string   `yaml:"source"`
	CreatedAt  string   `yaml:"created_at"`
	Tags       []string `yaml:"tags"`
	Categories []string `yaml:"categories"`
	Keywords   []string `yaml:"keywords"`
}

// Render returns "---\n<yaml>---\n\n<body>\n".
func (n Note) Render() ([]byte, error) {
	fm := frontmatter{
		Title:      n.Title,
		Source:     n.Source,
		CreatedAt:  n.CreatedAt.UTC().Format(time.RFC3339),
		Tags:       nonEmpty(n.Tags),
		Categories: nonEmpty(n.Categories),
		Keywords:   nonEmpty(n.Keywords),
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(n.Body))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Slugify lowercases s and joins its ASCII alphanumeric runs with "-".
// It returns fallback when nothing is left.
func Slugify(s, fallback string) string {
	slug := strings.ToLower(strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-"))
	if slug == "" {
		return fallback
	}
	return slug
}

// DefaultFilename is "summary-YYYYMMDDHHMM-<slug>.md" with the slug taken from
// the title, or from the source URL when there is no title.
func DefaultFilename(title, source string, at time.Time) string {
	base := title
	if strings.TrimSpace(base) == "" {
		base = source
	}
	slug := Slugify(base, "note")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	return "summary-" + at.UTC().Format("200601021504") + "-" + slug + ".md"
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename replaces characters outside [a-zA-Z0-9._-] with "-" and
// forces a .md suffix.
func SanitizeFilename(name string) string {
	cleaned := unsafeFilename.ReplaceAllString(strings.TrimSpace(name), "-")
	if !strings.HasSuffix(cleaned, ".md") {
		cleaned += ".md"
	}
	return cleaned
}
