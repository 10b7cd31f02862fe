package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"websum/internal/summarize"
)

var (
	errNoURL      = errors.New("a URL is required")
	errBadOption  = errors.New("invalid argument")
	urlInText     = regexp.MustCompile(`https?://[^\s<>"']+`)
	trailingPunct = ".,;:!?)]}»”"
)

// command is a parsed "/name arg..." line.
type command struct {
	Name string
	Args []string
}

// parseCommand returns false when text is not a bot command.
// "/Name@SomeBot a b" yields {Name: "name", Args: [a b]}.
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return command{}, false
	}
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return command{}, false
	}
	return command{Name: strings.ToLower(name), Args: parts[1:]}, true
}

// tokenizeCommandLine splits on whitespace, honouring single or double quotes
// and backslash escapes:
//
//	/summarize https://x "tags=a b" author_name='Jane Doe'
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if esc {
			buf.WriteByte(ch)
			esc = false
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			inQ = true
			qChar = ch
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// defaults fill options the user left out of /summarize.
type defaults struct {
	Repo   string
	Branch string
}

// parseSummarizeArgs turns "<url> key=value..." into a pipeline request.
//
// Keys are case-insensitive; unknown keys are ignored. list values
// (tags, categories, keywords) are comma separated.
func parseSummarizeArgs(args []string, def defaults) (summarize.Request, error) {
	if len(args) == 0 {
		return summarize.Request{}, errNoURL
	}
	rawURL := strings.TrimSpace(args[0])
	if _, err := summarize.ValidateURL(rawURL); err != nil {
		return summarize.Request{}, err
	}

	opts := make(map[string]string, len(args)-1)
	for _, tok := range args[1:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return summarize.Request{}, fmt.Errorf("%w %q, expected key=value", errBadOption, tok)
		}
		opts[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	req := summarize.Request{
		URL:         rawURL,
		Repo:        def.Repo,
		Branch:      def.Branch,
		AuthorName:  opts["author_name"],
		AuthorEmail: opts["author_email"],
		Tags:        splitList(opts["tags"]),
		Categories:  splitList(opts["categories"]),
		Keywords:    splitList(opts["keywords"]),
	}
	if v, ok := opts["repo"]; ok {
		req.Repo = v
	}
	if v, ok := opts["branch"]; ok && v != "" {
		req.Branch = v
	}
	if v := opts["filename"]; v != "" {
		req.Filename = summarize.SanitizeFilename(v)
	}
	return req, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// firstURL returns the first http(s) URL in free text, without trailing
// sentence punctuation.
func firstURL(text string) (string, bool) {
	m := urlInText.FindString(text)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, trailingPunct)
	if _, err := summarize.ValidateURL(m); err != nil {
		return "", false
	}
	return m, true
}
