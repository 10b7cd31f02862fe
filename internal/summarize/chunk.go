package summarize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkRunes is the largest Markdown input sent in one completion.
const DefaultChunkRunes = 10_000

type blockKind int

const (
	blockText blockKind = iota
	blockHeading
	blockCode
	blockList
	blockQuote
	blockTable
)

type mdBlock struct {
	text  string
	kind  blockKind
	fence string
}

var (
	headingLine = regexp.MustCompile(`^#{1,6}\s`)
	listLine    = regexp.MustCompile(`^(\s*[-*+]\s+|\s*\d+\.\s+)`)
	tableLine   = regexp.MustCompile(`^\s*\|.+\|\s*$`)
)

// SplitMarkdown cuts md into chunks of at most maxRunes runes along block
// boundaries. A heading always starts a new chunk. Blocks larger than
// maxRunes are split by line, and lines larger than that by rune count.
// Code blocks split this way keep their fences on every piece.
func SplitMarkdown(md string, maxRunes int) []string {
	md = strings.TrimSpace(md)
	if md == "" {
		return nil
	}
	if maxRunes <= 0 || utf8.RuneCountInString(md) <= maxRunes {
		return []string{md}
	}
	return buildChunks(splitBlocks(md), maxRunes)
}

func splitBlocks(md string) []mdBlock {
	var (
		blocks  []mdBlock
		cur     []string
		kind    = blockText
		fence   string
		inCode  bool
		openTag string
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		text := strings.Join(cur, "\n")
		if kind != blockCode {
			text = strings.Trim(text, "\n")
		}
		blocks = append(blocks, mdBlock{text: text, kind: kind, fence: fence})
		cur, kind, fence = nil, blockText, ""
	}

	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		marker := fenceMarker(trimmed)

		if inCode {
			cur = append(cur, line)
			if marker != "" && marker == openTag {
				inCode, openTag = false, ""
				flush()
			}
			continue
		}
		switch {
		case marker != "":
			flush()
			inCode, openTag = true, marker
			kind, fence = blockCode, marker
			cur = append(cur, line)
		case trimmed == "":
			flush()
		case headingLine.MatchString(trimmed):
			flush()
			blocks = append(blocks, mdBlock{text: trimmed, kind: blockHeading})
		default:
			lk := classifyLine(trimmed)
			if len(cur) == 0 {
				kind = lk
			} else if kind != lk {
				flush()
				kind = lk
			}
			cur = append(cur, line)
		}
	}
	flush()
	return blocks
}

func buildChunks(blocks []mdBlock, maxRunes int) []string {
	const sep = "\n\n"
	var (
		chunks []string
		cur    []string
		n      int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Trim(strings.Join(cur, sep), "\n"))
		cur, n = nil, 0
	}

	for _, b := range blocks {
		content := strings.Trim(b.text, "\n")
		if b.kind == blockCode {
			content = strings.TrimRight(b.text, " \t\n")
		}
		if content == "" {
			continue
		}
		size := utf8.RuneCountInString(content)

		if size >= maxRunes {
			flush()
			if b.kind == blockCode {
				chunks = append(chunks, splitCodeBlock(content, b.fence, maxRunes)...)
			} else {
				chunks = append(chunks, splitLines(content, maxRunes)...)
			}
			continue
		}
		if b.kind == blockHeading && len(cur) > 0 {
			flush()
		}
		extra := 0
		if len(cur) > 0 {
			extra = len(sep)
		}
		if len(cur) > 0 && n+extra+size > maxRunes {
			flush()
			extra = 0
		}
		cur = append(cur, content)
		n += extra + size
	}
	flush()
	return chunks
}

// splitLines packs whole lines into pieces of at most maxRunes runes.
func splitLines(text string, maxRunes int) []string {
	var (
		out []string
		cur []string
		n   int
	)
	flush := func() {
		if piece := strings.Trim(strings.Join(cur, "\n"), "\n"); piece != "" {
			out = append(out, piece)
		}
		cur, n = nil, 0
	}
	for _, line := range strings.Split(text, "\n") {
		size := utf8.RuneCountInString(line)
		if size > maxRunes {
			flush()
			out = append(out, hardSplit(line, maxRunes)...)
			continue
		}
		if len(cur) > 0 && n+1+size > maxRunes {
			flush()
		}
		if len(cur) > 0 {
			n++
		}
		cur = append(cur, line)
		n += size
	}
	flush()
	return out
}

// splitCodeBlock re-wraps every piece of an oversized code block in fences.
func splitCodeBlock(text, marker string, maxRunes int) []string {
	if marker == "" {
		marker = "```"
	}
	lines := strings.Split(text, "\n")
	open, closing := marker, marker
	if len(lines) > 0 && fenceMarker(strings.TrimSpace(lines[0])) != "" {
		open, lines = lines[0], lines[1:]
	}
	if len(lines) > 0 && fenceMarker(strings.TrimSpace(lines[len(lines)-1])) != "" {
		closing, lines = lines[len(lines)-1], lines[:len(lines)-1]
	}
	overhead := utf8.RuneCountInString(open) + utf8.RuneCountInString(closing) + 2
	room := max(maxRunes-overhead, 1)

	wrap := func(body []string) string {
		return strings.Join(append(append([]string{open}, body...), closing), "\n")
	}
	var (
		out []string
		cur []string
		n   int
	)
	for _, line := range lines {
		size := utf8.RuneCountInString(line)
		if size > room {
			if len(cur) > 0 {
				out = append(out, wrap(cur))
				cur, n = nil, 0
			}
			for _, piece := range hardSplit(line, room) {
				out = append(out, wrap([]string{piece}))
			}
			continue
		}
		if len(cur) > 0 && n+1+size > room {
			out = append(out, wrap(cur))
			cur, n = nil, 0
		}
		if len(cur) > 0 {
			n++
		}
		cur = append(cur, line)
		n += size
	}
	if len(cur) > 0 || len(out) == 0 {
		out = append(out, wrap(cur))
	}
	return out
}

func hardSplit(s string, maxRunes int) []string {
	rs := []rune(s)
	var out []string
	for start := 0; start < len(rs); start += maxRunes {
		end := min(start+maxRunes, len(rs))
		if piece := strings.TrimSpace(string(rs[start:end])); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func classifyLine(line string) blockKind {
	switch {
	case listLine.MatchString(line):
		return blockList
	case strings.HasPrefix(line, ">"):
		return blockQuote
	case tableLine.MatchString(line):
		return blockTable
	default:
		return blockText
	}
}

func fenceMarker(line string) string {
	switch {
	case strings.HasPrefix(line, "```"):
		return "```"
	case strings.HasPrefix(line, "~~~"):
		return "~~~"
	default:
		return ""
	}
}
