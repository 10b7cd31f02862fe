package summarize

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// mdWriter renders an HTML subtree as Markdown: ATX headings, paragraphs,
// lists, links, images, emphasis, code, blockquotes and simple tables.
type mdWriter struct {
	b strings.Builder
}

func renderMarkdown(n *html.Node) string {
	var w mdWriter
	w.children(n)
	return tidy(w.b.String())
}

// renderInline renders n's children on a single line.
func renderInline(n *html.Node) string {
	return collapseSpace(renderMarkdown(n))
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.node(c)
	}
}

func (w *mdWriter) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
	case html.ElementNode:
		w.element(n)
	case html.DocumentNode:
		w.children(n)
	}
}

// needsSpace reports whether a separating space is due before the next word.
func (w *mdWriter) needsSpace() bool {
	s := w.b.String()
	return s != "" && !isSpace(s[len(s)-1])
}

func (w *mdWriter) text(s string) {
	if s == "" {
		return
	}
	lead := isSpace(s[0])
	trail := isSpace(s[len(s)-1])
	body := collapseSpace(s)
	if body == "" {
		if w.needsSpace() {
			w.b.WriteByte(' ')
		}
		return
	}
	if lead && w.needsSpace() {
		w.b.WriteByte(' ')
	}
	w.b.WriteString(body)
	if trail {
		w.b.WriteByte(' ')
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f'
}

func (w *mdWriter) block(s string) {
	w.b.WriteString("\n\n")
	w.b.WriteString(s)
	w.b.WriteString("\n\n")
}

func (w *mdWriter) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Head, atom.Title, atom.Script, atom.Style, atom.Noscript, atom.Template:
		return

	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		if txt := renderInline(n); txt != "" {
			w.block(strings.Repeat("#", level) + " " + txt)
		}

	case atom.Br:
		w.b.WriteString("\n")

	case atom.Hr:
		w.block("---")

	case atom.Pre:
		code := strings.Trim(textContent(n), "\n")
		if code != "" {
			w.block("```\n" + code + "\n```")
		}

	case atom.Ul, atom.Ol:
		if list := renderList(n); list != "" {
			w.block(list)
		}

	case atom.Blockquote:
		inner := renderMarkdown(n)
		if inner == "" {
			return
		}
		lines := strings.Split(inner, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimRight("> "+l, " ")
		}
		w.block(strings.Join(lines, "\n"))

	case atom.Table:
		if t := renderTable(n); t != "" {
			w.block(t)
		}

	case atom.A:
		txt := renderInline(n)
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			w.b.WriteString(txt)
			return
		}
		if txt == "" {
			txt = href
		}
		w.b.WriteString("[" + txt + "](" + href + ")")

	case atom.Img:
		if src := strings.TrimSpace(attr(n, "src")); src != "" {
			w.b.WriteString("![" + collapseSpace(attr(n, "alt")) + "](" + src + ")")
		}

	case atom.Strong, atom.B:
		w.wrap(n, "**")

	case atom.Em, atom.I:
		w.wrap(n, "*")

	case atom.Del, atom.S:
		w.wrap(n, "~~")

	case atom.Code:
		if code := strings.TrimSpace(textContent(n)); code != "" {
			w.b.WriteString("`" + code + "`")
		}

	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer,
		atom.Aside, atom.Nav, atom.Figure, atom.Figcaption, atom.Dl, atom.Dt, atom.Dd, atom.Details:
		w.b.WriteString("\n\n")
		w.children(n)
		w.b.WriteString("\n\n")

	default:
		w.children(n)
	}
}

func (w *mdWriter) wrap(n *html.Node, mark string) {
	if txt := renderInline(n); txt != "" {
		w.b.WriteString(mark + txt + mark)
	}
}

func renderList(n *html.Node) string {
	ordered := n.DataAtom == atom.Ol
	var out []string
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		i++
		marker := "- "
		if ordered {
			marker = strconv.Itoa(i) + ". "
		}
		item := renderMarkdown(c)
		if item == "" {
			continue
		}
		pad := strings.Repeat(" ", len(marker))
		lines := strings.Split(item, "\n")
		for j, l := range lines {
			switch {
			case j == 0:
				lines[j] = marker + l
			case l != "":
				lines[j] = pad + l
			}
		}
		out = append(out, strings.Join(lines, "\n"))
	}
	return strings.Join(out, "\n")
}

func renderTable(n *html.Node) string {
	var rows [][]string
	walk(n, func(c *html.Node) {
		if c.Type != html.ElementNode || c.DataAtom != atom.Tr {
			return
		}
		var cells []string
		for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
			if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
				cells = append(cells, strings.ReplaceAll(renderInline(cell), "|", `\|`))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range rows {
		b.WriteString("| " + strings.Join(r, " | ") + " |")
		if i == 0 {
			sep := make([]string, len(r))
			for j := range sep {
				sep[j] = "---"
			}
			b.WriteString("\n| " + strings.Join(sep, " | ") + " |")
		}
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// tidy trims trailing spaces, leading spaces outside indented blocks, and
// collapses runs of blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	inFence := false
	for _, l := range lines {
		if strings.HasPrefix(l, "```") {
			inFence = !inFence
		}
		if !inFence {
			l = strings.TrimRight(l, " \t")
			if !strings.HasPrefix(l, "  ") {
				l = strings.TrimLeft(l, " \t")
			}
		}
		if l == "" && !inFence {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
