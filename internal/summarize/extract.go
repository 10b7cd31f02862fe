package summarize

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the readable part of a page rendered as Markdown.
type Document struct {
	Title    string
	Markdown string
}

// Extract parses page HTML, drops script/style/noscript, makes href/src
// absolute against baseURL, picks the main container and renders it.
//
// The container is the first of article, main, div#content, section, falling
// back to body.
func Extract(page []byte, baseURL string) (Document, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return Document{}, fmt.Errorf("%w: parse html: %v", ErrExtract, err)
	}

	stripNoise(doc)
	if base, err := url.Parse(baseURL); err == nil && base.IsAbs() {
		absolutize(doc, base)
	}

	var title string
	if t := findFirst(doc, isAtom(atom.Title)); t != nil {
		title = collapseSpace(textContent(t))
	}

	main := pickContainer(doc)
	md := renderMarkdown(main)
	if md == "" {
		return Document{Title: title}, ErrExtract
	}
	return Document{Title: title, Markdown: md}, nil
}

func pickContainer(doc *html.Node) *html.Node {
	candidates := []func(*html.Node) bool{
		isAtom(atom.Article),
		isAtom(atom.Main),
		func(n *html.Node) bool { return n.DataAtom == atom.Div && attr(n, "id") == "content" },
		isAtom(atom.Section),
		isAtom(atom.Body),
	}
	for _, match := range candidates {
		if n := findFirst(doc, match); n != nil {
			return n
		}
	}
	return doc
}

func stripNoise(doc *html.Node) {
	var drop []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type == html.CommentNode {
			drop = append(drop, n)
			return
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			drop = append(drop, n)
		}
	})
	for _, n := range drop {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func absolutize(doc *html.Node, base *url.URL) {
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		for i, a := range n.Attr {
			if a.Namespace != "" || (a.Key != "href" && a.Key != "src") {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(a.Val))
			if err != nil {
				continue
			}
			n.Attr[i].Val = base.ResolveReference(ref).String()
		}
	})
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isAtom(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
