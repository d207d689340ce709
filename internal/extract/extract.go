// Package extract turns fetched HTML into plain readable text for callers
// that asked for text rather than markup.
package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Document is the simplified view of a fetched page.
type Document struct {
	Title string
	Text  string
}

// skipTags are subtrees that never contribute readable text.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "footer": true, "aside": true, "iframe": true,
	"svg": true, "form": true,
}

// blockTags get a line break after their content so paragraphs stay apart.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "blockquote": true, "pre": true,
	"table": true, "ul": true, "ol": true,
}

// FromHTML extracts the title and readable text from an HTML document,
// preferring <main> or <article> as the content root and falling back to
// <body>. Parse failures yield an empty Document rather than an error.
func FromHTML(input []byte) Document {
	root, err := html.Parse(bytes.NewReader(input))
	if err != nil || root == nil {
		return Document{}
	}
	content := firstElement(root, "main")
	if content == nil {
		content = firstElement(root, "article")
	}
	if content == nil {
		content = firstElement(root, "body")
	}
	if content == nil {
		content = root
	}
	var b strings.Builder
	walkText(&b, content)
	return Document{
		Title: strings.TrimSpace(textOf(firstElement(root, "title"))),
		Text:  tidy(b.String()),
	}
}

func firstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func walkText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		name := strings.ToLower(n.Data)
		if skipTags[name] {
			return
		}
		if name == "br" || name == "hr" {
			b.WriteString("\n")
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(b, c)
	}
	if n.Type == html.ElementNode && blockTags[strings.ToLower(n.Data)] {
		b.WriteString("\n")
	}
}

// tidy collapses whitespace runs inside lines and squeezes repeated blank
// lines down to one.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) == 0 || out[len(out)-1] == "" {
				continue
			}
		}
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
