package workspace

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipElements are elements whose content never carries filing text. SEC
// documents ship with large style blocks and inline-XBRL headers that would
// otherwise dominate the extracted text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Title:    true,
}

// HTMLToText reduces filing markup to readable plain text: tags dropped,
// block boundaries become blank lines, whitespace collapsed. Malformed input
// falls back to a tag-stripping tokenizer pass.
func HTMLToText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return stripTags(raw)
	}
	var b strings.Builder
	appendText(doc, &b)
	return collapseWhitespace(b.String())
}

func appendText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		// Inline XBRL hides a metadata header in a namespaced element the
		// parser leaves atom-less.
		if n.DataAtom == 0 && strings.EqualFold(n.Data, "ix:header") {
			return
		}
		if isBlockElement(n.DataAtom) && b.Len() > 0 {
			b.WriteString("\n\n")
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			b.WriteString(text)
			b.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(c, b)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li || n.DataAtom == atom.Tr) {
		b.WriteString("\n")
	}
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Dl, atom.Dd, atom.Dt, atom.Hr:
		return true
	}
	return false
}

// collapseWhitespace squeezes runs of spaces within lines and runs of blank
// lines down to one.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

func stripTags(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// EOF or malformed input; return whatever text accumulated.
			return collapseWhitespace(b.String())
		case html.TextToken:
			b.WriteString(tokenizer.Token().Data)
			b.WriteString(" ")
		}
	}
}
