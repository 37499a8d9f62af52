package source

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var paragraphElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.Article:    true,
	atom.Section:    true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
}

var lineElements = map[atom.Atom]bool{
	atom.Br: true,
	atom.Li: true,
	atom.Tr: true,
	atom.Dt: true,
	atom.Dd: true,
}

// textBuilder flattens an html tree into plain text. Block elements become
// blank-line separated paragraphs and list items become lines.
type textBuilder struct {
	b        strings.Builder
	pending  string
	endSpace bool
}

func (t *textBuilder) brk(sep string) {
	if t.b.Len() == 0 {
		return
	}
	if len(sep) > len(t.pending) {
		t.pending = sep
	}
}

func (t *textBuilder) write(text string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		if text != "" {
			t.endSpace = true
		}
		return
	}
	first, _ := utf8.DecodeRuneInString(text)
	last, _ := utf8.DecodeLastRuneInString(text)
	switch {
	case t.pending != "":
		t.b.WriteString(t.pending)
		t.pending = ""
	case t.b.Len() > 0 && (t.endSpace || unicode.IsSpace(first)):
		t.b.WriteByte(' ')
	}
	t.b.WriteString(strings.Join(words, " "))
	t.endSpace = unicode.IsSpace(last)
}

func (t *textBuilder) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		t.write(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	}
	sep := ""
	if n.Type == html.ElementNode {
		switch {
		case paragraphElements[n.DataAtom]:
			sep = "\n\n"
		case lineElements[n.DataAtom]:
			sep = "\n"
		}
	}
	if sep != "" {
		t.brk(sep)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		t.walk(c)
	}
	if sep != "" {
		t.brk(sep)
	}
}

func (t *textBuilder) String() string {
	return t.b.String()
}

func visibleText(n *html.Node) string {
	t := &textBuilder{}
	t.walk(n)
	return t.String()
}

// htmlToText renders an html fragment, such as a feed summary, as plain text.
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return visibleText(doc)
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
