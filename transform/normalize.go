package transform

import (
	"bytes"
	"strconv"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// elements which never make it into the book
var strippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Form:     true,
	atom.Noscript: true,
	atom.Object:   true,
	atom.Embed:    true,
}

// Normalize fixes markup which renders poorly on readers. It works in place
// and running it again on its own output changes nothing.
func Normalize(root *html.Node, tableWidth int) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			switch {
			case c.Type == html.CommentNode:
				n.RemoveChild(c)
			case c.Type == html.ElementNode && strippedElements[c.DataAtom]:
				n.RemoveChild(c)
			case c.Type == html.ElementNode:
				fixElement(c, tableWidth)
				walk(c)
			}
			c = next
		}
	}
	walk(root)
}

func fixElement(n *html.Node, tableWidth int) {
	switch n.DataAtom {
	case atom.Table, atom.Td, atom.Th:
		if tableWidth > 0 {
			if i := attrIndex(n, "width"); i >= 0 {
				n.Attr[i].Val = strconv.Itoa(tableWidth)
			}
		}
	}

	i := attrIndex(n, "align")
	if i < 0 {
		return
	}
	align := strings.ToLower(strings.TrimSpace(n.Attr[i].Val))
	n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
	if align == "" {
		return
	}

	j := attrIndex(n, "style")
	if j < 0 {
		n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: buildStyleAttr("", align)})
		return
	}
	if !hasDeclaration(n.Attr[j].Val, "text-align") {
		n.Attr[j].Val = buildStyleAttr(n.Attr[j].Val, align)
	}
}

func attrIndex(n *html.Node, key string) int {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return i
		}
	}
	return -1
}

func buildStyleAttr(baseStyle, align string) string {
	style := strings.TrimSpace(baseStyle)
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	if style != "" {
		style += " "
	}
	return style + "text-align: " + align + ";"
}

// hasDeclaration checks inline style for property declaration.
func hasDeclaration(style, property string) bool {
	parser := css.NewParser(parse.NewInput(bytes.NewBufferString(style)), true)
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return false
		case css.DeclarationGrammar:
			if strings.EqualFold(string(data), property) {
				return true
			}
		}
	}
}
