package source

import (
	"strings"

	"golang.org/x/net/html"
)

type matcher func(*html.Node) bool

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

// element matches tag name and, when key is not empty, attribute value.
func element(tag, key, val string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != tag {
			return false
		}
		return key == "" || attr(n, key) == val
	}
}

func byClass(class string) matcher {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for c := range strings.FieldsSeq(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func byID(id string) matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	}
}

// find returns first descendant of n in document order matching all
// matchers in sequence, each next one applied to descendants of previous
// match.
func find(n *html.Node, chain ...matcher) *html.Node {
	if n == nil {
		return nil
	}
	if len(chain) == 0 {
		return n
	}
	for d := range n.Descendants() {
		if chain[0](d) {
			if found := find(d, chain[1:]...); found != nil {
				return found
			}
		}
	}
	return nil
}

func findAll(n *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	for d := range n.Descendants() {
		if m(d) {
			out = append(out, d)
		}
	}
	return out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			sb.WriteString(d.Data)
		}
	}
	return sb.String()
}

// normalizeSpace collapses whitespace runs into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
