package transform

import (
	"slices"

	"golang.org/x/net/html"
)

// cloneNode creates a deep copy of the html subtree, so chapter fetched by the
// source is never modified.
func cloneNode(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      slices.Clone(n.Attr),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneNode(child))
	}
	return c
}
