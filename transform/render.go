package transform

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

// StylesheetPath is location of the book stylesheet relative to content root.
const StylesheetPath = "Styles/stylesheet.css"

// createXHTMLDocument prepares empty chapter document and returns it with the
// body element.
func createXHTMLDocument(title, lang string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("html")
	root.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	if lang != "" {
		root.CreateAttr("xml:lang", lang)
	}

	head := root.CreateElement("head")

	meta := head.CreateElement("meta")
	meta.CreateAttr("http-equiv", "Content-Type")
	meta.CreateAttr("content", "text/html; charset=utf-8")

	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", "../"+StylesheetPath)

	head.CreateElement("title").SetText(title)

	return doc, root.CreateElement("body")
}

// Render produces XHTML chapter document: title heading followed by children
// of content node. Anything XML cannot represent (comments, doctype, invalid
// names) is dropped, so result is always well formed.
func Render(title, lang string, content *html.Node) ([]byte, error) {
	title = xmlText(title)
	doc, body := createXHTMLDocument(title, lang)

	body.CreateElement("h1").SetText(title)
	section := body.CreateElement("div")
	section.CreateAttr("class", "chapter")

	for c := content.FirstChild; c != nil; c = c.NextSibling {
		appendNode(section, c)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("unable to serialize document: %w", err)
	}
	return buf.Bytes(), nil
}

func appendNode(parent *etree.Element, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if text := xmlText(n.Data); text != "" {
			parent.CreateText(text)
		}
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if !validXMLName(name) {
			// keep content of elements we cannot express
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				appendNode(parent, c)
			}
			return
		}
		el := parent.CreateElement(name)
		seen := make(map[string]bool, len(n.Attr))
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if a.Namespace != "" || seen[key] || !validXMLName(key) || strings.HasPrefix(key, "on") {
				continue
			}
			seen[key] = true
			el.CreateAttr(key, xmlText(a.Val))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			appendNode(el, c)
		}
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			appendNode(parent, c)
		}
	}
}

// validXMLName accepts simple XML names without namespace prefixes.
func validXMLName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

// xmlText removes characters XML 1.0 does not allow.
func xmlText(s string) string {
	valid := func(r rune) bool {
		return r == 0x09 || r == 0x0A || r == 0x0D ||
			(r >= 0x20 && r <= 0xD7FF) || (r >= 0xE000 && r <= 0xFFFD) || (r >= 0x10000 && r <= 0x10FFFF)
	}
	clean := true
	for _, r := range s {
		if r == utf8.RuneError || !valid(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == utf8.RuneError || !valid(r) {
			return -1
		}
		return r
	}, s)
}
