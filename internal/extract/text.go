package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// collapse squeezes whitespace runs to one space and trims.
func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// ownTexts returns the direct text-node children of every node in sel, in
// document order.
func ownTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if n := c.Get(0); n != nil && n.Type == html.TextNode {
				out = append(out, n.Data)
			}
		})
	})
	return out
}

// descendantTexts returns every text node below sel, in document order.
func descendantTexts(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// firstOwnText returns the first non-blank own text of sel, trimmed.
func firstOwnText(sel *goquery.Selection) string {
	for _, t := range ownTexts(sel) {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
