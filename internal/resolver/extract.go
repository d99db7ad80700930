package resolver

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultPatterns are the media extraction patterns in priority order.
// Each pattern's first capture group (or the whole match) is the media link.
var DefaultPatterns = []string{
	`(/sites/default/files/[^"']+?\.mp3)`,
	`href="(/sites/default/files/[^"]+\.mp3)"`,
	`href='(/sites/default/files/[^']+\.mp3)'`,
	`(/sites/default/files/\S+\.mp3)`,
	`(https?://[^"'>\s]+\.mp3)`,
}

// titleSelectors are tried in order; the first non-empty text wins.
var titleSelectors = []string{"h1", "h2", "meta[property='og:title']", "title"}

// CompilePatterns compiles raw patterns, preserving their order.
func CompilePatterns(raw []string) ([]*regexp.Regexp, error) {
	if len(raw) == 0 {
		raw = DefaultPatterns
	}
	out := make([]*regexp.Regexp, 0, len(raw))
	for i, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %d %q: %w", i, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// ExtractMediaURL applies patterns in priority order over the raw page text.
// The first pattern that matches anywhere wins, and within that pattern the
// leftmost match is used, so the result depends only on pattern order.
// It returns the matched link and the index of the winning pattern.
func ExtractMediaURL(text string, patterns []*regexp.Regexp) (string, int, bool) {
	for i, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		link := m[0]
		if len(m) > 1 && m[1] != "" {
			link = m[1]
		}
		return link, i, true
	}
	return "", -1, false
}

// ExtractTitle returns the first heading-like text in the document, or "".
func ExtractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range titleSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := node.Text()
		if content, ok := node.Attr("content"); ok {
			text = content
		}
		if title := collapseSpace(text); title != "" {
			return title
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
