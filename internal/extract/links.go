package extract

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// urlPattern finds scheme-anchored URLs in free text
var urlPattern = regexp.MustCompile(`(?i)\b((?:https?://|ftp://)[^\s<>"'()]{2,})`)

// Link is an anchor found in HTML content. Text is empty for raw URLs
// found outside of anchors.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// FindURLs returns every URL in text in order of appearance, duplicates included
func FindURLs(text string) []string {
	matches := urlPattern.FindAllStringSubmatch(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, m[1])
	}
	return urls
}

// uniqueSorted de-duplicates and sorts a list of strings
func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// extractAnchors walks the HTML token stream and returns one Link per
// anchor carrying an href attribute. Anchor text is the trimmed text nodes
// joined by single spaces.
func extractAnchors(doc string) []Link {
	z := html.NewTokenizer(strings.NewReader(doc))

	var (
		links    []Link
		inAnchor bool
		href     string
		texts    []string
	)
	closeAnchor := func() {
		nonEmpty := texts[:0]
		for _, t := range texts {
			if t != "" {
				nonEmpty = append(nonEmpty, t)
			}
		}
		links = append(links, Link{Href: href, Text: strings.Join(nonEmpty, " ")})
		inAnchor = false
		href = ""
		texts = nil
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; an unterminated anchor is dropped
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				continue
			}
			href, inAnchor = anchorHref(tok)
			texts = nil
			if tt == html.SelfClosingTagToken && inAnchor {
				closeAnchor()
			}
		case html.TextToken:
			if inAnchor {
				texts = append(texts, strings.TrimSpace(string(z.Text())))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "a" && inAnchor {
				closeAnchor()
			}
		}
	}
}

func anchorHref(tok html.Token) (string, bool) {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, "href") {
			return a.Val, true
		}
	}
	return "", false
}

// appendRawURLs adds URLs that appear anywhere in the markup as links with
// empty text, skipping hrefs that are already known
func appendRawURLs(links []Link, doc string, known map[string]struct{}) []Link {
	for _, u := range FindURLs(doc) {
		if _, ok := known[u]; ok {
			continue
		}
		known[u] = struct{}{}
		links = append(links, Link{Href: u})
	}
	return links
}
