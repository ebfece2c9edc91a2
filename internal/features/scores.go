package features

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/lexicon"
)

const (
	maxUrgencyScore    = 5
	maxAttachmentScore = 6
	exclamationTrigger = 3
	minShoutLength     = 4
)

var (
	stemSuffixes = []string{"ar", "er", "ir", "es"}

	schemePattern    = regexp.MustCompile(`(?i)https?://`)
	bareHostPattern  = regexp.MustCompile(`(?i)\b[a-z0-9\-]+\.[a-z]{2,}\b`)
	guessHostPattern = regexp.MustCompile(`(?i)\b([a-z0-9\-.]+\.[a-z]{2,})\b`)
)

// foldText lowercases text and strips combining marks
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}

// stem strips one trailing Spanish inflection
func stem(word string) string {
	base := word
	stripped := false
	for _, suffix := range stemSuffixes {
		if strings.HasSuffix(word, suffix) {
			base = strings.TrimSuffix(word, suffix)
			stripped = true
			break
		}
	}
	if !stripped && strings.HasSuffix(word, "s") {
		base = strings.TrimSuffix(word, "s")
	}
	if base == "" {
		return word
	}
	return base
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsWord reports whether word occurs in text bounded by non-word
// characters on both sides
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return !isWordRune(r)
}

func boundaryAfter(text string, pos int) bool {
	if pos >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return !isWordRune(r)
}

// hasShoutedWord reports whether text holds a word of at least four
// uppercase letters, accented vowels included
func hasShoutedWord(text string) bool {
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) }) {
		n := 0
		shouted := true
		for _, r := range w {
			if !isShoutRune(r) {
				shouted = false
				break
			}
			n++
		}
		if shouted && n >= minShoutLength {
			return true
		}
	}
	return false
}

func isShoutRune(r rune) bool {
	if r >= 'A' && r <= 'Z' {
		return true
	}
	switch r {
	case 'Á', 'É', 'Í', 'Ó', 'Ú':
		return true
	}
	return false
}

// urgencyScore counts distinct urgency stems plus emphasis signals, capped at 5
func (e *Engine) urgencyScore(subject, body string) int {
	raw := subject + "\n" + body
	corpus := foldText(raw)

	hits := make(map[string]struct{})
	for _, term := range e.urgencyTerms {
		if containsWord(corpus, term.word) {
			hits[term.stem] = struct{}{}
		}
	}
	score := len(hits)

	for _, phrase := range e.emphasisPhrases {
		if strings.Contains(corpus, phrase) {
			score++
			break
		}
	}
	if strings.Count(raw, "!") >= exclamationTrigger {
		score++
	}
	if hasShoutedWord(subject) {
		score++
	}
	return clamp(score, 0, maxUrgencyScore)
}

// AttachmentScore sums extension tier weights over attachments, capped at 6
func AttachmentScore(tables *lexicon.Tables, attachments []extract.Attachment) int {
	score := 0
	for _, a := range attachments {
		score += tables.ExtensionRisk(a.Extension).Weight()
	}
	return clamp(score, 0, maxAttachmentScore)
}

// linkDomainMismatch reports whether any link points outside the sender's
// exact domain. Subdomains count as a mismatch.
func linkDomainMismatch(links []extract.Link, fromDomain string) bool {
	if fromDomain == "" {
		return false
	}
	for _, l := range links {
		if d := DomainOfURL(l.Href); d != "" && d != fromDomain {
			return true
		}
	}
	return false
}

// visibleHrefMismatch reports whether any link text looks like a URL or a
// domain that differs from where the link actually goes
func visibleHrefMismatch(links []extract.Link) bool {
	for _, l := range links {
		text := strings.TrimSpace(l.Text)
		if text == "" || l.Href == "" {
			continue
		}
		if !schemePattern.MatchString(text) && !bareHostPattern.MatchString(text) {
			continue
		}
		shown := DomainOfURL(text)
		if shown == "" {
			shown = guessDomain(text)
		}
		actual := DomainOfURL(l.Href)
		if shown != "" && actual != "" && shown != actual {
			return true
		}
	}
	return false
}

func guessDomain(text string) string {
	m := guessHostPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
