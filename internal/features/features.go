// Package features derives heuristic phishing signals from parsed message
// headers and content. Build is a pure function of its inputs.
package features

import (
	"sort"

	"github.com/mikey/phish-filter/internal/domains"
	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/lexicon"
)

// Risk score weights
const (
	returnPathMismatchPoints = 3
	replyToMismatchPoints    = 2
	authFailurePoints        = 3
	linkMismatchPoints       = 2
	visibleHrefPoints        = 2
	urgencyPoints            = 1

	// UrgencyThreshold is the urgency score from which urgency counts as a
	// risk signal
	UrgencyThreshold = 3
	// AttachmentThreshold is the attachment score from which attachments are
	// reported as suspicious
	AttachmentThreshold = 3
)

// FeatureSet is the fixed set of signals computed for one message
type FeatureSet struct {
	From             string `json:"from"`
	FromDomain       string `json:"from_domain"`
	ReplyTo          string `json:"reply_to"`
	ReplyToDomain    string `json:"reply_to_domain"`
	ReturnPath       string `json:"return_path"`
	ReturnPathDomain string `json:"return_path_domain"`
	Subject          string `json:"subject"`
	Date             string `json:"date"`
	MessageID        string `json:"message_id"`
	MessageIDDomain  string `json:"message_id_domain"`
	OriginIP         string `json:"origin_ip"`
	ReceivedCount    int    `json:"received_count"`

	SPFResult   string `json:"spf_result"`
	DKIMResult  string `json:"dkim_result"`
	DMARCResult string `json:"dmarc_result"`

	AllLinkDomains  []string       `json:"all_link_domains"`
	LinkDomainsHTML []string       `json:"link_domains_html"`
	LinkDomainsText []string       `json:"link_domains_text"`
	LinksInHTMLRaw  []extract.Link `json:"links_in_html_raw"`

	UrgencyScore             int  `json:"urgency_score"`
	AttachmentSuspicionScore int  `json:"attachment_suspicion_score"`
	FromReplyToMismatch      bool `json:"from_vs_replyto_mismatch"`
	FromReturnPathMismatch   bool `json:"from_vs_returnpath_mismatch"`
	LinkDomainMismatch       bool `json:"link_domain_mismatch"`
	VisibleHrefMismatch      bool `json:"visible_vs_href_mismatch"`

	AttachmentCount int `json:"attachment_count"`
	URLCountText    int `json:"url_count_text"`
	URLCountHTML    int `json:"url_count_html"`

	RiskScore int `json:"risk_score_v1"`
}

// Auth returns the raw authentication tokens
func (f *FeatureSet) Auth() AuthResults {
	return AuthResults{SPF: f.SPFResult, DKIM: f.DKIMResult, DMARC: f.DMARCResult}
}

// AuthFailed reports whether any authentication mechanism failed
func (f *FeatureSet) AuthFailed() bool {
	return f.Auth().Failed()
}

// HardFlagCount counts the flags that weigh directly on the fused score:
// visible/href, return-path, reply-to and authentication failure
func (f *FeatureSet) HardFlagCount() int {
	n := 0
	for _, flag := range []bool{f.VisibleHrefMismatch, f.FromReturnPathMismatch, f.FromReplyToMismatch, f.AuthFailed()} {
		if flag {
			n++
		}
	}
	return n
}

type urgencyTerm struct {
	word string
	stem string
}

// Engine computes feature sets against one set of lexicon tables. It is
// immutable and safe for concurrent use.
type Engine struct {
	tables          *lexicon.Tables
	resolver        *domains.Resolver
	urgencyTerms    []urgencyTerm
	emphasisPhrases []string
}

// NewEngine creates an engine for the given tables
func NewEngine(tables *lexicon.Tables) *Engine {
	e := &Engine{
		tables:   tables,
		resolver: domains.NewResolver(tables),
	}
	for _, w := range tables.UrgencyWords {
		folded := foldText(w)
		if folded == "" {
			continue
		}
		e.urgencyTerms = append(e.urgencyTerms, urgencyTerm{word: folded, stem: stem(folded)})
	}
	for _, p := range tables.EmphasisPhrases {
		if folded := foldText(p); folded != "" {
			e.emphasisPhrases = append(e.emphasisPhrases, folded)
		}
	}
	return e
}

// LexiconVersion returns the version of the tables in use
func (e *Engine) LexiconVersion() string {
	return e.tables.Version
}

// Build computes the feature set of one message
func (e *Engine) Build(headers extract.HeaderMap, content extract.Content) FeatureSet {
	f := FeatureSet{
		From:       headers.Get("From"),
		ReplyTo:    headers.Get("Reply-To"),
		ReturnPath: headers.Get("Return-Path"),
		Subject:    headers.Get("Subject"),
		Date:       headers.Get("Date"),
		MessageID:  headers.Get("Message-ID"),
	}
	f.FromDomain = DomainOfAddress(f.From)
	f.ReplyToDomain = DomainOfAddress(f.ReplyTo)
	f.ReturnPathDomain = DomainOfAddress(f.ReturnPath)
	f.MessageIDDomain = DomainOfAddress(f.MessageID)

	auth := ParseAuthResults(headers.Get("Authentication-Results"))
	f.SPFResult, f.DKIMResult, f.DMARCResult = auth.SPF, auth.DKIM, auth.DMARC

	received := headers.Values("Received")
	f.ReceivedCount = len(received)
	f.OriginIP = OriginIP(received)

	links := content.LinksInHTML
	if links == nil {
		links = []extract.Link{}
	}
	f.LinksInHTMLRaw = links
	f.LinkDomainsHTML = linkDomains(links)
	f.LinkDomainsText = urlDomains(content.URLsInText)
	f.AllLinkDomains = mergeSorted(f.LinkDomainsHTML, f.LinkDomainsText)

	f.UrgencyScore = e.urgencyScore(f.Subject, content.TextPlain)
	f.AttachmentSuspicionScore = AttachmentScore(e.tables, content.Attachments)
	f.LinkDomainMismatch = linkDomainMismatch(links, f.FromDomain)
	f.VisibleHrefMismatch = visibleHrefMismatch(links)
	f.FromReplyToMismatch = e.mismatch(f.FromDomain, f.ReplyToDomain)
	f.FromReturnPathMismatch = e.mismatch(f.FromDomain, f.ReturnPathDomain)

	f.AttachmentCount = len(content.Attachments)
	f.URLCountText = len(content.URLsInText)
	f.URLCountHTML = len(links)

	f.RiskScore = RiskScore(&f)
	return f
}

// mismatch is true only when both domains are known and unrelated
func (e *Engine) mismatch(a, b string) bool {
	return a != "" && b != "" && !e.resolver.Related(a, b)
}

// RiskScore is the weighted sum of the boolean signals and bounded scores
func RiskScore(f *FeatureSet) int {
	score := 0
	if f.FromReturnPathMismatch {
		score += returnPathMismatchPoints
	}
	if f.FromReplyToMismatch {
		score += replyToMismatchPoints
	}
	if f.AuthFailed() {
		score += authFailurePoints
	}
	if f.LinkDomainMismatch {
		score += linkMismatchPoints
	}
	if f.VisibleHrefMismatch {
		score += visibleHrefPoints
	}
	score += f.AttachmentSuspicionScore / 2
	if f.UrgencyScore >= UrgencyThreshold {
		score += urgencyPoints
	}
	return score
}

func linkDomains(links []extract.Link) []string {
	hrefs := make([]string, 0, len(links))
	for _, l := range links {
		hrefs = append(hrefs, l.Href)
	}
	return urlDomains(hrefs)
}

func urlDomains(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		d := DomainOfURL(u)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, d := range list {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
