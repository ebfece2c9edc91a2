package features

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/lexicon"
)

func newTestEngine() *Engine {
	return NewEngine(lexicon.Default())
}

func TestDomainOfAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{`"Bank" <Alerts@Bank-Example.TEST>`, "bank-example.test"},
		{"user@example.com", "example.com"},
		{"<abc123@mail.example.org>", "mail.example.org"},
		{"'quoted@example.com'", "example.com"},
		{"a@b@c.example", "c.example"},
		{"user@exa mple.com", ""},
		{"no address", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DomainOfAddress(tt.in); got != tt.want {
			t.Errorf("DomainOfAddress(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAuthResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		want   AuthResults
		failed bool
	}{
		{
			name:   "mixed",
			in:     "mx.example.net; spf=pass smtp.mailfrom=x.test; dkim=FAIL header.d=y.test; dmarc=fail (p=reject)",
			want:   AuthResults{SPF: "pass", DKIM: "fail", DMARC: "fail"},
			failed: true,
		},
		{
			name: "spacing and case",
			in:   "mx; SPF = softfail; DKIM=none",
			want: AuthResults{SPF: "softfail", DKIM: "none"},
		},
		{
			name: "all pass",
			in:   "spf=pass dkim=pass dmarc=pass",
			want: AuthResults{SPF: "pass", DKIM: "pass", DMARC: "pass"},
		},
		{
			name: "empty",
			in:   "",
			want: AuthResults{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseAuthResults(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseAuthResults mismatch (-want +got):\n%s", diff)
			}
			if got.Failed() != tt.failed {
				t.Errorf("Failed: got %v, want %v", got.Failed(), tt.failed)
			}
		})
	}
}

func TestOriginIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		received []string
		want     string
	}{
		{"none", nil, ""},
		{
			"last entry wins",
			[]string{"from a ([10.0.0.3])", "from b ([10.0.0.2])", "from origin ([203.0.113.7])"},
			"203.0.113.7",
		},
		{"ipv6 fallback", []string{"from origin ([2001:db8::1])"}, "2001:db8::1"},
		{"ipv4 preferred", []string{"from origin ([2001:db8::1]) via [198.51.100.4]"}, "198.51.100.4"},
		{"only earlier entries have ips", []string{"from a ([10.0.0.3])", "from localhost"}, ""},
	}
	for _, tt := range tests {
		if got := OriginIP(tt.received); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"verificar", "verific"},
		{"verifica", "verifica"},
		{"pagos", "pago"},
		{"urgentes", "urgent"},
		{"vence", "vence"},
		{"es", "es"},
		{"s", "s"},
	}
	for _, tt := range tests {
		if got := stem(tt.in); got != tt.want {
			t.Errorf("stem(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUrgencyScore(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	tests := []struct {
		name          string
		subject, body string
		want          int
	}{
		{"nothing", "Monthly newsletter", "Here is what happened this month.", 0},
		{"whole words only", "pagos", "hoyo", 0},
		{"accents fold and stems merge", "", "Evite la suspensión de servicio", 1},
		{"emphasis phrase", "", "Acción requerida en su perfil", 1},
		{"shouted accented word", "Hola ÚLTIMO aviso", "", 1},
		{"short caps ignored", "ABC NASA4", "", 0},
		{"caps counts once with lexicon hit", "SEGURIDAD", "", 2},
		{"exclamations across subject and body", "Hi!!", "there!", 1},
		{"capped", "URGENTE: verifica tu cuenta hoy!!!", "", 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.urgencyScore(tt.subject, tt.body); got != tt.want {
				t.Errorf("urgencyScore(%q, %q): got %d, want %d", tt.subject, tt.body, got, tt.want)
			}
		})
	}
}

func TestUrgencyScoreBounded(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	all := strings.Join(lexicon.Default().UrgencyWords, " ") + " " + strings.Repeat("!", 20)
	for _, text := range []string{"", all, strings.ToUpper(all), "\xff\xfe", strings.Repeat("hoy ", 1000)} {
		got := e.urgencyScore(text, text)
		if got < 0 || got > maxUrgencyScore {
			t.Errorf("urgencyScore out of range: %d", got)
		}
	}
}

func TestAttachmentScoreMonotone(t *testing.T) {
	t.Parallel()

	tables := lexicon.Default()
	var atts []extract.Attachment
	prev := 0
	for _, ext := range []string{".txt", ".zip", ".exe", ".docm", ".scr", ".iso", ".exe", ".exe"} {
		atts = append(atts, extract.Attachment{Filename: "f" + ext, Extension: ext})
		got := AttachmentScore(tables, atts)
		if got < prev {
			t.Errorf("score decreased after adding %s: %d -> %d", ext, prev, got)
		}
		if got > maxAttachmentScore {
			t.Errorf("score above cap: %d", got)
		}
		prev = got
	}
	if prev != maxAttachmentScore {
		t.Errorf("final score: got %d, want %d", prev, maxAttachmentScore)
	}

	if got := AttachmentScore(tables, []extract.Attachment{{Extension: ".exe"}}); got != 2 {
		t.Errorf("single executable: got %d, want 2", got)
	}
	if got := AttachmentScore(tables, []extract.Attachment{{Extension: ".rar"}}); got != 1 {
		t.Errorf("single archive: got %d, want 1", got)
	}
	if got := AttachmentScore(tables, nil); got != 0 {
		t.Errorf("no attachments: got %d, want 0", got)
	}
}

func TestVisibleHrefMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		link extract.Link
		want bool
	}{
		{"url text to other host", extract.Link{Href: "https://evil.test/x", Text: "https://bank.test/login"}, true},
		{"bare domain text", extract.Link{Href: "https://evil.test/x", Text: "bank.test"}, true},
		{"same host", extract.Link{Href: "https://bank.test/y", Text: "https://bank.test/x"}, false},
		{"case insensitive", extract.Link{Href: "https://bank.test/", Text: "HTTPS://BANK.TEST"}, false},
		{"plain words", extract.Link{Href: "https://evil.test/", Text: "Click here"}, false},
		{"empty text", extract.Link{Href: "https://evil.test/"}, false},
		{"empty href", extract.Link{Text: "bank.test"}, false},
		{"subdomain text is still different", extract.Link{Href: "https://bank.test/", Text: "www.bank.test"}, true},
	}
	for _, tt := range tests {
		if got := visibleHrefMismatch([]extract.Link{tt.link}); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLinkDomainMismatch(t *testing.T) {
	t.Parallel()

	links := []extract.Link{{Href: "https://www.example.com/a"}}
	if !linkDomainMismatch(links, "example.com") {
		t.Errorf("subdomain link should count as a mismatch")
	}
	if linkDomainMismatch(links, "") {
		t.Errorf("no From domain should never mismatch")
	}
	if linkDomainMismatch([]extract.Link{{Href: "https://EXAMPLE.com/"}}, "example.com") {
		t.Errorf("host comparison should be case insensitive")
	}
	if linkDomainMismatch([]extract.Link{{Href: "mailto:someone@other.test"}}, "example.com") {
		t.Errorf("links without a host should be ignored")
	}
}

func TestBuildScenarioA(t *testing.T) {
	t.Parallel()

	raw := `From: Bank <alerts@bank-example.test>
Reply-To: help@totally-different.test
Subject: Your statement
Content-Type: text/plain; charset=utf-8

Hello, your monthly statement is ready.
`
	msg := extract.Parse([]byte(raw))
	f := newTestEngine().Build(msg.Headers, msg.Content)

	if !f.FromReplyToMismatch {
		t.Errorf("FromReplyToMismatch: got false, want true")
	}
	if f.FromReturnPathMismatch || f.LinkDomainMismatch || f.VisibleHrefMismatch || f.AuthFailed() {
		t.Errorf("unexpected flags: %+v", f)
	}
	if f.UrgencyScore != 0 {
		t.Errorf("UrgencyScore: got %d, want 0", f.UrgencyScore)
	}
	if f.RiskScore != 2 {
		t.Errorf("RiskScore: got %d, want 2", f.RiskScore)
	}
	if f.HardFlagCount() != 1 {
		t.Errorf("HardFlagCount: got %d, want 1", f.HardFlagCount())
	}
	if f.FromDomain != "bank-example.test" || f.ReplyToDomain != "totally-different.test" {
		t.Errorf("domains: got from=%q reply-to=%q", f.FromDomain, f.ReplyToDomain)
	}
}

func TestBuildScenarioB(t *testing.T) {
	t.Parallel()

	raw := `From: Bank <alerts@bank-example.test>
Subject: Login notice
Authentication-Results: mx.example.net; spf=fail smtp.mailfrom=bank-example.test; dkim=fail header.d=bank-example.test; dmarc=fail
Content-Type: text/html; charset=utf-8

<html><body><a href="https://evil-example.test/login">https://bank-example.test/login</a></body></html>
`
	msg := extract.Parse([]byte(raw))
	f := newTestEngine().Build(msg.Headers, msg.Content)

	if !f.VisibleHrefMismatch {
		t.Errorf("VisibleHrefMismatch: got false, want true")
	}
	if !f.LinkDomainMismatch {
		t.Errorf("LinkDomainMismatch: got false, want true")
	}
	if !f.AuthFailed() {
		t.Errorf("AuthFailed: got false, want true")
	}
	if f.RiskScore != 7 {
		t.Errorf("RiskScore: got %d, want 7", f.RiskScore)
	}
	if f.HardFlagCount() != 2 {
		t.Errorf("HardFlagCount: got %d, want 2", f.HardFlagCount())
	}
	want := []string{"bank-example.test", "evil-example.test"}
	if diff := cmp.Diff(want, f.LinkDomainsHTML); diff != "" {
		t.Errorf("LinkDomainsHTML mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildScenarioD(t *testing.T) {
	t.Parallel()

	raw := `Received: from mx2.example.net ([10.0.0.2]) by inbound.example.net
Received: from relay.example.net ([10.0.0.1]) by mx2.example.net
Received: from origin.example.org (origin.example.org [203.0.113.7]) by relay.example.net
From: a@example.org
Subject: hops

hi
`
	msg := extract.Parse([]byte(raw))
	f := newTestEngine().Build(msg.Headers, msg.Content)

	if f.ReceivedCount != 3 {
		t.Errorf("ReceivedCount: got %d, want 3", f.ReceivedCount)
	}
	if f.OriginIP != "203.0.113.7" {
		t.Errorf("OriginIP: got %q, want %q", f.OriginIP, "203.0.113.7")
	}
}

func TestBuildReturnPathAndDomains(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	headers := extract.HeaderMap{
		"From":        {"news@mail.example.com"},
		"Return-Path": {"<bounce@example.com>"},
		"Message-Id":  {"<123.abc@MTA.Example.com>"},
	}
	content := extract.Content{
		URLsInText: []string{"https://a.test/3", "https://c.test"},
		LinksInHTML: []extract.Link{
			{Href: "https://b.test/1"},
			{Href: "https://a.test/2"},
			{Href: "mailto:x@y.test"},
		},
	}
	f := e.Build(headers, content)

	if f.FromReturnPathMismatch {
		t.Errorf("subdomain return path should be related")
	}
	if f.MessageIDDomain != "mta.example.com" {
		t.Errorf("MessageIDDomain: got %q", f.MessageIDDomain)
	}
	if diff := cmp.Diff([]string{"a.test", "b.test"}, f.LinkDomainsHTML); diff != "" {
		t.Errorf("LinkDomainsHTML mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.test", "c.test"}, f.LinkDomainsText); diff != "" {
		t.Errorf("LinkDomainsText mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.test", "b.test", "c.test"}, f.AllLinkDomains); diff != "" {
		t.Errorf("AllLinkDomains mismatch (-want +got):\n%s", diff)
	}
	if f.URLCountHTML != 3 || f.URLCountText != 2 {
		t.Errorf("counts: got html=%d text=%d", f.URLCountHTML, f.URLCountText)
	}

	headers["Return-Path"] = []string{"<b@mailer.test>"}
	f = e.Build(headers, extract.Content{})
	if !f.FromReturnPathMismatch {
		t.Errorf("unrelated return path should mismatch")
	}
	if f.RiskScore != 3 {
		t.Errorf("RiskScore: got %d, want 3", f.RiskScore)
	}
	if f.LinksInHTMLRaw == nil || f.AllLinkDomains == nil {
		t.Errorf("list features should be non-nil")
	}
}

func TestRiskScoreWeights(t *testing.T) {
	t.Parallel()

	f := &FeatureSet{
		FromReturnPathMismatch:   true,
		FromReplyToMismatch:      true,
		DMARCResult:              "fail",
		LinkDomainMismatch:       true,
		VisibleHrefMismatch:      true,
		AttachmentSuspicionScore: 5,
		UrgencyScore:             3,
	}
	if got, want := RiskScore(f), 3+2+3+2+2+2+1; got != want {
		t.Errorf("RiskScore: got %d, want %d", got, want)
	}
	if got := f.HardFlagCount(); got != 4 {
		t.Errorf("HardFlagCount: got %d, want 4", got)
	}
}
