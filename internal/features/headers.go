package features

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	angleAddrPattern  = regexp.MustCompile(`<([^>]+)>`)
	addrDomainPattern = regexp.MustCompile(`@([A-Za-z0-9._\-]+)$`)
	ipv4Pattern       = regexp.MustCompile(`\[([0-9]{1,3}(?:\.[0-9]{1,3}){3})\]`)
	ipv6Pattern       = regexp.MustCompile(`\[([0-9a-fA-F:]+)\]`)
	authPatterns      = map[string]*regexp.Regexp{
		"spf":   regexp.MustCompile(`(?i)spf\s*=\s*([a-z]+)`),
		"dkim":  regexp.MustCompile(`(?i)dkim\s*=\s*([a-z]+)`),
		"dmarc": regexp.MustCompile(`(?i)dmarc\s*=\s*([a-z]+)`),
	}
)

// AuthResults holds the spf, dkim and dmarc tokens of an
// Authentication-Results header. An empty value means the token was absent.
type AuthResults struct {
	SPF   string `json:"spf"`
	DKIM  string `json:"dkim"`
	DMARC string `json:"dmarc"`
}

// Failed reports whether any mechanism reported "fail"
func (a AuthResults) Failed() bool {
	return a.SPF == "fail" || a.DKIM == "fail" || a.DMARC == "fail"
}

// ParseAuthResults extracts the three mechanism results, lowercased
func ParseAuthResults(header string) AuthResults {
	token := func(mech string) string {
		m := authPatterns[mech].FindStringSubmatch(header)
		if m == nil {
			return ""
		}
		return strings.ToLower(m[1])
	}
	return AuthResults{
		SPF:   token("spf"),
		DKIM:  token("dkim"),
		DMARC: token("dmarc"),
	}
}

// DomainOfAddress returns the lowercase domain of an address-bearing header
// value such as `"Name" <user@example.com>`, or "" when there is none
func DomainOfAddress(value string) string {
	if value == "" {
		return ""
	}
	addr := value
	if m := angleAddrPattern.FindStringSubmatch(value); m != nil {
		addr = m[1]
	}
	addr = strings.Trim(strings.TrimSpace(addr), `"'`)
	m := addrDomainPattern.FindStringSubmatch(addr)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// DomainOfURL returns the lowercase host of an absolute URL, or ""
func DomainOfURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// OriginIP returns the bracketed IP of the last Received entry, the one
// closest to the sender. IPv4 is preferred over an IPv6-looking token.
func OriginIP(received []string) string {
	if len(received) == 0 {
		return ""
	}
	last := received[len(received)-1]
	if m := ipv4Pattern.FindStringSubmatch(last); m != nil {
		return m[1]
	}
	if m := ipv6Pattern.FindStringSubmatch(last); m != nil {
		return m[1]
	}
	return ""
}
