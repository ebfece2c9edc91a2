// Package domains decides whether two domain names belong to the same
// organization for the sender mismatch heuristics.
package domains

import (
	"sort"
	"strings"

	"github.com/mikey/phish-filter/internal/lexicon"
)

// Resolver compares domains using alias, public suffix and trusted group
// tables. A Resolver is immutable once built and safe for concurrent use.
type Resolver struct {
	aliases  map[string]string
	suffixes []string
	groups   []map[string]struct{}
}

// NewResolver builds a resolver from lexicon tables
func NewResolver(tables *lexicon.Tables) *Resolver {
	r := &Resolver{
		aliases: make(map[string]string, len(tables.DomainAliases)),
	}
	for from, to := range tables.DomainAliases {
		r.aliases[Normalize(from)] = Normalize(to)
	}
	for _, s := range tables.MultiLevelSuffixes {
		if s = Normalize(s); s != "" {
			r.suffixes = append(r.suffixes, s)
		}
	}
	// longest suffix first, then lexical, so lookups do not depend on table order
	sort.Slice(r.suffixes, func(i, j int) bool {
		if len(r.suffixes[i]) != len(r.suffixes[j]) {
			return len(r.suffixes[i]) > len(r.suffixes[j])
		}
		return r.suffixes[i] < r.suffixes[j]
	})
	for _, g := range tables.TrustedGroups {
		set := make(map[string]struct{}, len(g))
		for _, d := range g {
			set[Normalize(d)] = struct{}{}
		}
		r.groups = append(r.groups, set)
	}
	return r
}

// Normalize lowercases a domain and trims surrounding spaces and dots
func Normalize(domain string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Registrable returns the organizational root of a domain
func (r *Resolver) Registrable(domain string) string {
	domain = Normalize(domain)
	if domain == "" {
		return ""
	}
	if alias, ok := r.aliases[domain]; ok {
		return alias
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return domain
	}
	for _, suffix := range r.suffixes {
		if strings.HasSuffix(domain, "."+suffix) {
			needed := strings.Count(suffix, ".") + 2
			if len(labels) >= needed {
				return strings.Join(labels[len(labels)-needed:], ".")
			}
		}
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// Related reports whether a and b should be treated as the same
// organization. It is false when either side is empty.
func (r *Resolver) Related(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a) {
		return true
	}
	canonA, canonB := r.Registrable(a), r.Registrable(b)
	if canonA != "" && canonA == canonB {
		return true
	}
	return r.sameTrustedGroup(canonA, canonB)
}

func (r *Resolver) sameTrustedGroup(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	for _, group := range r.groups {
		_, okA := group[a]
		_, okB := group[b]
		if okA && okB {
			return true
		}
	}
	return false
}
