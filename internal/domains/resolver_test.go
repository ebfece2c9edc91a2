package domains

import (
	"testing"

	"github.com/mikey/phish-filter/internal/lexicon"
)

func newTestResolver() *Resolver {
	return NewResolver(lexicon.Default())
}

func TestRegistrable(t *testing.T) {
	t.Parallel()

	r := newTestResolver()
	tests := []struct {
		in, want string
	}{
		{"mail.example.com", "example.com"},
		{"Example.COM.", "example.com"},
		{"a.b.c.example.org", "example.org"},
		{"shop.example.co.uk", "example.co.uk"},
		{"example.co.uk", "example.co.uk"},
		{"co.uk", "co.uk"},
		{"deep.mail.banco.com.br", "banco.com.br"},
		{"youtube.com", "google.com"},
		{"localhost", "localhost"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := r.Registrable(tt.in); got != tt.want {
			t.Errorf("Registrable(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRelated(t *testing.T) {
	t.Parallel()

	r := newTestResolver()
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "example.com", "example.com", true},
		{"case and trailing dot", "Example.com.", "example.COM", true},
		{"subdomain left", "mail.example.com", "example.com", true},
		{"subdomain right", "example.com", "bounce.example.com", true},
		{"sibling subdomains", "a.example.com", "b.example.com", true},
		{"multi-level suffix siblings", "a.shop.co.uk", "b.shop.co.uk", true},
		{"different orgs under same suffix", "alpha.co.uk", "beta.co.uk", false},
		{"alias", "youtube.com", "google.com", true},
		{"trusted group", "instagram.com", "facebookmail.com", true},
		{"trusted group via alias", "outlook.com", "live.com", true},
		{"unrelated", "bank-example.test", "totally-different.test", false},
		{"suffix but not subdomain", "notexample.com", "example.com", false},
		{"cross group", "apple.com", "google.com", false},
		{"empty left", "", "example.com", false},
		{"empty right", "example.com", "", false},
		{"both empty", "", "", false},
		{"dots only", ".", ".", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Related(tt.a, tt.b); got != tt.want {
				t.Errorf("Related(%q, %q): got %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := r.Related(tt.b, tt.a); got != tt.want {
				t.Errorf("Related(%q, %q): got %v, want %v (not symmetric)", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestRelatedReflexive(t *testing.T) {
	t.Parallel()

	r := newTestResolver()
	for _, d := range []string{"example.com", "x.y.z.example.co.uk", "gmail.com", "localhost", "1.2.3.4"} {
		if !r.Related(d, d) {
			t.Errorf("Related(%q, %q) should be true", d, d)
		}
		if r.Related("", d) {
			t.Errorf("Related(\"\", %q) should be false", d)
		}
	}
}

func TestResolverUsesInjectedTables(t *testing.T) {
	t.Parallel()

	tables := lexicon.Default()
	tables.DomainAliases = map[string]string{"brand-mail.test": "brand.test"}
	tables.TrustedGroups = [][]string{{"brand.test", "brand-cdn.test"}}
	tables.MultiLevelSuffixes = []string{"gov.test"}
	r := NewResolver(tables)

	if !r.Related("brand-mail.test", "brand.test") {
		t.Errorf("alias from injected table not applied")
	}
	if !r.Related("brand-mail.test", "brand-cdn.test") {
		t.Errorf("trusted group from injected table not applied")
	}
	if r.Related("a.gov.test", "b.gov.test") {
		t.Errorf("injected multi-level suffix not applied")
	}
	if r.Related("youtube.com", "google.com") {
		t.Errorf("default alias should be replaced by injected table")
	}
}
