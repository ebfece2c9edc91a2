package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/features"
)

const tolerance = 1e-9

func newTestFuser(t *testing.T) *Fuser {
	t.Helper()
	f, err := NewFuser(DefaultConfig())
	if err != nil {
		t.Fatalf("NewFuser: %v", err)
	}
	return f
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero weights", func(c *Config) { c.Weights = Weights{} }, false},
		{"equal thresholds", func(c *Config) { c.GreenMax, c.YellowMax = 0.5, 0.5 }, false},
		{"negative weight", func(c *Config) { c.Weights.Model = -0.1 }, true},
		{"weight above one", func(c *Config) { c.Weights.Flags = 1.5 }, true},
		{"nan weight", func(c *Config) { c.Weights.Risk = math.NaN() }, true},
		{"green above one", func(c *Config) { c.GreenMax = 1.2 }, true},
		{"yellow negative", func(c *Config) { c.YellowMax = -1 }, true},
		{"inverted thresholds", func(c *Config) { c.GreenMax, c.YellowMax = 0.8, 0.4 }, true},
		{"zero risk divisor", func(c *Config) { c.RiskDivisor = 0 }, true},
		{"negative flag divisor", func(c *Config) { c.FlagDivisor = -4 }, true},
		{"no explanations", func(c *Config) { c.MaxExplanations = 0 }, true},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: got err=%v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: error %v does not wrap ErrInvalidConfig", tt.name, err)
		}
	}

	if _, err := NewFuser(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewFuser with zero config: got %v, want ErrInvalidConfig", err)
	}
}

func TestSelectTierBoundaries(t *testing.T) {
	t.Parallel()

	f := newTestFuser(t)
	tests := []struct {
		score float64
		want  Tier
	}{
		{0, TierGreen},
		{0.2999, TierGreen},
		{0.30, TierYellow},
		{0.5, TierYellow},
		{0.6999, TierYellow},
		{0.70, TierRed},
		{1, TierRed},
	}
	for _, tt := range tests {
		if got := f.SelectTier(tt.score); got != tt.want {
			t.Errorf("SelectTier(%v): got %q, want %q", tt.score, got, tt.want)
		}
	}
	if TierGreen.Label() != "Legitimate" || TierYellow.Label() != "Suspicious" || TierRed.Label() != "Phishing" {
		t.Errorf("unexpected labels")
	}
}

func TestFuseScenarioA(t *testing.T) {
	t.Parallel()

	feats := &features.FeatureSet{FromReplyToMismatch: true, RiskScore: 2}
	v, err := newTestFuser(t).Fuse(Input{Features: feats, Probability: 0.1, DecisionThreshold: 0.5})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	want := 0.7*0.1 + 0.2*0.2 + 0.1*0.25
	if math.Abs(v.FinalScore-want) > tolerance {
		t.Errorf("FinalScore: got %v, want %v", v.FinalScore, want)
	}
	if v.Tier != TierGreen || v.PredictionLabel != "Legitimate" {
		t.Errorf("tier: got %q/%q, want green/Legitimate", v.Tier, v.PredictionLabel)
	}
	if diff := cmp.Diff([]string{ReasonReplyTo}, v.Explanation); diff != "" {
		t.Errorf("Explanation mismatch (-want +got):\n%s", diff)
	}
	if v.DecisionThreshold != 0.5 {
		t.Errorf("DecisionThreshold: got %v, want 0.5", v.DecisionThreshold)
	}
}

func TestFuseScenarioB(t *testing.T) {
	t.Parallel()

	feats := &features.FeatureSet{
		VisibleHrefMismatch: true,
		LinkDomainMismatch:  true,
		SPFResult:           "fail",
		DKIMResult:          "fail",
		DMARCResult:         "fail",
		AllLinkDomains:      []string{"bank-example.test", "evil-example.test"},
		LinksInHTMLRaw: []extract.Link{
			{Href: "https://evil-example.test/login", Text: "https://bank-example.test/login"},
		},
	}
	feats.RiskScore = features.RiskScore(feats)
	if feats.RiskScore != 7 {
		t.Fatalf("RiskScore precondition: got %d, want 7", feats.RiskScore)
	}

	v, err := newTestFuser(t).Fuse(Input{Features: feats, Probability: 0.9})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if math.Abs(v.FinalScore-0.82) > tolerance {
		t.Errorf("FinalScore: got %v, want 0.82", v.FinalScore)
	}
	if v.Tier != TierRed || v.PredictionLabel != "Phishing" {
		t.Errorf("tier: got %q/%q, want red/Phishing", v.Tier, v.PredictionLabel)
	}
	if diff := cmp.Diff([]string{ReasonVisibleHref, ReasonAuthFailure}, v.Explanation); diff != "" {
		t.Errorf("Explanation mismatch (-want +got):\n%s", diff)
	}
	wantSummary := Summary{
		LinkDomains: feats.AllLinkDomains,
		AuthResults: features.AuthResults{SPF: "fail", DKIM: "fail", DMARC: "fail"},
		Attachments: []extract.Attachment{},
		LinkDetails: feats.LinksInHTMLRaw,
	}
	if diff := cmp.Diff(wantSummary, v.Summary); diff != "" {
		t.Errorf("Summary mismatch (-want +got):\n%s", diff)
	}
}

func TestFuseExplanationOrderAndLimit(t *testing.T) {
	t.Parallel()

	feats := &features.FeatureSet{
		VisibleHrefMismatch:      true,
		FromReturnPathMismatch:   true,
		FromReplyToMismatch:      true,
		DKIMResult:               "fail",
		UrgencyScore:             3,
		AttachmentSuspicionScore: 3,
	}
	v, err := newTestFuser(t).Fuse(Input{Features: feats, Probability: 0.5})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	want := []string{ReasonVisibleHref, ReasonReturnPath, ReasonReplyTo, ReasonAuthFailure, ReasonUrgency, ReasonAttachment}
	if diff := cmp.Diff(want, v.Explanation); diff != "" {
		t.Errorf("Explanation mismatch (-want +got):\n%s", diff)
	}

	cfg := DefaultConfig()
	cfg.MaxExplanations = 2
	limited, err := NewFuser(cfg)
	if err != nil {
		t.Fatalf("NewFuser: %v", err)
	}
	v, err = limited.Fuse(Input{Features: feats, Probability: 0.5})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if diff := cmp.Diff(want[:2], v.Explanation); diff != "" {
		t.Errorf("limited Explanation mismatch (-want +got):\n%s", diff)
	}
}

func TestFuseDefaultReassurance(t *testing.T) {
	t.Parallel()

	v, err := newTestFuser(t).Fuse(Input{Features: &features.FeatureSet{UrgencyScore: 2, AttachmentSuspicionScore: 2}})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if diff := cmp.Diff([]string{ReasonNothingSerious}, v.Explanation); diff != "" {
		t.Errorf("Explanation mismatch (-want +got):\n%s", diff)
	}
	if v.FinalScore != 0 {
		t.Errorf("FinalScore: got %v, want 0", v.FinalScore)
	}
	if v.Summary.LinkDomains == nil || v.Summary.LinkDetails == nil || v.Summary.Attachments == nil {
		t.Errorf("summary lists should be non-nil")
	}
}

func TestFuseRejectsInvalidProbability(t *testing.T) {
	t.Parallel()

	f := newTestFuser(t)
	for _, p := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.01, 1.01} {
		_, err := f.Fuse(Input{Features: &features.FeatureSet{}, Probability: p})
		if !errors.Is(err, ErrInvalidProbability) {
			t.Errorf("Fuse(p=%v): got %v, want ErrInvalidProbability", p, err)
		}
	}
	if _, err := f.Fuse(Input{Probability: 0.5}); err == nil {
		t.Errorf("Fuse without features should fail")
	}
}

func TestFuseBoundedAndMonotone(t *testing.T) {
	t.Parallel()

	f := newTestFuser(t)
	featureSets := []*features.FeatureSet{
		{},
		{RiskScore: 5, FromReplyToMismatch: true},
		{RiskScore: 40, VisibleHrefMismatch: true, FromReturnPathMismatch: true, FromReplyToMismatch: true, SPFResult: "fail"},
	}
	for _, feats := range featureSets {
		prev := -1.0
		for i := 0; i <= 20; i++ {
			p := float64(i) / 20
			v, err := f.Fuse(Input{Features: feats, Probability: p})
			if err != nil {
				t.Fatalf("Fuse(p=%v): %v", p, err)
			}
			if v.FinalScore < 0 || v.FinalScore > 1 {
				t.Errorf("FinalScore out of range: %v", v.FinalScore)
			}
			if v.FinalScore < prev {
				t.Errorf("FinalScore decreased at p=%v: %v < %v", p, v.FinalScore, prev)
			}
			prev = v.FinalScore
		}
	}
}

func TestFuseClampsHeavyWeights(t *testing.T) {
	t.Parallel()

	f, err := NewFuser(Config{
		Weights:         Weights{Model: 1, Risk: 1, Flags: 1},
		GreenMax:        0.3,
		YellowMax:       0.7,
		RiskDivisor:     10,
		FlagDivisor:     4,
		MaxExplanations: 6,
	})
	if err != nil {
		t.Fatalf("NewFuser: %v", err)
	}
	v, err := f.Fuse(Input{Features: &features.FeatureSet{RiskScore: 13, FromReplyToMismatch: true}, Probability: 1})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	if v.FinalScore != 1 {
		t.Errorf("FinalScore: got %v, want 1", v.FinalScore)
	}
}

func TestFuseDeterministic(t *testing.T) {
	t.Parallel()

	f := newTestFuser(t)
	feats := &features.FeatureSet{RiskScore: 4, FromReplyToMismatch: true, UrgencyScore: 4}
	in := Input{Features: feats, Probability: 0.42, DecisionThreshold: 0.37}
	first, err := f.Fuse(in)
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := f.Fuse(in)
		if err != nil {
			t.Fatalf("Fuse: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Fuse is not deterministic (-first +again):\n%s", diff)
		}
	}
}
