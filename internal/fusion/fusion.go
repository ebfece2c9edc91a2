// Package fusion combines the heuristic risk score, the hard flag count and
// a classifier probability into a three-tier verdict with explanations.
package fusion

import (
	"errors"
	"fmt"
	"math"

	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/features"
)

// Tier is a coarse risk bucket
type Tier string

const (
	TierGreen  Tier = "green"
	TierYellow Tier = "yellow"
	TierRed    Tier = "red"
)

// Label returns the prediction label mirrored by the tier
func (t Tier) Label() string {
	switch t {
	case TierGreen:
		return "Legitimate"
	case TierYellow:
		return "Suspicious"
	default:
		return "Phishing"
	}
}

// Explanation strings, in priority order
const (
	ReasonVisibleHref    = "The link text does not match the real destination."
	ReasonReturnPath     = "Return-Path differs from the sender's domain."
	ReasonReplyTo        = "Reply-To differs from the sender."
	ReasonAuthFailure    = "Authentication (SPF/DKIM/DMARC) failed."
	ReasonUrgency        = "Urgent language."
	ReasonAttachment     = "Potentially risky attachment."
	ReasonNothingSerious = "No serious warning signs found, but stay alert."
)

// Input is everything Fuse needs for one message
type Input struct {
	Features          *features.FeatureSet
	Attachments       []extract.Attachment
	Probability       float64
	DecisionThreshold float64
}

// Summary is a pass-through of extracted data for display
type Summary struct {
	LinkDomains []string             `json:"link_domains"`
	AuthResults features.AuthResults `json:"auth_results"`
	Attachments []extract.Attachment `json:"attachments"`
	LinkDetails []extract.Link       `json:"link_details"`
}

// Verdict is the fused result for one message
type Verdict struct {
	PredictionLabel   string   `json:"prediction_label"`
	ModelProbability  float64  `json:"model_probability"`
	FinalScore        float64  `json:"final_score"`
	DecisionThreshold float64  `json:"decision_threshold"`
	Tier              Tier     `json:"tier"`
	Explanation       []string `json:"explanation"`
	Summary           Summary  `json:"summary"`
}

// Fuser applies one validated configuration. It is safe for concurrent use.
type Fuser struct {
	cfg Config
}

// NewFuser validates cfg and returns a Fuser using it
func NewFuser(cfg Config) (*Fuser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Fuser{cfg: cfg}, nil
}

// Config returns the configuration in use
func (f *Fuser) Config() Config {
	return f.cfg
}

// Fuse computes the verdict. It fails only when the probability is not a
// finite number in [0, 1] or no features are given.
func (f *Fuser) Fuse(in Input) (*Verdict, error) {
	p := in.Probability
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidProbability, p)
	}
	if in.Features == nil {
		return nil, errors.New("fusion input has no features")
	}
	feats := in.Features

	riskNorm := clamp01(float64(feats.RiskScore) / f.cfg.RiskDivisor)
	flagsNorm := clamp01(float64(feats.HardFlagCount()) / f.cfg.FlagDivisor)
	w := f.cfg.Weights
	final := clamp01(w.Model*p + w.Risk*riskNorm + w.Flags*flagsNorm)

	tier := f.SelectTier(final)
	return &Verdict{
		PredictionLabel:   tier.Label(),
		ModelProbability:  p,
		FinalScore:        final,
		DecisionThreshold: in.DecisionThreshold,
		Tier:              tier,
		Explanation:       f.explain(feats),
		Summary: Summary{
			LinkDomains: nonNilStrings(feats.AllLinkDomains),
			AuthResults: feats.Auth(),
			Attachments: nonNilAttachments(in.Attachments),
			LinkDetails: nonNilLinks(feats.LinksInHTMLRaw),
		},
	}, nil
}

// SelectTier maps a score to a tier. A score equal to a threshold falls in
// the higher tier.
func (f *Fuser) SelectTier(score float64) Tier {
	switch {
	case score < f.cfg.GreenMax:
		return TierGreen
	case score < f.cfg.YellowMax:
		return TierYellow
	default:
		return TierRed
	}
}

func (f *Fuser) explain(feats *features.FeatureSet) []string {
	gates := []struct {
		on     bool
		reason string
	}{
		{feats.VisibleHrefMismatch, ReasonVisibleHref},
		{feats.FromReturnPathMismatch, ReasonReturnPath},
		{feats.FromReplyToMismatch, ReasonReplyTo},
		{feats.AuthFailed(), ReasonAuthFailure},
		{feats.UrgencyScore >= features.UrgencyThreshold, ReasonUrgency},
		{feats.AttachmentSuspicionScore >= features.AttachmentThreshold, ReasonAttachment},
	}
	reasons := make([]string, 0, len(gates))
	for _, g := range gates {
		if g.on {
			reasons = append(reasons, g.reason)
		}
	}
	if len(reasons) > f.cfg.MaxExplanations {
		reasons = reasons[:f.cfg.MaxExplanations]
	}
	if len(reasons) == 0 {
		return []string{ReasonNothingSerious}
	}
	return reasons
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilAttachments(a []extract.Attachment) []extract.Attachment {
	if a == nil {
		return []extract.Attachment{}
	}
	return a
}

func nonNilLinks(l []extract.Link) []extract.Link {
	if l == nil {
		return []extract.Link{}
	}
	return l
}
