package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/phish-filter/internal/core"
	"go.uber.org/zap"
)

// CliFilter prints analyses for messages given on the command line
type CliFilter struct {
	service    *core.AnalysisService
	logger     *zap.Logger
	out        io.Writer
	verbose    bool
	jsonOutput bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.AnalysisService, logger *zap.Logger, out io.Writer, verbose, jsonOutput bool) (*CliFilter, error) {
	return &CliFilter{
		service:    service,
		logger:     logger,
		out:        out,
		verbose:    verbose,
		jsonOutput: jsonOutput,
	}, nil
}

// ProcessMessage analyzes a message and writes the result
func (f *CliFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.Analysis, error) {
	startTime := time.Now()
	analysis, err := f.service.AnalyzeBytes(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to analyze message", zap.Error(err))
		return nil, err
	}
	f.logger.Debug("Message analyzed", zap.Duration("duration", time.Since(startTime)))

	if err := f.Render(analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// Render writes one analysis as JSON or as a human summary
func (f *CliFilter) Render(a *core.Analysis) error {
	if f.jsonOutput {
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("failed to encode analysis: %w", err)
		}
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Message Summary ===\n")
	fmt.Fprintf(&b, "From: %s\n", a.Headers.Get("From"))
	fmt.Fprintf(&b, "To: %s\n", a.Headers.Get("To"))
	fmt.Fprintf(&b, "Subject: %s\n", a.Headers.Get("Subject"))
	fmt.Fprintf(&b, "Links: %d, attachments: %d\n", len(a.Content.LinksInHTML)+len(a.Content.URLsInText), len(a.Attachments))

	if f.verbose {
		fmt.Fprintf(&b, "\nAuthentication: spf=%s dkim=%s dmarc=%s\n",
			orNone(a.Summary.AuthResults.SPF),
			orNone(a.Summary.AuthResults.DKIM),
			orNone(a.Summary.AuthResults.DMARC))
		fmt.Fprintf(&b, "Link domains: %s\n", strings.Join(a.Summary.LinkDomains, ", "))
		fmt.Fprintf(&b, "Risk score: %d, urgency: %d, attachment score: %d\n",
			a.Features.RiskScore, a.Features.UrgencyScore, a.Features.AttachmentSuspicionScore)
		for _, d := range a.Degraded {
			fmt.Fprintf(&b, "Degraded: %s (%s)\n", d.Part, d.Reason)
		}
	}

	fmt.Fprintf(&b, "\n=== Results ===\n")
	fmt.Fprintf(&b, "Verdict: %s (%s)\n", a.PredictionLabel, a.Tier)
	fmt.Fprintf(&b, "Final score: %.4f\n", a.FinalScore)
	fmt.Fprintf(&b, "Model probability: %.4f (threshold %.2f)\n", a.ModelProbability, a.DecisionThreshold)
	for _, reason := range a.Explanation {
		fmt.Fprintf(&b, "  - %s\n", reason)
	}
	if a.Model != "" {
		fmt.Fprintf(&b, "Model used: %s\n", a.Model)
	}

	_, err := io.WriteString(f.out, b.String())
	return err
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
