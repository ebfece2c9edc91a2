package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/features"
	"github.com/mikey/phish-filter/internal/fusion"
	"github.com/mikey/phish-filter/internal/utils"
)

// Analyze runs the feature engine and the fuser over a parsed message with a
// known model probability. It is pure and safe for concurrent use.
func Analyze(
	msg *extract.Message,
	engine *features.Engine,
	fuser *fusion.Fuser,
	probability float64,
	threshold float64,
	displayLimit int,
) (*Analysis, error) {
	feats := engine.Build(msg.Headers, msg.Content)
	verdict, err := fuser.Fuse(fusion.Input{
		Features:          &feats,
		Attachments:       msg.Content.Attachments,
		Probability:       probability,
		DecisionThreshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return &Analysis{
		Headers:     msg.Headers,
		Content:     msg.View(displayLimit),
		Attachments: msg.Content.Attachments,
		Features:    feats,
		Degraded:    msg.Degraded,
		Verdict:     *verdict,
	}, nil
}

// AnalysisService is the core service for phishing analysis
type AnalysisService struct {
	classifier    Classifier
	cache         CacheRepository
	engine        *features.Engine
	fuser         *fusion.Fuser
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	cacheEnabled  bool
	cacheTTL      time.Duration
	displayLimit  int
	maxTextChars  int
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	classifier Classifier,
	cache CacheRepository,
	engine *features.Engine,
	fuser *fusion.Fuser,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
	cacheEnabled bool,
	cacheTTL time.Duration,
	displayLimit int,
	maxTextChars int,
) *AnalysisService {
	if displayLimit <= 0 {
		displayLimit = extract.DisplayLimit
	}
	if maxTextChars <= 0 {
		maxTextChars = displayLimit
	}
	return &AnalysisService{
		classifier:    classifier,
		cache:         cache,
		engine:        engine,
		fuser:         fuser,
		textProcessor: textProcessor,
		logger:        logger,
		cacheEnabled:  cacheEnabled && cache != nil,
		cacheTTL:      cacheTTL,
		displayLimit:  displayLimit,
		maxTextChars:  maxTextChars,
	}
}

// AnalyzeFile reads and analyzes a message file
func (s *AnalysisService) AnalyzeFile(ctx context.Context, path string) (*Analysis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read message", Path: path, Err: err}
	}
	return s.AnalyzeBytes(ctx, raw)
}

// AnalyzeReader reads a message from r and analyzes it
func (s *AnalysisService) AnalyzeReader(ctx context.Context, r io.Reader) (*Analysis, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Op: "read message", Err: err}
	}
	return s.AnalyzeBytes(ctx, raw)
}

// AnalyzeBytes analyzes a raw message
func (s *AnalysisService) AnalyzeBytes(ctx context.Context, raw []byte) (*Analysis, error) {
	msg := extract.Parse(raw)
	for _, d := range msg.Degraded {
		s.logger.Debug("Degraded message part",
			zap.String("part", d.Part),
			zap.String("reason", d.Reason))
	}

	text := s.textProcessor.ClassifierInput(
		msg.Headers.Get("Subject"),
		msg.Content.TextPlain,
		msg.Content.TextHTML,
		s.maxTextChars,
	)
	prediction, err := s.predict(ctx, text)
	if err != nil {
		return nil, err
	}

	analysis, err := Analyze(msg, s.engine, s.fuser, prediction.Probability, s.classifier.DecisionThreshold(), s.displayLimit)
	if err != nil {
		return nil, err
	}
	analysis.Model = prediction.Model

	s.logger.Info("Message analyzed",
		zap.String("from_domain", analysis.Features.FromDomain),
		zap.String("tier", string(analysis.Tier)),
		zap.Float64("final_score", analysis.FinalScore),
		zap.Float64("model_probability", analysis.ModelProbability),
		zap.Int("risk_score", analysis.Features.RiskScore),
		zap.Int("degraded_parts", len(analysis.Degraded)),
		zap.String("model", analysis.Model))

	return analysis, nil
}

// predict returns the classifier probability for text, consulting the cache
// when enabled
func (s *AnalysisService) predict(ctx context.Context, text string) (*Prediction, error) {
	if s.classifier == nil {
		return nil, ErrMissingProbability
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modelID := s.classifier.ModelID()
	key := CacheKey(modelID, text)
	if s.cacheEnabled {
		entry, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			s.logger.Debug("Cache hit for message text", zap.String("key", key), zap.String("model", entry.Model))
			return &Prediction{Probability: entry.Probability, Model: entry.Model}, nil
		case !errors.Is(err, ErrCacheMiss):
			s.logger.Warn("Failed to read cache", zap.Error(err))
		}
	}

	prediction, err := s.classifier.Predict(ctx, text)
	if err != nil {
		s.logger.Error("Classifier failed", zap.String("model", modelID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrMissingProbability, err)
	}
	if prediction == nil {
		return nil, ErrMissingProbability
	}
	if prediction.Model == "" {
		prediction.Model = modelID
	}

	if s.cacheEnabled {
		now := time.Now()
		entry := &CacheEntry{
			Key:         key,
			Probability: prediction.Probability,
			Model:       prediction.Model,
			LastSeen:    now,
			ExpiresAt:   now.Add(s.cacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update cache", zap.Error(err))
		}
	}

	return prediction, nil
}

// CacheKey derives the cache key of a classifier input
func CacheKey(modelID, text string) string {
	sum := sha256.Sum256([]byte(modelID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
