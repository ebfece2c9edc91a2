package factory

import (
	"context"

	"github.com/mikey/phish-filter/internal/adapters/classifier/bedrock"
	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/utils"
	"go.uber.org/zap"
)

// BedrockFactory creates Bedrock classifiers
type BedrockFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockFactory creates a new Bedrock factory
func NewBedrockFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *BedrockFactory {
	return &BedrockFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates a Bedrock classifier
func (f *BedrockFactory) CreateClassifier() (core.Classifier, error) {
	return bedrock.NewFromConfig(
		context.Background(),
		f.cfg.GetBedrock(),
		f.cfg.GetClassifier().Threshold,
		f.logger,
		f.textProcessor,
	)
}
