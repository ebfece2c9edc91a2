package factory

import (
	"fmt"

	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/features"
	"github.com/mikey/phish-filter/internal/fusion"
	"github.com/mikey/phish-filter/internal/lexicon"
	"go.uber.org/zap"
)

// EngineFactory creates the feature engine and the risk fuser
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateEngine builds the feature engine from the built-in lexicon or the
// configured lexicon file
func (f *EngineFactory) CreateEngine() (*features.Engine, error) {
	tables := lexicon.Default()
	if path := f.cfg.GetString("lexicon.path"); path != "" {
		loaded, err := lexicon.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load lexicon %s: %w", path, err)
		}
		tables = loaded
	}

	engine := features.NewEngine(tables)
	f.logger.Info("Feature engine ready", zap.String("lexicon_version", engine.LexiconVersion()))
	return engine, nil
}

// CreateFuser builds the risk fuser. Invalid weights or thresholds fail here,
// never during scoring.
func (f *EngineFactory) CreateFuser() (*fusion.Fuser, error) {
	return fusion.NewFuser(f.cfg.GetFusion())
}
