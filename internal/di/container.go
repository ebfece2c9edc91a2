package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/factory"
	"github.com/mikey/phish-filter/internal/features"
	"github.com/mikey/phish-filter/internal/fusion"
	"github.com/mikey/phish-filter/internal/logging"
	"github.com/mikey/phish-filter/internal/ports"
	"github.com/mikey/phish-filter/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideAnalysis(container); err != nil {
		return nil, err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) (core.CacheRepository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return nil, err
	}

	// Register analysis service
	if err := container.Provide(func(
		classifier core.Classifier,
		cache core.CacheRepository,
		engine *features.Engine,
		fuser *fusion.Fuser,
		textProcessor *utils.TextProcessor,
		cacheFactory *factory.CacheFactory,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.AnalysisService, error) {
		ttl, err := cacheFactory.GetCacheTTL()
		if err != nil {
			return nil, err
		}
		return core.NewAnalysisService(
			classifier,
			cache,
			engine,
			fuser,
			textProcessor,
			logger,
			cacheFactory.IsCacheEnabled(),
			ttl,
			cfg.GetInt("extract.display_limit"),
			cfg.GetClassifier().MaxTextChars,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideAnalysis registers the factories and the parts of the analysis
// pipeline shared by the daemon and the CLI
func provideAnalysis(container *dig.Container) error {
	for _, constructor := range []interface{}{
		factory.NewClassifierFactory,
		factory.NewCacheFactory,
		factory.NewFilterFactory,
		factory.NewTextProcessorFactory,
		factory.NewEngineFactory,
	} {
		if err := container.Provide(constructor); err != nil {
			return err
		}
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return err
	}

	// Register feature engine and fuser
	if err := container.Provide(func(f *factory.EngineFactory) (*features.Engine, error) {
		return f.CreateEngine()
	}); err != nil {
		return err
	}
	return container.Provide(func(f *factory.EngineFactory) (*fusion.Fuser, error) {
		return f.CreateFuser()
	})
}
