package di

import (
	"flag"
	"os"

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

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Classifier flags
	Provider     string
	ArtifactPath string
	Probability  float64
	Threshold    float64
	MaxTokens    int
	Temperature  float64
	TopP         float64
	MaxBodySize  int

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Lexicon flags
	LexiconFile string

	// Input and output flags
	InputFile  string
	InputDir   string
	Workers    int
	JSONOutput bool
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags, err := parseFlags(os.Args[1:], flag.ExitOnError)
	if err != nil {
		// unreachable with ExitOnError
		os.Exit(2)
	}
	return flags
}

func parseFlags(args []string, handling flag.ErrorHandling) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs := flag.NewFlagSet("phish-analyzer", handling)

	// Classifier flags
	fs.StringVar(&flags.Provider, "provider", "artifact", "Classifier provider (artifact, static, bedrock, gemini, openai)")
	fs.StringVar(&flags.ArtifactPath, "artifact", "", "Path to the classifier artifact JSON")
	fs.Float64Var(&flags.Probability, "probability", -1, "Use this fixed model probability instead of a classifier")
	fs.Float64Var(&flags.Threshold, "threshold", 0.5, "Decision threshold for hosted model classifiers")
	fs.IntVar(&flags.MaxTokens, "max-tokens", 1000, "Maximum tokens for LLM response")
	fs.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for LLM generation")
	fs.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")
	fs.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum message text size to send to LLM")

	// Bedrock flags
	fs.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	fs.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	fs.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	fs.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	fs.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	fs.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4", "OpenAI model name")

	fs.StringVar(&flags.LexiconFile, "lexicon", "", "Path to a YAML lexicon file")

	// Input and output flags
	fs.StringVar(&flags.InputFile, "file", "", "Input message file (use stdin if neither -file nor -dir is given)")
	fs.StringVar(&flags.InputDir, "dir", "", "Analyze every file in this directory")
	fs.IntVar(&flags.Workers, "workers", 4, "Concurrent analyses for -dir")
	fs.BoolVar(&flags.JSONOutput, "json", false, "Print analyses as JSON")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging and output")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			applyCLIOverrides(cfg, flags)
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	if err := provideAnalysis(container); err != nil {
		return nil, err
	}

	// Register analysis service with no cache
	if err := container.Provide(func(
		classifier core.Classifier,
		engine *features.Engine,
		fuser *fusion.Fuser,
		textProcessor *utils.TextProcessor,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.AnalysisService {
		return core.NewAnalysisService(
			classifier,
			nil, // No cache for CLI
			engine,
			fuser,
			textProcessor,
			logger,
			false, // Cache disabled
			0,     // No TTL
			cfg.GetInt("extract.display_limit"),
			cfg.GetClassifier().MaxTextChars,
		)
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

// applyCLIOverrides applies the settings that always come from the command
// line, even with a config file
func applyCLIOverrides(cfg *config.Config, flags *CLIFlags) {
	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)
	cfg.Set("cli.json", flags.JSONOutput)
	if flags.Probability >= 0 {
		cfg.Set("classifier.provider", "static")
		cfg.Set("classifier.static_probability", flags.Probability)
	}
	if flags.LexiconFile != "" {
		cfg.Set("lexicon.path", flags.LexiconFile)
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set classifier provider
	v.Set("classifier.provider", flags.Provider)
	v.Set("classifier.threshold", flags.Threshold)
	if flags.ArtifactPath != "" {
		v.Set("classifier.artifact_path", flags.ArtifactPath)
	}

	// Set provider-specific configuration
	switch flags.Provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
		v.Set("bedrock.max_tokens", flags.MaxTokens)
		v.Set("bedrock.temperature", flags.Temperature)
		v.Set("bedrock.top_p", flags.TopP)
		v.Set("bedrock.max_body_size", flags.MaxBodySize)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
		v.Set("gemini.max_tokens", flags.MaxTokens)
		v.Set("gemini.temperature", flags.Temperature)
		v.Set("gemini.top_p", flags.TopP)
		v.Set("gemini.max_body_size", flags.MaxBodySize)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.model_name", flags.OpenAIModelName)
		v.Set("openai.max_tokens", flags.MaxTokens)
		v.Set("openai.temperature", flags.Temperature)
		v.Set("openai.top_p", flags.TopP)
		v.Set("openai.max_body_size", flags.MaxBodySize)
	}

	cfg := config.NewFromViper(v)
	applyCLIOverrides(cfg, flags)
	return cfg
}
