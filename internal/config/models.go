package config

import (
	"github.com/mikey/phish-filter/internal/fusion"
)

// ClassifierConfig represents the classifier selection
type ClassifierConfig struct {
	Provider          string
	ArtifactPath      string
	Threshold         float64
	StaticProbability float64
	MaxTextChars      int
}

// ServerConfig represents the mail filter configuration
type ServerConfig struct {
	FilterType      string
	ListenAddress   string
	RelayAddress    string
	Hostname        string
	MaxMessageBytes int64
	BlockPhishing   bool
	TagSubject      bool
	SubjectPrefix   string
	Headers         HeaderNames
}

// HeaderNames are the verdict headers added to filtered messages
type HeaderNames struct {
	Tier       string
	Score      string
	Verdict    string
	Reason     string
	AnalysisID string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider:          c.GetString("classifier.provider"),
		ArtifactPath:      c.GetString("classifier.artifact_path"),
		Threshold:         c.GetFloat64("classifier.threshold"),
		StaticProbability: c.GetFloat64("classifier.static_probability"),
		MaxTextChars:      c.GetInt("classifier.max_text_chars"),
	}
}

// GetFusion returns the fusion configuration. It is validated when the
// fuser is built.
func (c *Config) GetFusion() fusion.Config {
	return fusion.Config{
		Weights: fusion.Weights{
			Model: c.GetFloat64("fusion.weights.model"),
			Risk:  c.GetFloat64("fusion.weights.risk"),
			Flags: c.GetFloat64("fusion.weights.flags"),
		},
		GreenMax:        c.GetFloat64("fusion.green_max"),
		YellowMax:       c.GetFloat64("fusion.yellow_max"),
		RiskDivisor:     c.GetFloat64("fusion.risk_divisor"),
		FlagDivisor:     c.GetFloat64("fusion.flag_divisor"),
		MaxExplanations: c.GetInt("fusion.max_explanations"),
	}
}

// GetServer returns the mail filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:      c.GetString("server.filter_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		RelayAddress:    c.GetString("server.relay_address"),
		Hostname:        c.GetString("server.hostname"),
		MaxMessageBytes: c.v.GetInt64("server.max_message_bytes"),
		BlockPhishing:   c.GetBool("server.block_phishing"),
		TagSubject:      c.GetBool("server.tag_subject"),
		SubjectPrefix:   c.GetString("server.subject_prefix"),
		Headers: HeaderNames{
			Tier:       c.GetString("server.headers.tier"),
			Score:      c.GetString("server.headers.score"),
			Verdict:    c.GetString("server.headers.verdict"),
			Reason:     c.GetString("server.headers.reason"),
			AnalysisID: c.GetString("server.headers.analysis_id"),
		},
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
