package openai

import (
	"context"
	"fmt"

	"github.com/mikey/phish-filter/internal/adapters/classifier/llm"
	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Classifier scores messages with the OpenAI chat completion API
type Classifier struct {
	client        *openai.Client
	cfg           config.OpenAIConfig
	threshold     float64
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// New creates an OpenAI classifier. An empty baseURL uses the public API.
func New(cfg config.OpenAIConfig, baseURL string, threshold float64, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &Classifier{
		client:        openai.NewClientWithConfig(clientCfg),
		cfg:           cfg,
		threshold:     threshold,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Predict asks the model for the phishing probability of text
func (c *Classifier) Predict(ctx context.Context, text string) (*core.Prediction, error) {
	prompt := llm.Prompt(c.textProcessor.TruncateText(text, c.cfg.MaxBodySize))

	req := openai.ChatCompletionRequest{
		Model: c.cfg.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llm.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	c.logger.Debug("OpenAI reply",
		zap.String("model", c.cfg.ModelName),
		zap.String("completion_id", resp.ID),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return llm.ParsePrediction(resp.Choices[0].Message.Content, c.ModelID())
}

func (c *Classifier) DecisionThreshold() float64 {
	return c.threshold
}

func (c *Classifier) ModelID() string {
	return "openai:" + c.cfg.ModelName
}
