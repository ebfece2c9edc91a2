package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/phish-filter/internal/adapters/classifier/llm"
	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Classifier scores messages with Google Gemini
type Classifier struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	cfg           config.GeminiConfig
	threshold     float64
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// New creates a Gemini classifier
func New(ctx context.Context, cfg config.GeminiConfig, threshold float64, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(llm.SystemPrompt))

	return &Classifier{
		client:        client,
		model:         model,
		cfg:           cfg,
		threshold:     threshold,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (c *Classifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Predict asks the model for the phishing probability of text
func (c *Classifier) Predict(ctx context.Context, text string) (*core.Prediction, error) {
	prompt := llm.Prompt(c.textProcessor.TruncateText(text, c.cfg.MaxBodySize))

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	reply := replyText(resp)
	if reply == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	c.logger.Debug("Gemini reply", zap.String("model", c.cfg.ModelName), zap.Int("length", len(reply)))
	return llm.ParsePrediction(reply, c.ModelID())
}

func (c *Classifier) DecisionThreshold() float64 {
	return c.threshold
}

func (c *Classifier) ModelID() string {
	return "gemini:" + c.cfg.ModelName
}

// replyText concatenates the text parts of the first candidate
func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
