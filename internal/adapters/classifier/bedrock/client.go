package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/phish-filter/internal/adapters/classifier/llm"
	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/utils"
	"go.uber.org/zap"
)

// Invoker is the part of the Bedrock runtime API the classifier uses
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Classifier scores messages with a model hosted on Amazon Bedrock
type Classifier struct {
	client        Invoker
	cfg           config.BedrockConfig
	threshold     float64
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFromConfig loads AWS credentials and builds a Bedrock classifier
func NewFromConfig(ctx context.Context, cfg config.BedrockConfig, threshold float64, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Classifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(awsCfg), cfg, threshold, logger, textProcessor), nil
}

// New creates a Bedrock classifier around an existing runtime client
func New(client Invoker, cfg config.BedrockConfig, threshold float64, logger *zap.Logger, textProcessor *utils.TextProcessor) *Classifier {
	return &Classifier{
		client:        client,
		cfg:           cfg,
		threshold:     threshold,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Predict asks the model for the phishing probability of text
func (c *Classifier) Predict(ctx context.Context, text string) (*core.Prediction, error) {
	prompt := llm.Prompt(c.textProcessor.TruncateText(text, c.cfg.MaxBodySize))

	payload, err := c.requestBody(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.cfg.ModelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	reply, err := c.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Bedrock reply", zap.String("model", c.cfg.ModelID), zap.Int("length", len(reply)))
	return llm.ParsePrediction(reply, c.ModelID())
}

func (c *Classifier) DecisionThreshold() float64 {
	return c.threshold
}

func (c *Classifier) ModelID() string {
	return "bedrock:" + c.cfg.ModelID
}

// requestBody builds the model-family specific payload
func (c *Classifier) requestBody(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
			"max_tokens_to_sample": c.cfg.MaxTokens,
			"temperature":          c.cfg.Temperature,
			"top_p":                c.cfg.TopP,
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.cfg.MaxTokens,
				"temperature":   c.cfg.Temperature,
				"topP":          c.cfg.TopP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.cfg.MaxTokens,
			"temperature": c.cfg.Temperature,
			"top_p":       c.cfg.TopP,
		})
	}
}

// responseText pulls the generated text out of the model-family specific
// response body
func (c *Classifier) responseText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return string(body), nil
		}
		for _, s := range []string{genericResp.Output, genericResp.Text, genericResp.Response} {
			if s != "" {
				return s, nil
			}
		}
		return string(body), nil
	}
}

func (c *Classifier) isAnthropicModel() bool {
	return strings.HasPrefix(c.cfg.ModelID, "anthropic.claude")
}

func (c *Classifier) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.cfg.ModelID, "amazon.titan")
}
