// Package llm holds the prompt and response handling shared by the
// hosted language model classifiers.
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mikey/phish-filter/internal/core"
)

// ErrUnparseableResponse is returned when a model reply carries no usable
// probability
var ErrUnparseableResponse = errors.New("unparseable model response")

// SystemPrompt is sent as the system role where the API has one
const SystemPrompt = "You are a phishing detection system. Respond only with JSON."

const promptFormat = `You are a phishing detection system. Analyze the following email and estimate the probability that it is a phishing attempt.
Respond with a JSON object containing:
- probability: number between 0 and 1 (higher means more likely to be phishing)
- explanation: string (one sentence on the main reason)

Email:
%s

Respond only with the JSON object and nothing else.`

// Prompt formats the classifier input text into a model prompt
func Prompt(text string) string {
	return fmt.Sprintf(promptFormat, text)
}

// Response is the JSON object the model is asked to return
type Response struct {
	Probability *float64 `json:"probability"`
	Explanation string   `json:"explanation"`
}

// ParsePrediction decodes a model reply into a prediction. Replies wrapped
// in prose or code fences are accepted; the probability is clamped to [0,1].
func ParsePrediction(reply, model string) (*core.Prediction, error) {
	var resp Response
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		start := strings.Index(reply, "{")
		end := strings.LastIndex(reply, "}")
		if start < 0 || end < start {
			return nil, fmt.Errorf("%w: no JSON object in reply", ErrUnparseableResponse)
		}
		if err := json.Unmarshal([]byte(reply[start:end+1]), &resp); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparseableResponse, err)
		}
	}

	if resp.Probability == nil || math.IsNaN(*resp.Probability) {
		return nil, fmt.Errorf("%w: missing probability", ErrUnparseableResponse)
	}

	return &core.Prediction{
		Probability: math.Min(1, math.Max(0, *resp.Probability)),
		Explanation: strings.TrimSpace(resp.Explanation),
		Model:       model,
	}, nil
}
