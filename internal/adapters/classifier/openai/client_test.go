package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mikey/phish-filter/internal/config"
	"github.com/mikey/phish-filter/internal/core"
	"github.com/mikey/phish-filter/internal/utils"
)

var _ core.Classifier = (*Classifier)(nil)

func newTestClassifier(t *testing.T, handler http.HandlerFunc) *Classifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	c, err := New(config.OpenAIConfig{APIKey: "test", ModelName: "gpt-4", MaxTokens: 100}, srv.URL+"/v1", 0.55, logger, utils.NewTextProcessor(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestPredict(t *testing.T) {
	t.Parallel()

	models := make(chan string, 1)
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		models <- req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"probability\": 0.85, \"explanation\": \"spoofed sender\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	got, err := c.Predict(context.Background(), "Urgent: verify your account")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.Probability != 0.85 || got.Explanation != "spoofed sender" || got.Model != "openai:gpt-4" {
		t.Errorf("got %+v", got)
	}
	if gotModel := <-models; gotModel != "gpt-4" {
		t.Errorf("request model: got %q", gotModel)
	}
	if c.DecisionThreshold() != 0.55 {
		t.Errorf("threshold: got %v", c.DecisionThreshold())
	}
}

func TestPredictEmptyChoices(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","choices":[]}`))
	})
	if _, err := c.Predict(context.Background(), "x"); err == nil {
		t.Errorf("expected an error for an empty completion")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	if _, err := New(config.OpenAIConfig{}, "", 0.5, logger, utils.NewTextProcessor(logger)); err == nil {
		t.Errorf("expected an error without an API key")
	}
}
