package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePrediction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		reply     string
		wantProb  float64
		wantWhy   string
		wantError bool
	}{
		{"plain json", `{"probability":0.91,"explanation":"fake bank login"}`, 0.91, "fake bank login", false},
		{"wrapped in prose", "Sure.\n```json\n{\"probability\": 0.2, \"explanation\": \" newsletter \"}\n```", 0.2, "newsletter", false},
		{"clamped high", `{"probability":1.7}`, 1, "", false},
		{"clamped low", `{"probability":-3}`, 0, "", false},
		{"missing probability", `{"explanation":"unsure"}`, 0, "", true},
		{"no json", "I cannot help with that", 0, "", true},
		{"broken json", "{probability: high}", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrediction(tt.reply, "m1")
			if tt.wantError {
				if !errors.Is(err, ErrUnparseableResponse) {
					t.Fatalf("got %v, want ErrUnparseableResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrediction: %v", err)
			}
			if got.Probability != tt.wantProb || got.Explanation != tt.wantWhy || got.Model != "m1" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestPromptEmbedsText(t *testing.T) {
	t.Parallel()

	p := Prompt("Subject line\n\nBody text")
	if !strings.Contains(p, "Subject line\n\nBody text") || !strings.Contains(p, "probability") {
		t.Errorf("prompt missing parts:\n%s", p)
	}
}
