package static

import (
	"context"
	"fmt"
	"math"

	"github.com/mikey/phish-filter/internal/core"
)

// Classifier returns a caller-supplied probability for every text
type Classifier struct {
	probability float64
	threshold   float64
}

// New creates a static classifier
func New(probability, threshold float64) (*Classifier, error) {
	if !inUnit(probability) {
		return nil, fmt.Errorf("%w: static probability %v outside [0,1]", core.ErrInvalidInput, probability)
	}
	if !inUnit(threshold) {
		return nil, fmt.Errorf("%w: threshold %v outside [0,1]", core.ErrInvalidInput, threshold)
	}
	return &Classifier{probability: probability, threshold: threshold}, nil
}

// Predict returns the configured probability
func (c *Classifier) Predict(ctx context.Context, _ string) (*core.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &core.Prediction{Probability: c.probability, Model: c.ModelID()}, nil
}

func (c *Classifier) DecisionThreshold() float64 {
	return c.threshold
}

func (c *Classifier) ModelID() string {
	return "static"
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
