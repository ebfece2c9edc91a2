package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/mikey/phish-filter/internal/core"
	"go.uber.org/zap"
)

// DefaultThreshold is used when the artifact carries no optimal_threshold
const DefaultThreshold = 0.5

// ErrInvalidArtifact is returned for artifacts that decode but cannot score
var ErrInvalidArtifact = errors.New("invalid classifier artifact")

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Artifact is the exported form of a trained TF·IDF + logistic regression
// text model
type Artifact struct {
	Version          string             `json:"version"`
	Bias             float64            `json:"bias"`
	Weights          map[string]float64 `json:"weights"`
	IDF              map[string]float64 `json:"idf,omitempty"`
	OptimalThreshold *float64           `json:"optimal_threshold,omitempty"`
	NgramMax         int                `json:"ngram_max,omitempty"`
	SublinearTF      bool               `json:"sublinear_tf,omitempty"`
}

// Classifier scores text with a loaded artifact. It is immutable after
// construction.
type Classifier struct {
	art       Artifact
	threshold float64
	logger    *zap.Logger
}

// Load reads and decodes an artifact file
func Load(path string, logger *zap.Logger) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.IOError{Op: "read classifier artifact", Path: path, Err: err}
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, &core.IOError{Op: "decode classifier artifact", Path: path, Err: err}
	}

	c, err := New(art, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded classifier artifact",
		zap.String("path", path),
		zap.String("version", art.Version),
		zap.Int("vocabulary", len(art.Weights)),
		zap.Float64("threshold", c.threshold))

	return c, nil
}

// New builds a classifier from a decoded artifact
func New(art Artifact, logger *zap.Logger) (*Classifier, error) {
	if len(art.Weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrInvalidArtifact)
	}
	if art.NgramMax < 1 {
		art.NgramMax = 1
	}

	threshold := DefaultThreshold
	if art.OptimalThreshold != nil {
		threshold = *art.OptimalThreshold
		if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("%w: optimal_threshold %v outside [0,1]", ErrInvalidArtifact, threshold)
		}
	}

	return &Classifier{art: art, threshold: threshold, logger: logger}, nil
}

// Predict returns the logistic probability of text
func (c *Classifier) Predict(ctx context.Context, text string) (*core.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	z := c.art.Bias
	for _, f := range c.vectorize(text) {
		z += c.art.Weights[f.term] * f.value
	}

	return &core.Prediction{
		Probability: sigmoid(z),
		Model:       c.ModelID(),
	}, nil
}

// DecisionThreshold returns the artifact's operating threshold
func (c *Classifier) DecisionThreshold() float64 {
	return c.threshold
}

// ModelID identifies the artifact version
func (c *Classifier) ModelID() string {
	if c.art.Version == "" {
		return "artifact"
	}
	return "artifact:" + c.art.Version
}

type feature struct {
	term  string
	value float64
}

// vectorize returns the L2-normalised TF·IDF vector of the in-vocabulary
// terms of text, sorted by term so sums are reproducible bit for bit
func (c *Classifier) vectorize(text string) []feature {
	counts := make(map[string]float64)
	for _, term := range terms(text, c.art.NgramMax) {
		if c.inVocabulary(term) {
			counts[term]++
		}
	}

	vec := make([]feature, 0, len(counts))
	for term := range counts {
		vec = append(vec, feature{term: term})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].term < vec[j].term })

	var norm float64
	for i := range vec {
		tf := counts[vec[i].term]
		if c.art.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		vec[i].value = tf * c.idf(vec[i].term)
		norm += vec[i].value * vec[i].value
	}

	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].value /= norm
	}
	return vec
}

func (c *Classifier) inVocabulary(term string) bool {
	if _, ok := c.art.Weights[term]; ok {
		return true
	}
	_, ok := c.art.IDF[term]
	return ok
}

func (c *Classifier) idf(term string) float64 {
	if v, ok := c.art.IDF[term]; ok {
		return v
	}
	return 1
}

// terms lowercases and tokenizes text into word n-grams up to ngramMax,
// joined by single spaces
func terms(text string, ngramMax int) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words)*ngramMax)
	for n := 1; n <= ngramMax; n++ {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
