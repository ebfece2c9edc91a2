package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/mikey/phish-filter/internal/extract"
	"github.com/mikey/phish-filter/internal/features"
	"github.com/mikey/phish-filter/internal/fusion"
)

var (
	// ErrInvalidInput is a caller-side precondition failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingProbability is returned when no classifier probability is
	// available for a message
	ErrMissingProbability = fmt.Errorf("%w: no model probability available", ErrInvalidInput)
	// ErrCacheMiss is returned by cache repositories when no live entry exists
	ErrCacheMiss = errors.New("cache miss")
)

// IOError reports a resource that could not be read. It is never retried.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Prediction is a classifier's answer for one text
type Prediction struct {
	Probability float64
	Explanation string
	Model       string
}

// Analysis is the full result for one message, in the shape callers render
type Analysis struct {
	Headers     extract.HeaderMap     `json:"headers"`
	Content     extract.View          `json:"content"`
	Attachments []extract.Attachment  `json:"attachments"`
	Features    features.FeatureSet   `json:"features"`
	Degraded    []extract.Degradation `json:"degraded,omitempty"`
	Model       string                `json:"model,omitempty"`

	fusion.Verdict
}

// IsPhishing reports whether the message landed in the red tier
func (a *Analysis) IsPhishing() bool {
	return a.Tier == fusion.TierRed
}

// CacheEntry is a cached classifier probability
type CacheEntry struct {
	Key         string
	Probability float64
	Model       string
	LastSeen    time.Time
	ExpiresAt   time.Time
}
