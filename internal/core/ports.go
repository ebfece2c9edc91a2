package core

import (
	"context"
)

// Classifier scores message text. Implementations are loaded once and are
// safe for concurrent use.
type Classifier interface {
	// Predict returns the phishing probability of text
	Predict(ctx context.Context, text string) (*Prediction, error)

	// DecisionThreshold is the classifier's own operating threshold,
	// reported alongside the fused verdict
	DecisionThreshold() float64

	// ModelID identifies the model for caching and logs
	ModelID() string
}

// CacheRepository stores classifier probabilities by content key
type CacheRepository interface {
	// Get retrieves a live entry, or ErrCacheMiss
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}
