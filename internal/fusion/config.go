package fusion

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid fusion configuration")
	// ErrInvalidProbability is returned when the model probability is not a
	// finite number in [0, 1]
	ErrInvalidProbability = errors.New("model probability must be a finite number in [0, 1]")
)

// Weights are the ensemble weights of the three fused signals. They are
// applied as given and never normalized.
type Weights struct {
	Model float64 `mapstructure:"model" json:"model"`
	Risk  float64 `mapstructure:"risk" json:"risk"`
	Flags float64 `mapstructure:"flags" json:"flags"`
}

// Config holds the fusion parameters
type Config struct {
	Weights         Weights `mapstructure:"weights" json:"weights"`
	GreenMax        float64 `mapstructure:"green_max" json:"green_max"`
	YellowMax       float64 `mapstructure:"yellow_max" json:"yellow_max"`
	RiskDivisor     float64 `mapstructure:"risk_divisor" json:"risk_divisor"`
	FlagDivisor     float64 `mapstructure:"flag_divisor" json:"flag_divisor"`
	MaxExplanations int     `mapstructure:"max_explanations" json:"max_explanations"`
}

// DefaultConfig returns the calibrated defaults
func DefaultConfig() Config {
	return Config{
		Weights:         Weights{Model: 0.7, Risk: 0.2, Flags: 0.1},
		GreenMax:        0.30,
		YellowMax:       0.70,
		RiskDivisor:     10,
		FlagDivisor:     4,
		MaxExplanations: 6,
	}
}

// Validate rejects weights or thresholds outside [0, 1], inverted
// thresholds and non-positive divisors
func (c Config) Validate() error {
	unit := []struct {
		name  string
		value float64
	}{
		{"weights.model", c.Weights.Model},
		{"weights.risk", c.Weights.Risk},
		{"weights.flags", c.Weights.Flags},
		{"green_max", c.GreenMax},
		{"yellow_max", c.YellowMax},
	}
	for _, u := range unit {
		if !inUnitInterval(u.value) {
			return fmt.Errorf("%w: %s=%v is outside [0, 1]", ErrInvalidConfig, u.name, u.value)
		}
	}
	if c.GreenMax > c.YellowMax {
		return fmt.Errorf("%w: green_max %v is above yellow_max %v", ErrInvalidConfig, c.GreenMax, c.YellowMax)
	}
	if !(c.RiskDivisor > 0) || !(c.FlagDivisor > 0) {
		return fmt.Errorf("%w: divisors must be positive (risk=%v, flags=%v)", ErrInvalidConfig, c.RiskDivisor, c.FlagDivisor)
	}
	if c.MaxExplanations < 1 {
		return fmt.Errorf("%w: max_explanations must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// inUnitInterval is false for NaN
func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
