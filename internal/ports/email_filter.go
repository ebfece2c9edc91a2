package ports

import (
	"context"

	"github.com/mikey/phish-filter/internal/core"
)

// EmailFilter defines the interface for email filtering
type EmailFilter interface {
	// ProcessMessage analyzes one raw RFC 5322 message
	ProcessMessage(ctx context.Context, raw []byte) (*core.Analysis, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
