package ports

import (
	"context"

	"github.com/mikey/greylist-filter/internal/core"
)

// EmailFilter defines the interface for a host integration
type EmailFilter interface {
	// ProcessMessage scores a message and returns the greylist decision for it
	ProcessMessage(ctx context.Context, msg *core.Message) (core.Decision, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}

// DecisionEngine decides whether a scored message is greylisted
type DecisionEngine interface {
	Decide(ctx context.Context, signals *core.SignalSet) core.Decision
}
