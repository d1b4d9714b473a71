package filter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/core"
	"github.com/mikey/greylist-filter/internal/ports"
)

// CliFilter implements a one-shot command-line check
type CliFilter struct {
	processor *Processor
	engine    ports.DecisionEngine
	logger    *zap.Logger
	verbose   bool
	out       io.Writer
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(processor *Processor, logger *zap.Logger, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		processor: processor,
		engine:    processor.engine,
		logger:    logger,
		verbose:   verbose,
		out:       os.Stdout,
	}, nil
}

// ProcessMessage scores a message, decides and prints the result
func (f *CliFilter) ProcessMessage(ctx context.Context, msg *core.Message) (core.Decision, error) {
	f.logger.Debug("Processing message", zap.String("sender", msg.Sender))

	signals, err := f.processor.Signals(ctx, msg)
	if err != nil {
		f.logger.Error("Failed to score message", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return core.Decision{}, err
	}
	return f.Decide(ctx, signals), nil
}

// Decide runs the engine on explicit signals and prints the result
func (f *CliFilter) Decide(ctx context.Context, signals *core.SignalSet) core.Decision {
	fmt.Fprintf(f.out, "\n=== Signals ===\n")
	fmt.Fprintf(f.out, "First contact: %t\n", signals.FirstContact)
	fmt.Fprintf(f.out, "Sender: %s\n", signals.SenderAddress)
	fmt.Fprintf(f.out, "Client: %s (%s)\n", signals.SourceHost, signals.SourceHostname)
	fmt.Fprintf(f.out, "Score: %.2f / %.2f\n", signals.CurrentScore, signals.RequiredScore)
	if f.verbose {
		fmt.Fprintf(f.out, "Greylist key: %s\n", core.GreylistKey(signals))
		fmt.Fprintf(f.out, "Reputation key: %s\n", core.ReputationKey(signals.SourceHost))
	}

	startTime := time.Now()
	decision := f.engine.Decide(ctx, signals)
	duration := time.Since(startTime)

	fmt.Fprintf(f.out, "\n=== Decision ===\n")
	fmt.Fprintf(f.out, "%s: %d\n", f.processor.headers.Flag, decision.Value)
	fmt.Fprintf(f.out, "%s: %s\n", f.processor.headers.Reason, decision.Reason)
	if decision.Skipped {
		fmt.Fprintf(f.out, "Store unavailable, decision skipped\n")
	}
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return decision
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
