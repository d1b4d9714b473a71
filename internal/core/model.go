package core

import (
	"time"
)

// SignalSet holds the per-message signals supplied by the scorer
type SignalSet struct {
	FirstContact   bool
	SenderAddress  string
	SourceHost     string // client IP as text
	SourceHostname string // reverse DNS of the client, may be empty
	CurrentScore   float64
	RequiredScore  float64
}

// Message is a message handed over by the mail system, before it has been scored
type Message struct {
	Sender     string
	Recipients []string

	// Client connection details, when the mail system reports them. Filters that only
	// see the message fall back to its topmost Received header.
	ClientHostname string
	ClientAddr     string

	Raw []byte
}

// Decision is the outcome of a greylist check
type Decision struct {
	// Value is 1 when the message should be temporarily rejected, 0 otherwise
	Value  int
	Reason string

	// Skipped is set when the decision was forced by a store failure
	Skipped bool
}

// Greylisted reports whether the upstream mail system should defer the message
func (d Decision) Greylisted() bool {
	return d.Value == 1
}

// EngineConfig holds the resolved, immutable greylisting parameters
type EngineConfig struct {
	GreylistWindow      time.Duration
	RecordLifetime      time.Duration
	ReputationThreshold int
	StoreTimeout        time.Duration
}

// Default greylisting parameters
const (
	DefaultGreylistWindow      = 300 * time.Second
	DefaultRecordLifetime      = 1209600 * time.Second
	DefaultReputationThreshold = 5
	DefaultStoreTimeout        = 2 * time.Second
)

// DefaultEngineConfig returns the stock parameters
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		GreylistWindow:      DefaultGreylistWindow,
		RecordLifetime:      DefaultRecordLifetime,
		ReputationThreshold: DefaultReputationThreshold,
		StoreTimeout:        DefaultStoreTimeout,
	}
}

// Reasons reported alongside a decision
const (
	ReasonNotSpam          = "message seems not to be spam, skipped"
	ReasonReputable        = "server is reputable, skipped"
	ReasonNotExpired       = "Time has not yet expired."
	ReasonElapsed          = "Greylist time elapsed"
	ReasonStoreUnavailable = "greylist store unavailable, skipped"
	triggeredSuffix        = " triggered"
)
