package core

import (
	"context"
	"net/netip"
	"time"
)

// KVStore is the minimal key/value contract the greylist stores rely on.
// Expired keys must be indistinguishable from keys that were never set.
type KVStore interface {
	// Get returns the value for key and whether a live entry exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value, and expires it after ttl
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// WhitelistEntry is a single whitelist rule as reported in decision reasons
type WhitelistEntry interface {
	String() string
}

// WhitelistMatcher answers whitelist containment queries
type WhitelistMatcher interface {
	// MatchHost returns the first hostname entry matching hostname
	MatchHost(hostname string) (WhitelistEntry, bool)

	// MatchIP returns the first network entry containing addr
	MatchIP(addr netip.Addr) (WhitelistEntry, bool)
}

// Metrics observes decisions and store failures
type Metrics interface {
	ObserveDecision(d Decision)
	ObserveStoreError(op string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDecision(Decision) {}
func (nopMetrics) ObserveStoreError(string) {}

// NopMetrics returns a Metrics implementation that discards everything
func NopMetrics() Metrics {
	return nopMetrics{}
}
