package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxReputation caps the per-host success counter
const MaxReputation = 1000000

// ReputationStore keeps a saturating count of completed greylist retries per source IP
type ReputationStore struct {
	kv KVStore
}

// NewReputationStore creates a reputation store on top of kv
func NewReputationStore(kv KVStore) *ReputationStore {
	return &ReputationStore{kv: kv}
}

// Count returns the stored counter for hostIP. A missing or malformed value counts as 0;
// an error is only returned when the store itself could not be reached.
func (r *ReputationStore) Count(ctx context.Context, hostIP string) (int, error) {
	value, found, err := r.kv.Get(ctx, ReputationKey(hostIP))
	if err != nil {
		return 0, fmt.Errorf("failed to read reputation for %s: %w", hostIP, err)
	}
	if !found {
		return 0, nil
	}

	count, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || count < 0 {
		return 0, nil
	}
	return count, nil
}

// RecordSuccess stores current+1, saturating at MaxReputation, and refreshes the TTL.
// A negative current is treated as absent and stores 1.
// The read that produced current is not atomic with this write; concurrent writers may
// under-count, which is accepted.
func (r *ReputationStore) RecordSuccess(ctx context.Context, hostIP string, current int, ttl time.Duration) error {
	next := 1
	if current >= 0 {
		next = current + 1
	}
	if next > MaxReputation {
		next = MaxReputation
	}

	if err := r.kv.Set(ctx, ReputationKey(hostIP), strconv.Itoa(next), ttl); err != nil {
		return fmt.Errorf("failed to store reputation for %s: %w", hostIP, err)
	}
	return nil
}
