package core

import (
	"context"
	"fmt"
	"time"
)

// greylistMarker is the value stored for a greylist record; only its presence matters
const greylistMarker = "1"

// RecordStore keeps short-lived greylist records keyed by GreylistKey
type RecordStore struct {
	kv KVStore
}

// NewRecordStore creates a greylist record store on top of kv
func NewRecordStore(kv KVStore) *RecordStore {
	return &RecordStore{kv: kv}
}

// IsActive reports whether a non-expired record exists for key
func (r *RecordStore) IsActive(ctx context.Context, key string) (bool, error) {
	_, found, err := r.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read greylist record: %w", err)
	}
	return found, nil
}

// BeginWindow unconditionally writes the record for key with the given TTL
func (r *RecordStore) BeginWindow(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.kv.Set(ctx, key, greylistMarker, ttl); err != nil {
		return fmt.Errorf("failed to write greylist record: %w", err)
	}
	return nil
}
