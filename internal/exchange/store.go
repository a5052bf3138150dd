// Package exchange is the ephemeral key -> JSON map binding an execution id
// to the repository a minted credential must be scoped to. Keys expire after
// a fixed TTL and become unreadable; callers cannot distinguish expiry from
// absence.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Record is the value stored per exchange id.
type Record struct {
	RepositoryID int64 `json:"repository_id"`
}

var ErrNotFound = errors.New("exchange record not found")

// Store is a key -> JSON map with per-key expiry. Implementations provide
// last-write-wins semantics per key and no cross-key coordination; the
// execution ledger is the correctness boundary, not this store.
type Store interface {
	// Put stores value under id for ttl. An existing key is overwritten.
	Put(ctx context.Context, id string, value json.RawMessage, ttl time.Duration) error
	// Get returns the value for id, or ErrNotFound if the key is absent or
	// expired.
	Get(ctx context.Context, id string) (json.RawMessage, error)
	// Delete removes id. Deleting a missing key is not an error.
	Delete(ctx context.Context, id string) error
}

// PutRecord marshals rec and stores it under id.
func PutRecord(ctx context.Context, s Store, id string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Put(ctx, id, raw, ttl)
}

// GetRecord reads and unmarshals the record stored under id.
func GetRecord(ctx context.Context, s Store, id string) (Record, error) {
	raw, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
