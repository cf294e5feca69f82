// Package kvstore defines the flat key-value contract every core entity is
// persisted through, plus the pluggable backends. Values are serialized JSON
// keyed by a <namespace>:<id> convention; there are no transactions and no
// compare-and-swap, so callers serialize their own read-modify-write cycles.
package kvstore

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = errors.New("kvstore: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns up to limit keys with the given prefix, in ascending key
	// order. limit <= 0 means no limit.
	List(ctx context.Context, prefix string, limit int) ([]string, error)
}
