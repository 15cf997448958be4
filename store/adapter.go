// Package store persists conversation history. A MessageStore holds the
// messages of one conversation in memory and syncs them to an Adapter
// under a key; adapters exist for process memory and SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Adapter is a key/value persistence backend for JSON documents.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Get retrieves a value by key. Returns nil, false, nil if not found.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set stores a value by key, replacing any previous value.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Delete removes a key. No error if key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
}

// ErrKeyNotFound indicates the requested key does not exist.
var ErrKeyNotFound = errors.New("store: key not found")

// SerializationError wraps a JSON encoding failure for a key.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("store: serialization error for key %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
