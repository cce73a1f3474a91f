// Package kvstore persists small pieces of client state that must survive a restart.
package kvstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("key not found")
)

// Store is a durable string key/value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	// Keys returns every key starting with prefix, in no particular order
	Keys(ctx context.Context, prefix string) ([]string, error)
}
