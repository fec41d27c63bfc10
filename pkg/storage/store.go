// Package storage is a small string-to-string key-value store used to
// remember which nonce account belongs to which identity.
package storage

import (
	"context"
	"errors"
	"fmt"

	"nonce-core/pkg/errno"
	"nonce-core/pkg/logger"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Lookup when the key has never been set.
var ErrNotFound = errno.ErrStoreNotFound

// Store is read-modify-write on every call. Implementations keep no cache.
type Store interface {
	// Lookup returns ErrNotFound, a *CorruptError or an I/O error on failure.
	Lookup(ctx context.Context, key string) (string, error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// CorruptError reports backing data that exists but cannot be decoded.
type CorruptError struct {
	Location string
	Err      error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: %s: %v", errno.ErrStoreCorrupt.Message, e.Location, e.Err)
}

func (e *CorruptError) Unwrap() []error {
	return []error{errno.ErrStoreCorrupt, e.Err}
}

// Get is Lookup with every failure collapsed to "absent". Failures other
// than ErrNotFound are logged.
func Get(ctx context.Context, s Store, key string) (string, bool) {
	value, err := s.Lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("store lookup failed, treating as absent",
				zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return value, true
}
