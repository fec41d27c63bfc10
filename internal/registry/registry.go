// Package registry remembers which nonce account belongs to which identity.
//
// The registry is a convenience cache: the mapping can always be rebuilt from
// the chain, so every read failure is reported as "not registered".
package registry

import (
	"context"

	"nonce-core/pkg/logger"
	"nonce-core/pkg/storage"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const keyPrefix = "durableNonce_"

type Registry struct {
	store storage.Store
}

func New(store storage.Store) *Registry {
	return &Registry{store: store}
}

// Key returns the store key for identity.
func Key(identity solana.PublicKey) string {
	return keyPrefix + identity.String()
}

// GetDurableNonce returns the nonce account registered for identity.
func (r *Registry) GetDurableNonce(ctx context.Context, identity solana.PublicKey) (solana.PublicKey, bool) {
	key := Key(identity)
	value, ok := storage.Get(ctx, r.store, key)
	if !ok {
		return solana.PublicKey{}, false
	}

	address, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		logger.Warn("registry entry is not a valid address",
			zap.String("key", key), zap.String("value", value), zap.Error(err))
		return solana.PublicKey{}, false
	}
	return address, true
}

// SetDurableNonce records address for identity. The address is not checked
// against the chain. A false result means nothing was persisted.
func (r *Registry) SetDurableNonce(ctx context.Context, identity, address solana.PublicKey) bool {
	key := Key(identity)
	if err := r.store.Set(ctx, key, address.String()); err != nil {
		logger.Error("registry write failed",
			zap.String("key", key), zap.Stringer("address", address), zap.Error(err))
		return false
	}
	return true
}

// RemoveDurableNonce drops the entry for identity. Best effort; the on-chain
// account is left untouched.
func (r *Registry) RemoveDurableNonce(ctx context.Context, identity solana.PublicKey) {
	key := Key(identity)
	if err := r.store.Remove(ctx, key); err != nil {
		logger.Warn("registry remove failed", zap.String("key", key), zap.Error(err))
	}
}
