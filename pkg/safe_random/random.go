package safe_random

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
)

// Reader is the shared entropy source for key generation.
// Defaults to crypto/rand.Reader; tests may swap in a deterministic stream.
var Reader io.Reader = rand.Reader

// GenerateRandomBytes returns n bytes read from Reader.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, fmt.Errorf("generate random bytes: %w", err)
	}
	return b, nil
}

// NewKeypair generates a fresh ed25519 keypair from Reader.
func NewKeypair() (solana.PrivateKey, error) {
	seed, err := GenerateRandomBytes(ed25519.SeedSize)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}
