package keystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// Signer signs arbitrary messages for one public key.
// solana.PrivateKey satisfies it.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

var _ Signer = solana.PrivateKey(nil)

// SignTransaction fills every required signature slot of tx. Each slot's
// key must be served by one of signers; extra signers are ignored.
func SignTransaction(tx *solana.Transaction, signers ...Signer) error {
	return sign(tx, signers, false)
}

// PartialSignTransaction fills the signature slots served by signers and
// keeps whatever the other slots already hold, zero if nothing. The result
// is valid once every other signer has done the same.
func PartialSignTransaction(tx *solana.Transaction, signers ...Signer) error {
	return sign(tx, signers, true)
}

func sign(tx *solana.Transaction, signers []Signer, partial bool) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required > len(tx.Message.AccountKeys) {
		return fmt.Errorf("message requires %d signatures but has %d accounts", required, len(tx.Message.AccountKeys))
	}

	signatures := make([]solana.Signature, required)
	if partial {
		copy(signatures, tx.Signatures)
	}
	for i := 0; i < required; i++ {
		key := tx.Message.AccountKeys[i]
		signer := findSigner(key, signers)
		if signer == nil {
			if partial {
				continue
			}
			return fmt.Errorf("no signer for required account %s", key)
		}
		sig, err := signer.Sign(msg)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", key, err)
		}
		signatures[i] = sig
	}
	tx.Signatures = signatures
	return nil
}

func findSigner(key solana.PublicKey, signers []Signer) Signer {
	for _, s := range signers {
		if s.PublicKey().Equals(key) {
			return s
		}
	}
	return nil
}

// PasswordFunc supplies a keystore password on demand.
type PasswordFunc func() (string, error)

// LoadKeypair reads either a solana-keygen JSON array or an encrypted
// keystore. For keystores, password is used when non-empty, otherwise prompt.
func LoadKeypair(path, password string, prompt PasswordFunc) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("parse keypair %s: %w", path, err)
		}
		return key, nil
	}

	var ks EncryptedKeyJSON
	if err := json.Unmarshal(trimmed, &ks); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if password == "" {
		if prompt == nil {
			return nil, errors.New("keystore is encrypted and no password was provided")
		}
		if password, err = prompt(); err != nil {
			return nil, err
		}
	}
	return DecryptKey(&ks, password)
}
