package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"nonce-core/pkg/safe_random"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"
)

// EncryptedKeyJSON follows the layout of an Ethereum V3 keystore, but the
// payload is a 64-byte ed25519 private key.
type EncryptedKeyJSON struct {
	Address string     `json:"address"` // base58 public key, readable without the password
	Crypto  CryptoJSON `json:"crypto"`
	Id      string     `json:"id"`
	Version int        `json:"version"`
}

type CryptoJSON struct {
	Cipher       string       `json:"cipher"`     // "aes-256-gcm"
	CipherText   string       `json:"ciphertext"` // hex
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"` // "scrypt"
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"` // hex
}

type CipherParams struct {
	IV string `json:"iv"` // hex
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"` // hex
}

const (
	cipherName = "aes-256-gcm"
	kdfName    = "scrypt"

	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32
)

// ScryptN is the scrypt cost parameter used by EncryptKey.
var ScryptN = 262144

var ErrDecrypt = errors.New("invalid password or corrupted keystore (MAC mismatch)")

// EncryptKey encrypts a private key with a password.
func EncryptKey(key solana.PrivateKey, password string) (*EncryptedKeyJSON, error) {
	// 1. salt
	salt, err := safe_random.GenerateRandomBytes(32)
	if err != nil {
		return nil, err
	}

	// 2. scrypt
	derivedKey, err := scrypt.Key([]byte(password), salt, ScryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}

	// 3. AES-256-GCM
	gcm, err := newGCM(derivedKey)
	if err != nil {
		return nil, err
	}
	nonce, err := safe_random.GenerateRandomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, key, nil)

	// 4. MAC = SHA256(derivedKey || ciphertext)
	mac := computeMAC(derivedKey, ciphertext)

	id, err := safe_random.GenerateRandomBytes(16)
	if err != nil {
		return nil, err
	}

	return &EncryptedKeyJSON{
		Address: key.PublicKey().String(),
		Version: 3,
		Id:      fmt.Sprintf("%x-%x-%x-%x-%x", id[0:4], id[4:6], id[6:8], id[8:10], id[10:]),
		Crypto: CryptoJSON{
			Cipher:       cipherName,
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{IV: hex.EncodeToString(nonce)},
			KDF:          kdfName,
			KDFParams: KDFParams{
				DKLen: scryptDKLen,
				N:     ScryptN,
				R:     scryptR,
				P:     scryptP,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac),
		},
	}, nil
}

// DecryptKey recovers the private key from a keystore.
func DecryptKey(keyJSON *EncryptedKeyJSON, password string) (solana.PrivateKey, error) {
	if keyJSON.Crypto.Cipher != cipherName || keyJSON.Crypto.KDF != kdfName {
		return nil, fmt.Errorf("unsupported keystore: cipher %q kdf %q", keyJSON.Crypto.Cipher, keyJSON.Crypto.KDF)
	}

	salt, err := hex.DecodeString(keyJSON.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	nonce, err := hex.DecodeString(keyJSON.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(keyJSON.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %w", err)
	}
	mac, err := hex.DecodeString(keyJSON.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid mac: %w", err)
	}

	p := keyJSON.Crypto.KDFParams
	derivedKey, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal(mac, computeMAC(derivedKey, ciphertext)) {
		return nil, ErrDecrypt
	}

	gcm, err := newGCM(derivedKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid iv length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	key := solana.PrivateKey(plaintext)
	if keyJSON.Address != "" && key.PublicKey().String() != keyJSON.Address {
		return nil, fmt.Errorf("decrypted key does not match address %s", keyJSON.Address)
	}
	return key, nil
}

// SaveToFile writes the keystore with owner-only permissions.
func (k *EncryptedKeyJSON) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// LoadFromFile reads a keystore written by SaveToFile.
func LoadFromFile(filename string) (*EncryptedKeyJSON, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var k EncryptedKeyJSON
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse keystore %s: %w", filename, err)
	}
	return &k, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func computeMAC(derivedKey, ciphertext []byte) []byte {
	h := sha256.New()
	h.Write(derivedKey)
	h.Write(ciphertext)
	return h.Sum(nil)
}
