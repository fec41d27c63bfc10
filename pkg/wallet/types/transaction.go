package types

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SignedTransaction is a durable-nonce transaction signed offline, ready
// to broadcast later. The nonce fields are informational; broadcast reads
// them back from RawTx.
type SignedTransaction struct {
	Signature    string `json:"signature"`     // first signature, the transaction id
	Payer        string `json:"payer"`         // fee payer and nonce authority
	NonceAccount string `json:"nonce_account"` // account advanced by this transaction
	Nonce        string `json:"nonce"`         // nonce value used as blockhash
	RawTx        string `json:"raw_tx"`        // base64 wire format
}

// NewSignedTransaction encodes a signed tx.
func NewSignedTransaction(tx *solana.Transaction, nonceAccount solana.PublicKey) (*SignedTransaction, error) {
	if len(tx.Signatures) == 0 {
		return nil, fmt.Errorf("transaction is not signed")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return &SignedTransaction{
		Signature:    tx.Signatures[0].String(),
		Payer:        tx.Message.AccountKeys[0].String(),
		NonceAccount: nonceAccount.String(),
		Nonce:        tx.Message.RecentBlockhash.String(),
		RawTx:        base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// Transaction decodes RawTx.
func (s *SignedTransaction) Transaction() (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(s.RawTx)
	if err != nil {
		return nil, fmt.Errorf("decode raw_tx: %w", err)
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode raw_tx: %w", err)
	}
	return tx, nil
}
