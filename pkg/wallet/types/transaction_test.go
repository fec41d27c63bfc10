package types

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedTransactionFile(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	nonceAccount := solana.NewWallet().PublicKey()
	nonce := solana.Hash{3, 1, 4}

	tx, err := solana.NewTransaction([]solana.Instruction{
		system.NewAdvanceNonceAccountInstruction(nonceAccount, solana.SysVarRecentBlockHashesPubkey, payer.PublicKey()).Build(),
		system.NewTransferInstruction(5, payer.PublicKey(), solana.NewWallet().PublicKey()).Build(),
	}, nonce, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)

	_, err = NewSignedTransaction(tx, nonceAccount)
	assert.Error(t, err, "unsigned")

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer.PublicKey()) {
			return &payer
		}
		return nil
	})
	require.NoError(t, err)

	signed, err := NewSignedTransaction(tx, nonceAccount)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0].String(), signed.Signature)
	assert.Equal(t, payer.PublicKey().String(), signed.Payer)
	assert.Equal(t, nonceAccount.String(), signed.NonceAccount)
	assert.Equal(t, nonce.String(), signed.Nonce)

	data, err := json.Marshal(signed)
	require.NoError(t, err)
	var loaded SignedTransaction
	require.NoError(t, json.Unmarshal(data, &loaded))

	decoded, err := loaded.Transaction()
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, decoded.Signatures)
	assert.Equal(t, nonce, decoded.Message.RecentBlockhash)
	require.NoError(t, decoded.VerifySignatures())
}

func TestSignedTransactionBadRaw(t *testing.T) {
	_, err := (&SignedTransaction{RawTx: "%%%"}).Transaction()
	assert.Error(t, err)

	_, err = (&SignedTransaction{RawTx: "AAAA"}).Transaction()
	assert.Error(t, err)
}
