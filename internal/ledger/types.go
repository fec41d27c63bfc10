package ledger

import (
	"context"
	"fmt"

	"nonce-core/pkg/errno"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// NonceAccountSize is the data length of an initialized system nonce account.
const NonceAccountSize = 80

// Account is the raw state of an on-chain account.
type Account struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// NonceData is the decoded state of a nonce account.
type NonceData struct {
	Version              uint32
	Authority            solana.PublicKey
	BlockhashSubstitute  solana.Hash
	LamportsPerSignature uint64
}

// Requester is the request/response capability the clients are built on.
// GetAccount returns ErrNotFound (possibly wrapped) when the account does
// not exist; every other error is treated as a transport failure.
type Requester interface {
	GetAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (*Account, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error)
}

var (
	ErrNotFound  = errno.ErrAccountNotFound
	ErrMalformed = errno.ErrMalformedAccount
	ErrTransport = errno.ErrTransport
)

// QueryError is returned by every failed query. Kind is one of ErrNotFound,
// ErrMalformed or ErrTransport and can be tested with errors.Is.
type QueryError struct {
	Op      string
	Address solana.PublicKey
	Kind    error
	Err     error
}

func (e *QueryError) Error() string {
	if e.Address.IsZero() {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Address, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
