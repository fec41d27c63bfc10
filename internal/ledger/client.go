// Package ledger reads nonce account state from the ledger.
//
// The query logic lives in Client, which blocks the calling goroutine.
// AsyncClient wraps the same Client and returns futures instead; callers
// pick one mode per client instance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"nonce-core/pkg/async"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is the blocking query client.
type Client struct {
	requester  Requester
	commitment rpc.CommitmentType
}

func NewClient(requester Requester, commitment rpc.CommitmentType) *Client {
	return &Client{requester: requester, commitment: commitment}
}

func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

// GetNonceData fetches the account at address and decodes it as a nonce
// account. No retries.
func (c *Client) GetNonceData(ctx context.Context, address solana.PublicKey) (NonceData, error) {
	const op = "get nonce data"

	account, err := c.requester.GetAccount(ctx, address, c.commitment)
	switch {
	case errors.Is(err, ErrNotFound), err == nil && account == nil:
		return NonceData{}, &QueryError{
			Op:      op,
			Address: address,
			Kind:    ErrNotFound,
			Err:     fmt.Errorf("no account at commitment %q", c.commitment),
		}
	case err != nil:
		return NonceData{}, &QueryError{Op: op, Address: address, Kind: ErrTransport, Err: err}
	}

	data, err := DecodeNonceAccount(account)
	if err != nil {
		return NonceData{}, &QueryError{Op: op, Address: address, Kind: ErrMalformed, Err: err}
	}
	return data, nil
}

// LatestBlockhash fetches a recent blockhash. Only account creation needs
// one; durable transactions use the nonce instead.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	hash, err := c.requester.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, &QueryError{Op: "get latest blockhash", Kind: ErrTransport, Err: err}
	}
	return hash, nil
}

// AsyncClient is the non-blocking query client.
type AsyncClient struct {
	client *Client
}

func NewAsyncClient(requester Requester, commitment rpc.CommitmentType) *AsyncClient {
	return &AsyncClient{client: NewClient(requester, commitment)}
}

// Blocking exposes the underlying blocking client.
func (c *AsyncClient) Blocking() *Client {
	return c.client
}

func (c *AsyncClient) GetNonceData(ctx context.Context, address solana.PublicKey) *async.Future[NonceData] {
	return async.Go(ctx, func(ctx context.Context) (NonceData, error) {
		return c.client.GetNonceData(ctx, address)
	})
}

func (c *AsyncClient) LatestBlockhash(ctx context.Context) *async.Future[solana.Hash] {
	return async.Go(ctx, c.client.LatestBlockhash)
}

// ParseCommitment maps a config string to an rpc commitment level.
func ParseCommitment(s string) (rpc.CommitmentType, error) {
	switch c := rpc.CommitmentType(s); c {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return c, nil
	case "":
		return rpc.CommitmentConfirmed, nil
	default:
		return "", fmt.Errorf("unknown commitment %q", s)
	}
}
