package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nonce-core/pkg/monitor"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// RPCRequester implements Requester over Solana JSON-RPC. Public endpoints
// throttle aggressively, so requests go through a token bucket.
type RPCRequester struct {
	client  *rpc.Client
	limiter *rate.Limiter
}

// NewRPCRequester limits requests to rps per second; rps <= 0 disables the limit.
func NewRPCRequester(client *rpc.Client, rps float64) *RPCRequester {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &RPCRequester{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RPCRequester) GetAccount(ctx context.Context, address solana.PublicKey, commitment rpc.CommitmentType) (*Account, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := r.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		monitor.ObserveQuery("getAccountInfo", start, nil)
		return nil, ErrNotFound
	}
	monitor.ObserveQuery("getAccountInfo", start, err)
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, ErrNotFound
	}

	return &Account{
		Owner:    out.Value.Owner,
		Lamports: out.Value.Lamports,
		Data:     out.Value.Data.GetBinary(),
	}, nil
}

func (r *RPCRequester) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return solana.Hash{}, err
	}

	start := time.Now()
	out, err := r.client.GetLatestBlockhash(ctx, commitment)
	monitor.ObserveQuery("getLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("getLatestBlockhash: empty response")
	}
	return out.Value.Blockhash, nil
}
