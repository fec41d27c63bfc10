// Package submit sends signed transactions and waits for them to land.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nonce-core/pkg/async"
	"nonce-core/pkg/logger"
	"nonce-core/pkg/monitor"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ErrConfirmTimeout is returned when a sent transaction is not confirmed in time.
var ErrConfirmTimeout = errors.New("transaction not confirmed before timeout")

// Submitter sends a fully signed transaction and blocks until it is
// confirmed or known to have failed. Errors are opaque causes.
//
// Status reports what the ledger knows about a signature, so a caller can
// tell "never landed" from "landed but confirmation was not observed".
type Submitter interface {
	SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Status(ctx context.Context, sig solana.Signature) (Status, error)
}

// Status of a signature on the ledger.
type Status int

const (
	// StatusUnknown: the ledger has no record of the signature.
	StatusUnknown Status = iota
	// StatusPending: seen, but below the configured commitment.
	StatusPending
	// StatusConfirmed: landed successfully at the configured commitment.
	StatusConfirmed
	// StatusFailed: landed with an execution error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SubmitAsync runs s.SubmitAndConfirm on its own goroutine.
func SubmitAsync(ctx context.Context, s Submitter, tx *solana.Transaction) *async.Future[solana.Signature] {
	return async.Go(ctx, func(ctx context.Context) (solana.Signature, error) {
		return s.SubmitAndConfirm(ctx, tx)
	})
}

// TxFailedError reports a transaction that landed with an execution error.
type TxFailedError struct {
	Signature solana.Signature
	Err       any
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

type Options struct {
	Commitment     rpc.CommitmentType
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// RPCSubmitter submits over JSON-RPC and polls getSignatureStatuses.
type RPCSubmitter struct {
	client *rpc.Client
	opts   Options
}

func NewRPCSubmitter(client *rpc.Client, opts Options) *RPCSubmitter {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	return &RPCSubmitter{client: client, opts: opts}
}

func (s *RPCSubmitter) SubmitAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.opts.Commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	logger.Debug("transaction sent", zap.Stringer("signature", sig))

	if err := s.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	monitor.ConfirmDuration.Observe(time.Since(start).Seconds())
	return sig, nil
}

func (s *RPCSubmitter) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, txErr, err := s.lookup(ctx, sig)
		switch {
		case err != nil:
			logger.Debug("signature status poll failed", zap.Stringer("signature", sig), zap.Error(err))
		case status == StatusFailed:
			return &TxFailedError{Signature: sig, Err: txErr}
		case status == StatusConfirmed:
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, sig, s.opts.ConfirmTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *RPCSubmitter) Status(ctx context.Context, sig solana.Signature) (Status, error) {
	status, _, err := s.lookup(ctx, sig)
	return status, err
}

// lookup queries one signature, searching history so old landings are found.
func (s *RPCSubmitter) lookup(ctx context.Context, sig solana.Signature) (Status, any, error) {
	out, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return StatusUnknown, nil, fmt.Errorf("getSignatureStatuses: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return StatusUnknown, nil, nil
	}

	status := out.Value[0]
	switch {
	case status.Err != nil:
		return StatusFailed, status.Err, nil
	case reached(status.ConfirmationStatus, s.opts.Commitment):
		return StatusConfirmed, nil, nil
	default:
		return StatusPending, nil, nil
	}
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	switch want {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentConfirmed:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	default:
		return status != ""
	}
}
