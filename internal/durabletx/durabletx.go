// Package durabletx builds and submits transactions that use a durable nonce
// in place of a recent blockhash.
//
// Every transaction starts with the advance-nonce instruction. The nonce
// value is read from chain on every build, because each landed transaction
// replaces it.
package durabletx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nonce-core/internal/fee"
	"nonce-core/internal/ledger"
	"nonce-core/internal/registry"
	"nonce-core/internal/submit"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/keystore"
	"nonce-core/pkg/logger"
	"nonce-core/pkg/monitor"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"
)

var (
	// ErrNonceAccountMissing means the identity has no registered nonce
	// account. The builder never provisions one itself.
	ErrNonceAccountMissing = errno.ErrNonceAccountMissing
	// ErrQuery wraps the *ledger.QueryError of a failed nonce lookup.
	ErrQuery = errno.ErrQuery
	// ErrStaleNonce means another transaction used the nonce first and this
	// one never landed. Build again and resubmit.
	ErrStaleNonce = errno.ErrStaleNonce
	// ErrSubmissionFailed wraps any other submission failure, including
	// ones where the transaction may still land. Do not rebuild on it.
	ErrSubmissionFailed = errno.ErrTxSubmission
)

// Prepared is a signed durable-nonce transaction and the nonce it was signed with.
type Prepared struct {
	Transaction  *solana.Transaction
	NonceAccount solana.PublicKey
	Nonce        solana.Hash
}

type Builder struct {
	registry  *registry.Registry
	ledger    *ledger.Client
	submitter submit.Submitter
	price     *uint64
}

// New returns a builder. price is the compute-unit price in micro-lamports;
// nil for none.
func New(reg *registry.Registry, client *ledger.Client, submitter submit.Submitter, price *uint64) *Builder {
	return &Builder{
		registry:  reg,
		ledger:    client,
		submitter: submitter,
		price:     price,
	}
}

// Build signs instructions into a durable-nonce transaction for signer
// without submitting it. signer is fee payer and nonce authority.
func (b *Builder) Build(ctx context.Context, signer keystore.Signer, instructions []solana.Instruction) (*Prepared, error) {
	identity := signer.PublicKey()

	// 1. locate the nonce account
	nonceAccount, ok := b.registry.GetDurableNonce(ctx, identity)
	if !ok {
		monitor.DurableTxTotal.WithLabelValues("missing_nonce").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNonceAccountMissing, identity)
	}

	// 2. read its current value
	data, err := b.ledger.GetNonceData(ctx, nonceAccount)
	if err != nil {
		monitor.DurableTxTotal.WithLabelValues("query_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	if !data.Authority.Equals(identity) {
		logger.Warn("nonce authority differs from signer, advance will fail",
			zap.Stringer("nonce_account", nonceAccount),
			zap.Stringer("authority", data.Authority),
			zap.Stringer("signer", identity))
	}

	// 3. assemble and sign
	tx, err := BuildTransaction(identity, nonceAccount, data.BlockhashSubstitute, instructions, b.price)
	if err != nil {
		return nil, err
	}
	if err := keystore.SignTransaction(tx, signer); err != nil {
		return nil, fmt.Errorf("sign durable transaction: %w", err)
	}

	return &Prepared{
		Transaction:  tx,
		NonceAccount: nonceAccount,
		Nonce:        data.BlockhashSubstitute,
	}, nil
}

// BuildAndSubmit builds a transaction with Build and submits it with Submit.
func (b *Builder) BuildAndSubmit(ctx context.Context, signer keystore.Signer, instructions []solana.Instruction) (solana.Signature, error) {
	prepared, err := b.Build(ctx, signer, instructions)
	if err != nil {
		return solana.Signature{}, err
	}
	return b.Submit(ctx, prepared)
}

// Submit sends a prepared transaction and waits for confirmation.
//
// On failure the ledger is asked about the transaction's own signature
// first: if it landed, Submit succeeds; if it landed with an error or its
// fate is unknown, the result is ErrSubmissionFailed and the caller must not
// rebuild. ErrStaleNonce is only returned when the send itself failed, the
// signature is absent from the ledger, and the nonce has moved or the node
// rejected the blockhash.
func (b *Builder) Submit(ctx context.Context, prepared *Prepared) (solana.Signature, error) {
	sig, err := b.submitter.SubmitAndConfirm(ctx, prepared.Transaction)
	if err == nil {
		monitor.DurableTxTotal.WithLabelValues("confirmed").Inc()
		return sig, nil
	}

	switch b.classify(ctx, prepared, err) {
	case outcomeLanded:
		monitor.DurableTxTotal.WithLabelValues("confirmed").Inc()
		return prepared.Transaction.Signatures[0], nil
	case outcomeStale:
		monitor.DurableTxTotal.WithLabelValues("stale").Inc()
		return solana.Signature{}, fmt.Errorf("%w: nonce %s of %s: %w",
			ErrStaleNonce, prepared.Nonce, prepared.NonceAccount, err)
	default:
		monitor.DurableTxTotal.WithLabelValues("failed").Inc()
		return sig, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeLanded
	outcomeStale
)

func (b *Builder) classify(ctx context.Context, prepared *Prepared, cause error) outcome {
	// it landed and failed, so it consumed the nonce itself
	var landed *submit.TxFailedError
	if errors.As(cause, &landed) {
		return outcomeFailed
	}

	// the signature is fixed at signing time, whether or not the send returned it
	if len(prepared.Transaction.Signatures) == 0 {
		return outcomeFailed
	}
	sig := prepared.Transaction.Signatures[0]

	// the caller's ctx may be the reason we are here
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), classifyTimeout)
	defer cancel()

	status, err := b.submitter.Status(ctx, sig)
	if err != nil {
		logger.Warn("cannot look up signature after failed submission",
			zap.Stringer("signature", sig), zap.Error(err))
		return outcomeFailed
	}
	switch status {
	case submit.StatusConfirmed:
		logger.Info("transaction landed after submission error",
			zap.Stringer("signature", sig), zap.Error(cause))
		return outcomeLanded
	case submit.StatusPending, submit.StatusFailed:
		return outcomeFailed
	}

	// it was sent and may still land
	if errors.Is(cause, submit.ErrConfirmTimeout) ||
		errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return outcomeFailed
	}

	if mentionsMissingBlockhash(cause) {
		return outcomeStale
	}
	current, err := b.ledger.GetNonceData(ctx, prepared.NonceAccount)
	if err != nil {
		logger.Debug("cannot re-read nonce after failed submission", zap.Error(err))
		return outcomeFailed
	}
	if current.BlockhashSubstitute != prepared.Nonce {
		return outcomeStale
	}
	return outcomeFailed
}

// classifyTimeout bounds the lookups made after a failed submission.
const classifyTimeout = 15 * time.Second

func mentionsMissingBlockhash(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "BlockhashNotFound") || strings.Contains(msg, "Blockhash not found")
}

// BuildTransaction returns the unsigned transaction
// [advance-nonce, compute-unit-price (if any), instructions...] with nonce in
// the blockhash field and identity as payer and nonce authority.
func BuildTransaction(identity, nonceAccount solana.PublicKey, nonce solana.Hash, instructions []solana.Instruction, price *uint64) (*solana.Transaction, error) {
	all := make([]solana.Instruction, 0, len(instructions)+2)
	all = append(all, system.NewAdvanceNonceAccountInstruction(
		nonceAccount,
		solana.SysVarRecentBlockHashesPubkey,
		identity,
	).Build())
	all = append(all, fee.WithComputeUnitPrice(instructions, price)...)

	tx, err := solana.NewTransaction(all, nonce, solana.TransactionPayer(identity))
	if err != nil {
		return nil, fmt.Errorf("build durable transaction: %w", err)
	}
	return tx, nil
}

// advanceNonceIndex is the system instruction discriminator of AdvanceNonceAccount.
const advanceNonceIndex = 4

// FromTransaction recovers the Prepared form of a signed durable-nonce
// transaction, e.g. one read back from disk.
func FromTransaction(tx *solana.Transaction) (*Prepared, error) {
	msg := tx.Message
	if len(msg.Instructions) == 0 {
		return nil, errors.New("transaction has no instructions")
	}

	first := msg.Instructions[0]
	program, err := msg.ResolveProgramIDIndex(first.ProgramIDIndex)
	if err != nil {
		return nil, err
	}
	data := first.Data
	if !program.Equals(solana.SystemProgramID) || len(data) < 4 ||
		data[0] != advanceNonceIndex || data[1] != 0 || data[2] != 0 || data[3] != 0 {
		return nil, errors.New("first instruction is not advance-nonce")
	}
	if len(first.Accounts) == 0 || int(first.Accounts[0]) >= len(msg.AccountKeys) {
		return nil, errors.New("advance-nonce instruction has no nonce account")
	}

	return &Prepared{
		Transaction:  tx,
		NonceAccount: msg.AccountKeys[first.Accounts[0]],
		Nonce:        msg.RecentBlockhash,
	}, nil
}
