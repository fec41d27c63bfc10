// Package provisioner creates one durable nonce account per identity and
// records it in the registry.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nonce-core/internal/fee"
	"nonce-core/internal/ledger"
	"nonce-core/internal/registry"
	"nonce-core/internal/submit"
	"nonce-core/pkg/async"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/keystore"
	"nonce-core/pkg/logger"
	"nonce-core/pkg/monitor"
	"nonce-core/pkg/safe_random"
	"nonce-core/pkg/utils/lock"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// NonceAccountLamports is the rent-exempt minimum for an 80-byte account.
const NonceAccountLamports uint64 = 1_447_680

// DefaultAttemptTimeout bounds one shared creation attempt.
const DefaultAttemptTimeout = 2 * time.Minute

var (
	// ErrSubmissionFailed means the creation transaction did not land.
	// Nothing was registered; retrying starts over with a new account.
	ErrSubmissionFailed = errno.ErrProvisionSubmission
	// ErrRegistryWrite means the account exists on chain but the mapping
	// could not be saved. The address is still returned.
	ErrRegistryWrite = errno.ErrRegistryWrite
	// ErrBusy means another process holds the provisioning lock.
	ErrBusy = errno.ErrProvisionBusy
	// ErrNotAdoptable means an existing account cannot serve as the
	// identity's nonce account.
	ErrNotAdoptable = errno.ErrNotAdoptable
)

type Provisioner struct {
	registry  *registry.Registry
	ledger    *ledger.Client
	submitter submit.Submitter
	price     *uint64

	group          singleflight.Group
	attemptTimeout time.Duration
	lock           lock.DistributedLock
	lockTTL        time.Duration
}

// New returns a provisioner. price is the compute-unit price in
// micro-lamports added to creation transactions; nil for none.
func New(reg *registry.Registry, client *ledger.Client, submitter submit.Submitter, price *uint64) *Provisioner {
	return &Provisioner{
		registry:  reg,
		ledger:    client,
		submitter:      submitter,
		price:          price,
		attemptTimeout: DefaultAttemptTimeout,
	}
}

// WithAttemptTimeout replaces DefaultAttemptTimeout.
func (p *Provisioner) WithAttemptTimeout(d time.Duration) *Provisioner {
	p.attemptTimeout = d
	return p
}

// WithLock makes creation exclusive across processes sharing l. ttl should
// cover a full submit-and-confirm round trip.
func (p *Provisioner) WithLock(l lock.DistributedLock, ttl time.Duration) *Provisioner {
	p.lock = l
	p.lockTTL = ttl
	return p
}

// EnsureNonceAccount returns the nonce account of signer, creating and
// registering one if the registry has none. Concurrent calls for the same
// identity share one creation attempt.
//
// The shared attempt does not stop when one caller's ctx ends; it runs until
// it finishes or the attempt timeout passes, and a caller that gives up gets
// ctx.Err() while the others still get the result.
//
// If the account is created but cannot be registered, the address is
// returned together with ErrRegistryWrite. A crash between confirmation and
// registration orphans the account; nothing reconciles it.
func (p *Provisioner) EnsureNonceAccount(ctx context.Context, signer keystore.Signer) (solana.PublicKey, error) {
	identity := signer.PublicKey()
	if address, ok := p.registry.GetDurableNonce(ctx, identity); ok {
		monitor.ProvisionTotal.WithLabelValues("cached").Inc()
		return address, nil
	}

	ch := p.group.DoChan(identity.String(), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.attemptTimeout)
		defer cancel()

		if p.lock != nil {
			unlock, err := p.acquire(ctx, identity)
			if err != nil {
				return nil, err
			}
			defer unlock()
		}
		if address, ok := p.registry.GetDurableNonce(ctx, identity); ok {
			return address, nil
		}
		return p.create(ctx, signer)
	})

	select {
	case res := <-ch:
		address, _ := res.Val.(solana.PublicKey)
		return address, res.Err
	case <-ctx.Done():
		return solana.PublicKey{}, ctx.Err()
	}
}

func (p *Provisioner) acquire(ctx context.Context, identity solana.PublicKey) (func(), error) {
	key := "provision:" + identity.String()
	ok, err := p.lock.Acquire(ctx, key, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire provisioning lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, identity)
	}
	return func() {
		if err := p.lock.Release(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("release provisioning lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (p *Provisioner) create(ctx context.Context, signer keystore.Signer) (solana.PublicKey, error) {
	identity := signer.PublicKey()

	// 1. single-use key for the new account, dropped once the account exists
	nonceKey, err := safe_random.NewKeypair()
	if err != nil {
		return solana.PublicKey{}, err
	}
	nonceAccount := nonceKey.PublicKey()

	// 2. the account does not exist yet, so this transaction uses a recent blockhash
	blockhash, err := p.ledger.LatestBlockhash(ctx)
	if err != nil {
		monitor.ProvisionTotal.WithLabelValues("failed").Inc()
		return solana.PublicKey{}, err
	}

	tx, err := BuildCreateTransaction(identity, nonceAccount, blockhash, p.price)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := keystore.SignTransaction(tx, nonceKey, signer); err != nil {
		return solana.PublicKey{}, fmt.Errorf("sign nonce account creation: %w", err)
	}

	// 3. submit and wait
	logger.Info("creating nonce account",
		zap.Stringer("identity", identity), zap.Stringer("nonce_account", nonceAccount))
	sig, err := p.submitter.SubmitAndConfirm(ctx, tx)
	if err != nil && p.landed(ctx, tx, err) {
		sig, err = tx.Signatures[0], nil
	}
	if err != nil {
		monitor.ProvisionTotal.WithLabelValues("failed").Inc()
		logger.Warn("nonce account creation failed, account abandoned",
			zap.Stringer("nonce_account", nonceAccount), zap.Error(err))
		return solana.PublicKey{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	monitor.ProvisionTotal.WithLabelValues("created").Inc()

	// 4. remember it
	if !p.registry.SetDurableNonce(ctx, identity, nonceAccount) {
		return nonceAccount, fmt.Errorf("%w: %s (signature %s)", ErrRegistryWrite, nonceAccount, sig)
	}
	logger.Info("nonce account created",
		zap.Stringer("nonce_account", nonceAccount), zap.Stringer("signature", sig))
	return nonceAccount, nil
}

// landed reports whether tx made it on chain without error even though
// SubmitAndConfirm gave up on it, e.g. on a confirmation timeout.
func (p *Provisioner) landed(ctx context.Context, tx *solana.Transaction, cause error) bool {
	var failed *submit.TxFailedError
	if errors.As(cause, &failed) {
		return false
	}
	status, err := p.submitter.Status(context.WithoutCancel(ctx), tx.Signatures[0])
	if err != nil {
		logger.Debug("cannot look up creation transaction", zap.Error(err))
		return false
	}
	return status == submit.StatusConfirmed
}

// PreparedCreate is a creation transaction signed by the new account's key
// only. The identity still has to sign it before it can be sent.
type PreparedCreate struct {
	Transaction  *solana.Transaction
	NonceAccount solana.PublicKey
}

// PrepareCreate builds a creation transaction for identity when its key is
// held elsewhere, e.g. in a hardware or browser wallet. The nonce key is
// discarded after signing. Nothing is registered; call Adopt once the
// transaction has landed.
func (p *Provisioner) PrepareCreate(ctx context.Context, identity solana.PublicKey) (*PreparedCreate, error) {
	nonceKey, err := safe_random.NewKeypair()
	if err != nil {
		return nil, err
	}

	blockhash, err := p.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := BuildCreateTransaction(identity, nonceKey.PublicKey(), blockhash, p.price)
	if err != nil {
		return nil, err
	}
	if err := keystore.PartialSignTransaction(tx, nonceKey); err != nil {
		return nil, fmt.Errorf("sign nonce account creation: %w", err)
	}
	return &PreparedCreate{Transaction: tx, NonceAccount: nonceKey.PublicKey()}, nil
}

// Adopt registers an existing nonce account for identity after checking on
// chain that identity is its authority.
func (p *Provisioner) Adopt(ctx context.Context, identity, address solana.PublicKey) error {
	data, err := p.ledger.GetNonceData(ctx, address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotAdoptable, err)
	}
	if !data.Authority.Equals(identity) {
		return fmt.Errorf("%w: %s is controlled by %s", ErrNotAdoptable, address, data.Authority)
	}
	if !p.registry.SetDurableNonce(ctx, identity, address) {
		return fmt.Errorf("%w: %s", ErrRegistryWrite, address)
	}
	monitor.ProvisionTotal.WithLabelValues("adopted").Inc()
	logger.Info("nonce account adopted",
		zap.Stringer("identity", identity), zap.Stringer("nonce_account", address))
	return nil
}

// BuildCreateTransaction returns the unsigned transaction that funds
// nonceAccount at the rent-exempt minimum and initializes it with identity
// as authority. identity pays.
func BuildCreateTransaction(identity, nonceAccount solana.PublicKey, blockhash solana.Hash, price *uint64) (*solana.Transaction, error) {
	instructions := fee.WithComputeUnitPrice([]solana.Instruction{
		system.NewCreateAccountInstruction(
			NonceAccountLamports,
			ledger.NonceAccountSize,
			solana.SystemProgramID,
			identity,
			nonceAccount,
		).Build(),
		system.NewInitializeNonceAccountInstruction(
			identity,
			nonceAccount,
			solana.SysVarRecentBlockHashesPubkey,
			solana.SysVarRentPubkey,
		).Build(),
	}, price)

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(identity))
	if err != nil {
		return nil, fmt.Errorf("build nonce account creation: %w", err)
	}
	return tx, nil
}

// AsyncProvisioner runs EnsureNonceAccount without blocking the caller.
type AsyncProvisioner struct {
	p *Provisioner
}

func NewAsync(p *Provisioner) *AsyncProvisioner {
	return &AsyncProvisioner{p: p}
}

func (a *AsyncProvisioner) EnsureNonceAccount(ctx context.Context, signer keystore.Signer) *async.Future[solana.PublicKey] {
	return async.Go(ctx, func(ctx context.Context) (solana.PublicKey, error) {
		return a.p.EnsureNonceAccount(ctx, signer)
	})
}
