package durabletx

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"nonce-core/internal/fee"
	"nonce-core/internal/ledger"
	"nonce-core/internal/registry"
	"nonce-core/internal/submit"
	"nonce-core/pkg/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storePath = storage.StorePath("/home/test/.config/solana/durable_nonce_file.json")

var computeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// chain holds one nonce account whose value advances on every landed transaction.
type chain struct {
	mu        sync.Mutex
	authority solana.PublicKey
	nonce     solana.Hash
	counter   byte
	queries   int
	queryErr  error
	missing   bool
}

func (c *chain) GetAccount(context.Context, solana.PublicKey, rpc.CommitmentType) (*ledger.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	if c.missing {
		return nil, ledger.ErrNotFound
	}

	data := make([]byte, ledger.NonceAccountSize)
	binary.LittleEndian.PutUint32(data[0:], 1)
	binary.LittleEndian.PutUint32(data[4:], 1)
	copy(data[8:40], c.authority[:])
	copy(data[40:72], c.nonce[:])
	binary.LittleEndian.PutUint64(data[72:], 5000)
	return &ledger.Account{Owner: solana.SystemProgramID, Lamports: 1_447_680, Data: data}, nil
}

func (c *chain) GetLatestBlockhash(context.Context, rpc.CommitmentType) (solana.Hash, error) {
	panic("durable transactions must not fetch a recent blockhash")
}

func (c *chain) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	c.nonce = solana.Hash{0xAA, c.counter}
}

type submitFunc func(tx *solana.Transaction) (solana.Signature, error)

type fakeSubmitter struct {
	txs       []*solana.Transaction
	fn        submitFunc
	status    submit.Status
	statusErr error
	lookups   []solana.Signature
}

func (f *fakeSubmitter) SubmitAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.txs = append(f.txs, tx)
	return f.fn(tx)
}

func (f *fakeSubmitter) Status(_ context.Context, sig solana.Signature) (submit.Status, error) {
	f.lookups = append(f.lookups, sig)
	return f.status, f.statusErr
}

type fixture struct {
	signer       solana.PrivateKey
	nonceAccount solana.PublicKey
	chain        *chain
	submitter    *fakeSubmitter
	registry     *registry.Registry
	builder      *Builder
}

func newFixture(t *testing.T, price *uint64) *fixture {
	t.Helper()
	f := &fixture{
		signer:       solana.NewWallet().PrivateKey,
		nonceAccount: solana.NewWallet().PublicKey(),
	}
	f.chain = &chain{authority: f.signer.PublicKey(), nonce: solana.Hash{0xAA}}
	f.submitter = &fakeSubmitter{fn: func(tx *solana.Transaction) (solana.Signature, error) {
		f.chain.advance()
		return tx.Signatures[0], nil
	}}
	f.registry = registry.New(storage.NewFileStoreFs(afero.NewMemMapFs(), storePath))
	require.True(t, f.registry.SetDurableNonce(context.Background(), f.signer.PublicKey(), f.nonceAccount))

	f.builder = New(f.registry, ledger.NewClient(f.chain, rpc.CommitmentConfirmed), f.submitter, price)
	return f
}

func transfer(from solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(1000, from, solana.NewWallet().PublicKey()).Build()
}

func programOf(msg solana.Message, i int) solana.PublicKey {
	return msg.AccountKeys[msg.Instructions[i].ProgramIDIndex]
}

func assertAdvanceNonceFirst(t *testing.T, f *fixture, tx *solana.Transaction) {
	t.Helper()
	msg := tx.Message
	require.NotEmpty(t, msg.Instructions)
	assert.Equal(t, solana.SystemProgramID, programOf(msg, 0))

	first := msg.Instructions[0]
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(first.Data), "AdvanceNonceAccount")
	require.Len(t, first.Accounts, 3)
	assert.Equal(t, f.nonceAccount, msg.AccountKeys[first.Accounts[0]])
	assert.Equal(t, solana.SysVarRecentBlockHashesPubkey, msg.AccountKeys[first.Accounts[1]])
	assert.Equal(t, f.signer.PublicKey(), msg.AccountKeys[first.Accounts[2]])
}

func TestNonceAccountMissing(t *testing.T) {
	f := newFixture(t, nil)
	stranger := solana.NewWallet().PrivateKey

	_, err := f.builder.BuildAndSubmit(context.Background(), stranger, nil)
	require.ErrorIs(t, err, ErrNonceAccountMissing)
	assert.Empty(t, f.submitter.txs)
	assert.Zero(t, f.chain.queries)
}

func TestInstructionOrdering(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		f := newFixture(t, nil)
		instructions := make([]solana.Instruction, n)
		for i := range instructions {
			instructions[i] = transfer(f.signer.PublicKey())
		}

		prepared, err := f.builder.Build(context.Background(), f.signer, instructions)
		require.NoError(t, err)

		tx := prepared.Transaction
		require.Len(t, tx.Message.Instructions, n+1)
		assertAdvanceNonceFirst(t, f, tx)
		for i := 1; i <= n; i++ {
			assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(tx.Message.Instructions[i].Data), "Transfer")
		}
	}
}

func TestPriorityFeeAfterAdvance(t *testing.T) {
	f := newFixture(t, fee.Price(250))

	prepared, err := f.builder.Build(context.Background(), f.signer, []solana.Instruction{transfer(f.signer.PublicKey())})
	require.NoError(t, err)

	msg := prepared.Transaction.Message
	require.Len(t, msg.Instructions, 3)
	assertAdvanceNonceFirst(t, f, prepared.Transaction)
	assert.Equal(t, computeBudgetProgram, programOf(msg, 1))
	assert.Equal(t, solana.SystemProgramID, programOf(msg, 2))
}

func TestNonceSubstitution(t *testing.T) {
	f := newFixture(t, nil)

	prepared, err := f.builder.Build(context.Background(), f.signer, []solana.Instruction{transfer(f.signer.PublicKey())})
	require.NoError(t, err)

	tx := prepared.Transaction
	assert.Equal(t, f.chain.nonce, tx.Message.RecentBlockhash)
	assert.Equal(t, f.chain.nonce, prepared.Nonce)
	assert.Equal(t, f.nonceAccount, prepared.NonceAccount)
	assert.Equal(t, f.signer.PublicKey(), tx.Message.AccountKeys[0], "identity pays")
	require.Len(t, tx.Signatures, 1, "only the authority signs")
	require.NoError(t, tx.VerifySignatures())
}

func TestSequentialTransactionsUseFreshNonce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.builder.BuildAndSubmit(ctx, f.signer, []solana.Instruction{transfer(f.signer.PublicKey())})
	require.NoError(t, err)
	_, err = f.builder.BuildAndSubmit(ctx, f.signer, []solana.Instruction{transfer(f.signer.PublicKey())})
	require.NoError(t, err)

	assert.Equal(t, 2, f.chain.queries)
	require.Len(t, f.submitter.txs, 2)
	assert.NotEqual(t, f.submitter.txs[0].Message.RecentBlockhash, f.submitter.txs[1].Message.RecentBlockhash)
}

func TestQueryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.chain.missing = true

	_, err := f.builder.BuildAndSubmit(context.Background(), f.signer, nil)
	require.ErrorIs(t, err, ErrQuery)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	var qe *ledger.QueryError
	assert.ErrorAs(t, err, &qe)
	assert.Empty(t, f.submitter.txs)
}

func TestStaleNonce(t *testing.T) {
	ctx := context.Background()

	t.Run("nonce moved", func(t *testing.T) {
		f := newFixture(t, nil)
		prepared, err := f.builder.Build(ctx, f.signer, nil)
		require.NoError(t, err)

		// another transaction lands first
		f.chain.advance()
		f.submitter.fn = func(*solana.Transaction) (solana.Signature, error) {
			return solana.Signature{}, errors.New("simulation failed: custom program error: 0x6")
		}

		_, err = f.builder.Submit(ctx, prepared)
		require.ErrorIs(t, err, ErrStaleNonce)
		assert.NotErrorIs(t, err, ErrSubmissionFailed)
	})

	t.Run("blockhash not found", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = func(*solana.Transaction) (solana.Signature, error) {
			return solana.Signature{}, errors.New("Transaction simulation failed: Blockhash not found")
		}

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		assert.ErrorIs(t, err, ErrStaleNonce)
	})
}

func TestSubmissionFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = func(*solana.Transaction) (solana.Signature, error) {
			return solana.Signature{}, errors.New("insufficient funds")
		}

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		require.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrStaleNonce)
		assert.Contains(t, err.Error(), "insufficient funds")
	})

	t.Run("landed with error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = func(tx *solana.Transaction) (solana.Signature, error) {
			f.chain.advance()
			return tx.Signatures[0], &submit.TxFailedError{Signature: tx.Signatures[0], Err: "InstructionError"}
		}

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		require.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrStaleNonce)
	})

	t.Run("nonce unreadable afterwards", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = func(*solana.Transaction) (solana.Signature, error) {
			f.chain.queryErr = errors.New("connection reset")
			return solana.Signature{}, errors.New("node is behind")
		}

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		assert.ErrorIs(t, err, ErrSubmissionFailed)
	})
}

func TestLandedWithoutConfirmation(t *testing.T) {
	ctx := context.Background()
	slowConfirm := func(f *fixture) submitFunc {
		return func(*solana.Transaction) (solana.Signature, error) {
			f.chain.advance()
			return solana.Signature{}, fmt.Errorf("%w: slow confirm", submit.ErrConfirmTimeout)
		}
	}

	t.Run("confirmed on lookup", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = slowConfirm(f)
		f.submitter.status = submit.StatusConfirmed

		prepared, err := f.builder.Build(ctx, f.signer, nil)
		require.NoError(t, err)
		sig, err := f.builder.Submit(ctx, prepared)
		require.NoError(t, err)
		assert.Equal(t, prepared.Transaction.Signatures[0], sig)
		assert.Equal(t, []solana.Signature{sig}, f.submitter.lookups)
	})

	t.Run("not seen yet", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = slowConfirm(f)

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		require.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrStaleNonce, "the nonce moved because of this transaction")
	})

	t.Run("still pending", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = slowConfirm(f)
		f.submitter.status = submit.StatusPending

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		require.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrStaleNonce)
		assert.ErrorIs(t, err, submit.ErrConfirmTimeout)
	})

	t.Run("landed with error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = slowConfirm(f)
		f.submitter.status = submit.StatusFailed

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		require.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrStaleNonce)
	})

	t.Run("status unavailable", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.fn = slowConfirm(f)
		f.submitter.statusErr = errors.New("connection reset")

		_, err := f.builder.BuildAndSubmit(ctx, f.signer, nil)
		require.ErrorIs(t, err, ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ErrStaleNonce)
	})

	t.Run("caller gave up", func(t *testing.T) {
		f := newFixture(t, nil)
		f.submitter.status = submit.StatusConfirmed
		cctx, cancel := context.WithCancel(ctx)
		f.submitter.fn = func(*solana.Transaction) (solana.Signature, error) {
			f.chain.advance()
			cancel()
			return solana.Signature{}, context.Canceled
		}

		sig, err := f.builder.BuildAndSubmit(cctx, f.signer, nil)
		require.NoError(t, err)
		assert.Equal(t, f.submitter.txs[0].Signatures[0], sig)
	})
}

func TestFromTransaction(t *testing.T) {
	f := newFixture(t, fee.Price(1))

	prepared, err := f.builder.Build(context.Background(), f.signer, []solana.Instruction{transfer(f.signer.PublicKey())})
	require.NoError(t, err)

	raw, err := prepared.Transaction.MarshalBinary()
	require.NoError(t, err)
	decoded, err := solana.TransactionFromBytes(raw)
	require.NoError(t, err)

	recovered, err := FromTransaction(decoded)
	require.NoError(t, err)
	assert.Equal(t, prepared.NonceAccount, recovered.NonceAccount)
	assert.Equal(t, prepared.Nonce, recovered.Nonce)

	plain, err := solana.NewTransaction([]solana.Instruction{transfer(f.signer.PublicKey())}, solana.Hash{1},
		solana.TransactionPayer(f.signer.PublicKey()))
	require.NoError(t, err)
	_, err = FromTransaction(plain)
	assert.Error(t, err)
}
