package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"nonce-core/internal/durabletx"
	"nonce-core/internal/fee"
	"nonce-core/internal/ledger"
	"nonce-core/internal/provisioner"
	"nonce-core/internal/registry"
	"nonce-core/internal/submit"
	"nonce-core/pkg/config"
	"nonce-core/pkg/database"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/keystore"
	"nonce-core/pkg/storage"
	"nonce-core/pkg/utils/lock"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"
)

// app wires the nonce components from config.Global.
type app struct {
	rpc         *rpc.Client
	registry    *registry.Registry
	ledger      *ledger.Client
	provisioner *provisioner.Provisioner
	builder     *durabletx.Builder

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Global

	commitment, err := ledger.ParseCommitment(cfg.RPC.Commitment)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errno.ErrConfig, err)
	}

	a := &app{}
	store, rdb, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.registry = registry.New(store)

	a.rpc = rpc.New(cfg.RPC.Endpoint)
	a.closers = append(a.closers, a.rpc.Close)

	a.ledger = ledger.NewClient(ledger.NewRPCRequester(a.rpc, cfg.RPC.RateLimit), commitment)
	submitter := submit.NewRPCSubmitter(a.rpc, submit.Options{
		Commitment:     commitment,
		PollInterval:   cfg.RPC.PollInterval,
		ConfirmTimeout: cfg.RPC.ConfirmTimeout,
	})
	price := fee.Price(cfg.Fee.ComputeUnitPrice)

	// one attempt covers a blockhash fetch plus a full confirmation wait
	attempt := cfg.RPC.ConfirmTimeout + 30*time.Second
	a.provisioner = provisioner.New(a.registry, a.ledger, submitter, price).WithAttemptTimeout(attempt)
	if rdb != nil {
		// a shared store means other processes may provision the same identity
		a.provisioner.WithLock(lock.NewRedisLock(rdb), attempt)
	}
	a.builder = durabletx.New(a.registry, a.ledger, submitter, price)
	return a, nil
}

// openStore returns the configured store, plus the redis client when the
// store lives in redis.
func (a *app) openStore(ctx context.Context) (storage.Store, *redis.Client, error) {
	cfg := config.Global
	switch cfg.Store.Backend {
	case "", "file":
		return storage.NewFileStore(storage.StorePath(cfg.Store.Path)), nil, nil
	case "redis":
		rdb, err := database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", errno.ErrStoreIO, err)
		}
		a.closers = append(a.closers, rdb.Close)
		return storage.NewRedisStore(rdb, cfg.Redis.Hash), rdb, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", errno.ErrConfig, cfg.Store.Backend)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// loadSigner loads path, or the configured keypair when path is empty.
func loadSigner(path string) (solana.PrivateKey, error) {
	if path == "" {
		path = config.Global.Wallet.KeypairPath
	}
	key, err := keystore.LoadKeypair(path, config.Global.Wallet.Password, promptPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errno.ErrKeypair, err)
	}
	return key, nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Keystore password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
