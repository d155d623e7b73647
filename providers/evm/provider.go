// Package evm implements the backend client over an EVM JSON-RPC endpoint or an
// in-process simulated chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/logging"
	"github.com/picklr-io/deployr/internal/state"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultConfirmTimeout = 5 * time.Minute
)

// Client is the subset of an ethclient the provider needs. Both *ethclient.Client
// and simulated.Client satisfy it.
type Client interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Miner seals a block on demand. Only simulated chains have one.
type Miner interface {
	Commit() common.Hash
}

// Config configures a Provider.
type Config struct {
	Network   ir.NetworkContext
	Key       *ecdsa.PrivateKey
	Artifacts artifact.Source
	Store     *state.Store

	PollInterval   time.Duration
	ConfirmTimeout time.Duration

	// GasLimit skips estimation when non-zero.
	GasLimit uint64
}

type Provider struct {
	client  Client
	cfg     Config
	auth    *bind.TransactOpts
	chainID *big.Int
	miner   Miner
}

// New connects a provider to client. The chain id reported by the node must match
// the configured network id.
func New(ctx context.Context, client Client, cfg Config) (*Provider, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("evm provider requires a deployer key")
	}
	if cfg.Artifacts == nil || cfg.Store == nil {
		return nil, fmt.Errorf("evm provider requires an artifact source and a deployment store")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if cfg.Network.ID != 0 && chainID.Uint64() != cfg.Network.ID {
		return nil, fmt.Errorf("network %q expects chain id %d but node reports %s", cfg.Network.Name, cfg.Network.ID, chainID)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(cfg.Key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	return &Provider{client: client, cfg: cfg, auth: auth, chainID: chainID}, nil
}

// WithMiner makes the provider seal a block after each submission and while waiting
// for confirmations.
func (p *Provider) WithMiner(m Miner) *Provider {
	p.miner = m
	return p
}

// From returns the deployer address.
func (p *Provider) From() common.Address {
	return p.auth.From
}

// ChainID returns the chain id reported by the node.
func (p *Provider) ChainID() uint64 {
	return p.chainID.Uint64()
}

func (p *Provider) transactOpts(ctx context.Context, value *big.Int) *bind.TransactOpts {
	opts := *p.auth
	opts.Context = ctx
	opts.Value = value
	opts.GasLimit = p.cfg.GasLimit
	return &opts
}

// senderOpts returns transactor options for o.From, the deployer when nil.
func (p *Provider) senderOpts(ctx context.Context, o TxOptions) (*bind.TransactOpts, error) {
	if o.From == nil {
		return p.transactOpts(ctx, o.Value), nil
	}
	auth, err := bind.NewKeyedTransactorWithChainID(o.From, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.Value = o.Value
	auth.GasLimit = p.cfg.GasLimit
	return auth, nil
}

func (p *Provider) Construct(ctx context.Context, req *backend.ConstructRequest) (*backend.Pending, error) {
	art, err := p.cfg.Artifacts.Load(req.Contract)
	if err != nil {
		return nil, backend.Classify(err)
	}
	args, err := artifact.CoerceArgs(art.ABI.Constructor.Inputs, req.Args)
	if err != nil {
		return nil, backend.Failed(err.Error())
	}

	// The record goes down before the broadcast so a crash in between leaves a
	// trace at the nonce-derived address.
	opts := p.transactOpts(ctx, req.Value)
	nonce, err := p.client.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, backend.Classify(err)
	}
	opts.Nonce = new(big.Int).SetUint64(nonce)

	pending := &backend.Pending{
		Name:        req.Name,
		Contract:    req.Contract,
		NetworkID:   req.NetworkID,
		Address:     crypto.CreateAddress(opts.From, nonce).Hex(),
		Args:        req.Args,
		SubmittedAt: time.Now().UTC(),
	}
	if err := p.cfg.Store.Put(ctx, pendingRecord(pending)); err != nil {
		return nil, fmt.Errorf("failed to record pending deployment: %w", err)
	}

	addr, tx, _, err := bind.DeployContract(opts, art.ABI, art.Bytecode, p.client, args...)
	if err != nil {
		if derr := p.cfg.Store.Delete(ctx, req.Name); derr != nil {
			logging.Warn("failed to clear unsent deployment", "resource", req.Name, "error", derr)
		}
		return nil, backend.Classify(err)
	}

	pending.Address = addr.Hex()
	pending.TxHash = tx.Hash().Hex()
	if err := p.cfg.Store.Put(ctx, pendingRecord(pending)); err != nil {
		return nil, fmt.Errorf("failed to record pending deployment: %w", err)
	}

	logging.Debug("construction submitted", "resource", req.Name, "tx", pending.TxHash, "address", pending.Address)
	p.mine()
	return pending, nil
}

func (p *Provider) AwaitConfirmation(ctx context.Context, pending *backend.Pending, depth uint64) (*ir.DeploymentRecord, error) {
	if depth == 0 {
		depth = 1
	}
	if pending.TxHash == "" {
		return p.adoptLanded(ctx, pending)
	}
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	hash := common.HexToHash(pending.TxHash)
	for {
		receipt, err := p.client.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				if err := p.cfg.Store.Delete(ctx, pending.Name); err != nil {
					logging.Warn("failed to clear reverted deployment", "resource", pending.Name, "error", err)
				}
				return nil, backend.Failed(fmt.Sprintf("transaction %s reverted", pending.TxHash))
			}
			rec, done, err := p.checkDepth(waitCtx, pending, receipt, depth)
			if err != nil {
				return nil, p.waitError(ctx, err)
			}
			if done {
				if err := p.cfg.Store.Put(ctx, rec); err != nil {
					return nil, fmt.Errorf("failed to record deployment: %w", err)
				}
				return rec, nil
			}
		case errors.Is(err, ethereum.NotFound):
		default:
			if waitCtx.Err() != nil {
				return nil, p.waitError(ctx, waitCtx.Err())
			}
			logging.Debug("receipt poll failed", "resource", pending.Name, "error", err)
		}

		p.mine()

		select {
		case <-waitCtx.Done():
			return nil, p.waitError(ctx, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Provider) checkDepth(ctx context.Context, pending *backend.Pending, receipt *types.Receipt, depth uint64) (*ir.DeploymentRecord, bool, error) {
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return nil, false, err
	}
	mined := receipt.BlockNumber.Uint64()
	if head+1 < mined+depth {
		return nil, false, nil
	}

	rec := pendingRecord(pending)
	rec.Status = ir.StatusConfirmed
	rec.BlockNumber = mined
	if receipt.ContractAddress != (common.Address{}) {
		rec.Address = receipt.ContractAddress.Hex()
	}
	return rec, true, nil
}

// adoptLanded confirms a construction known only by the code at its address.
func (p *Provider) adoptLanded(ctx context.Context, pending *backend.Pending) (*ir.DeploymentRecord, error) {
	code, err := p.client.CodeAt(ctx, common.HexToAddress(pending.Address), nil)
	if err != nil {
		return nil, backend.Classify(err)
	}
	if len(code) == 0 {
		return nil, backend.Failed(fmt.Sprintf("no code at %s and no transaction to follow", pending.Address))
	}
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return nil, backend.Classify(err)
	}
	rec := pendingRecord(pending)
	rec.Status = ir.StatusConfirmed
	rec.BlockNumber = head
	if err := p.cfg.Store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record deployment: %w", err)
	}
	return rec, nil
}

// waitError tells a caller cancellation apart from the confirmation bound expiring.
func (p *Provider) waitError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", backend.ErrConfirmationTimeout, p.cfg.ConfirmTimeout)
	}
	return backend.Classify(err)
}

// LookupExisting returns the stored record only if the chain still has code at its
// address. Records without code are stale, e.g. after a dev chain restart.
func (p *Provider) LookupExisting(ctx context.Context, name string, networkID uint64) (*ir.DeploymentRecord, error) {
	rec, err := p.cfg.Store.Get(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	if !rec.Confirmed() || rec.NetworkID != networkID {
		return nil, nil
	}

	code, err := p.client.CodeAt(ctx, common.HexToAddress(rec.Address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read code at %s: %w", rec.Address, err)
	}
	if len(code) == 0 {
		logging.Warn("stale deployment record, no code at address", "resource", name, "address", rec.Address)
		return nil, nil
	}
	return rec, nil
}

// LookupPending returns the in-flight construction for name. A record whose
// transaction the node no longer knows and whose address holds no code is
// cleared so the caller submits again.
func (p *Provider) LookupPending(ctx context.Context, name string, networkID uint64) (*backend.Pending, error) {
	rec, err := p.cfg.Store.Get(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status != ir.StatusPending || rec.NetworkID != networkID {
		return nil, nil
	}

	pending := &backend.Pending{
		Name:        rec.Name,
		Contract:    rec.Contract,
		NetworkID:   rec.NetworkID,
		Address:     rec.Address,
		TxHash:      rec.TxHash,
		Args:        rec.Args,
		SubmittedAt: rec.DeployedAt,
	}

	if rec.TxHash != "" {
		_, _, err := p.client.TransactionByHash(ctx, common.HexToHash(rec.TxHash))
		if err == nil {
			return pending, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to look up transaction %s: %w", rec.TxHash, err)
		}
	}

	code, err := p.client.CodeAt(ctx, common.HexToAddress(rec.Address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read code at %s: %w", rec.Address, err)
	}
	if len(code) > 0 {
		// Landed, but there is no transaction left to follow.
		pending.TxHash = ""
		return pending, nil
	}

	logging.Warn("dropped construction, submitting again", "resource", name, "tx", rec.TxHash, "address", rec.Address)
	if err := p.cfg.Store.Delete(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to clear dropped deployment: %w", err)
	}
	return nil, nil
}

func (p *Provider) mine() {
	if p.miner != nil {
		p.miner.Commit()
	}
}

func pendingRecord(p *backend.Pending) *ir.DeploymentRecord {
	return &ir.DeploymentRecord{
		Name:       p.Name,
		Contract:   p.Contract,
		Address:    p.Address,
		NetworkID:  p.NetworkID,
		Args:       p.Args,
		TxHash:     p.TxHash,
		Status:     ir.StatusPending,
		DeployedAt: p.SubmittedAt,
	}
}
