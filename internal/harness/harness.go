// Package harness runs a deployment plan on an in-process chain so tests can
// exercise the deployed contracts and cross time-dependent deadlines.
package harness

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/engine"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/registry"
	"github.com/picklr-io/deployr/internal/state"
	"github.com/picklr-io/deployr/providers/evm"
)

// Options configure a Harness. Zero values select the built-in plan.
type Options struct {
	Artifacts     artifact.Source
	Resources     []*ir.Resource
	Constants     map[string]any
	Confirmations uint64
	Accounts      int
}

type Harness struct {
	sim      *evm.Simulator
	provider *evm.Provider
	engine   *engine.Engine
	registry *registry.Registry
	network  ir.NetworkContext
	records  map[string]*ir.DeploymentRecord
}

// New starts a fresh chain. Artifacts are required.
func New(ctx context.Context, opts Options) (*Harness, error) {
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("harness needs contract artifacts")
	}
	if opts.Resources == nil {
		opts.Resources = registry.Default()
	}
	if opts.Constants == nil {
		opts.Constants = registry.DefaultConstants()
	}
	if opts.Accounts == 0 {
		opts.Accounts = 3
	}

	reg, err := registry.New(opts.Resources, opts.Constants)
	if err != nil {
		return nil, err
	}

	sim, err := evm.NewSimulator(opts.Accounts)
	if err != nil {
		return nil, err
	}

	network := ir.NetworkContext{
		ID:                evm.SimulatedChainID,
		Name:              "harness",
		ConfirmationDepth: opts.Confirmations,
		Ephemeral:         true,
	}
	p, err := evm.New(ctx, sim.Client(), evm.Config{
		Network:      network,
		Key:          sim.Key(),
		Artifacts:    opts.Artifacts,
		Store:        state.NewStore(state.NewMemory(), network.ID),
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		sim.Close()
		return nil, err
	}
	p.WithMiner(sim)

	return &Harness{
		sim:      sim,
		provider: p,
		engine:   engine.NewEngine(p, network, opts.Constants),
		registry: reg,
		network:  network,
		records:  make(map[string]*ir.DeploymentRecord),
	}, nil
}

// Deploy runs the resources carrying any of tags, all of them when none are given.
// Records accumulate across calls, so a second Deploy reuses earlier deployments.
func (h *Harness) Deploy(ctx context.Context, tags ...string) (map[string]*ir.DeploymentRecord, error) {
	result, err := h.engine.Deploy(ctx, h.registry.Select(tags))
	if result != nil {
		for name, rec := range result.Records {
			h.records[name] = rec
		}
	}
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// Record returns the deployment of name made by this harness, or nil.
func (h *Harness) Record(name string) *ir.DeploymentRecord {
	return h.records[name]
}

// Handle returns a capability over the deployed resource name.
func (h *Harness) Handle(ctx context.Context, name string) (backend.Handle, error) {
	handle, err := h.provider.Handle(ctx, name)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// Tx selects the sender of a transaction, as an index into Accounts, and the wei
// sent with it.
type Tx struct {
	Account int
	Value   *big.Int
}

// Transact sends op to the deployed resource name. Reverts the contract declares
// come back as *evm.RevertError.
func (h *Harness) Transact(ctx context.Context, name string, tx Tx, op string, args ...any) (string, error) {
	keys := h.sim.Accounts()
	if tx.Account < 0 || tx.Account >= len(keys) {
		return "", fmt.Errorf("account %d out of range, harness has %d", tx.Account, len(keys))
	}
	handle, err := h.provider.Handle(ctx, name)
	if err != nil {
		return "", err
	}
	return handle.TransactWith(ctx, evm.TxOptions{From: keys[tx.Account], Value: tx.Value}, op, args...)
}

// Network returns the harness network context.
func (h *Harness) Network() ir.NetworkContext {
	return h.network
}

// Accounts returns the funded addresses, deployer first.
func (h *Harness) Accounts() []common.Address {
	keys := h.sim.Accounts()
	out := make([]common.Address, len(keys))
	for i, k := range keys {
		out[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return out
}

// AdvanceTime moves the chain clock forward and seals a block.
func (h *Harness) AdvanceTime(seconds uint64) error {
	return h.sim.AdvanceTime(time.Duration(seconds) * time.Second)
}

// MineBlock seals the pending block.
func (h *Harness) MineBlock() common.Hash {
	return h.sim.Commit()
}

// Balance returns the wei balance at address.
func (h *Harness) Balance(ctx context.Context, address string) (string, error) {
	bal, err := h.sim.Client().BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", err
	}
	return bal.String(), nil
}

// BlockTime returns the timestamp of the latest block.
func (h *Harness) BlockTime(ctx context.Context) (uint64, error) {
	header, err := h.sim.Client().HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return header.Time, nil
}

func (h *Harness) Close() error {
	return h.sim.Close()
}
