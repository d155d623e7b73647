// Package provider opens a backend client for a configured network. Each network
// kind (simulated, rpc, null) is a factory in a Registry.
package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/logging"
	"github.com/picklr-io/deployr/internal/secrets"
	"github.com/picklr-io/deployr/internal/state"
	"github.com/picklr-io/deployr/providers/evm"
	"github.com/picklr-io/deployr/providers/null"
)

// Options are shared by every factory.
type Options struct {
	Artifacts artifact.Source
	State     *ir.StateConfig
	Deployer  *ir.DeployerConfig

	// Backend overrides the state backend selected from State.
	Backend state.Backend
	// Key overrides the deployer key source.
	Key *ecdsa.PrivateKey
	// Lock holds the state lock until the session is closed.
	Lock bool
}

// Session is an open backend for one network.
type Session struct {
	Client  backend.Client
	Network ir.NetworkContext
	Store   *state.Store

	// EVM is set for simulated and rpc networks.
	EVM *evm.Provider
	// Simulator is set for simulated networks.
	Simulator *evm.Simulator

	closers []func() error
}

func (s *Session) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close releases everything the session opened, last opened first.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Factory fills in s.Client for network n.
type Factory func(ctx context.Context, n *ir.Network, s *Session, opts Options) error

// Registry manages the available backend kinds.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	r.Register("null", openNull)
	r.Register("simulated", openSimulated)
	r.Register("rpc", openRPC)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Get returns the factory for kind.
func (r *Registry) Get(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend kind: %s", kind)
	}
	return f, nil
}

// Open builds the state store for n and the backend client of its kind.
func (r *Registry) Open(ctx context.Context, n *ir.Network, opts Options) (*Session, error) {
	factory, err := r.Get(n.Kind)
	if err != nil {
		return nil, err
	}

	netCtx := n.Context()
	sb := opts.Backend
	if sb == nil {
		sb, err = state.NewBackend(ctx, opts.State, netCtx)
		if err != nil {
			return nil, err
		}
	}

	s := &Session{Network: netCtx, Store: state.NewStore(sb, netCtx.ID)}
	if opts.Lock {
		if err := sb.Lock(ctx); err != nil {
			return nil, fmt.Errorf("failed to lock state for %s: %w", n.Name, err)
		}
		s.onClose(func() error { return sb.Unlock(context.Background()) })
	}

	if err := factory(ctx, n, s, opts); err != nil {
		s.Close()
		return nil, err
	}

	logging.Debug("backend opened", "network", n.Name, "kind", n.Kind, "chainId", n.ChainID)
	return s, nil
}

func openNull(ctx context.Context, n *ir.Network, s *Session, opts Options) error {
	s.Client = null.New(s.Store)
	return nil
}

func openSimulated(ctx context.Context, n *ir.Network, s *Session, opts Options) error {
	sim, err := evm.NewSimulatorWithChainID(1, n.ChainID)
	if err != nil {
		return err
	}
	s.onClose(sim.Close)

	key := opts.Key
	if key == nil {
		key = sim.Key()
	}
	p, err := newEVM(ctx, sim.Client(), n, s, opts, key)
	if err != nil {
		return err
	}
	p.WithMiner(sim)
	s.Simulator = sim
	return nil
}

func openRPC(ctx context.Context, n *ir.Network, s *Session, opts Options) error {
	key := opts.Key
	if key == nil {
		var source, region string
		if opts.Deployer != nil {
			source, region = opts.Deployer.Key, opts.Deployer.Region
		}
		var err error
		key, err = secrets.LoadKey(ctx, source, region)
		if err != nil {
			return err
		}
	}

	client, err := evm.Dial(ctx, n.URL)
	if err != nil {
		return err
	}
	s.onClose(func() error {
		client.Close()
		return nil
	})

	_, err = newEVM(ctx, client, n, s, opts, key)
	return err
}

func newEVM(ctx context.Context, client evm.Client, n *ir.Network, s *Session, opts Options, key *ecdsa.PrivateKey) (*evm.Provider, error) {
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("network %s needs contract artifacts", n.Name)
	}
	confirm, poll := n.Timeouts()
	p, err := evm.New(ctx, client, evm.Config{
		Network:        s.Network,
		Key:            key,
		Artifacts:      opts.Artifacts,
		Store:          s.Store,
		PollInterval:   poll,
		ConfirmTimeout: confirm,
	})
	if err != nil {
		return nil, err
	}
	s.Client = p
	s.EVM = p
	return p, nil
}
