// Package null is an in-process backend that never touches a chain. Addresses are
// derived the same way a real chain would derive them, so plans look realistic in
// dry runs.
package null

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/state"
)

// DefaultDeployer is the sender used for address derivation.
var DefaultDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type Provider struct {
	mu       sync.Mutex
	store    *state.Store
	deployer common.Address
	nonce    uint64
	block    uint64

	failConstruct map[string]error
	failConfirm   map[string]error
	constructed   []string
}

func New(store *state.Store) *Provider {
	return &Provider{
		store:         store,
		deployer:      DefaultDeployer,
		failConstruct: make(map[string]error),
		failConfirm:   make(map[string]error),
	}
}

// FailConstruct makes Construct of name return err.
func (p *Provider) FailConstruct(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failConstruct[name] = err
}

// FailConfirm makes AwaitConfirmation of name return err after a successful submission.
func (p *Provider) FailConfirm(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failConfirm[name] = err
}

// Constructions returns the names submitted so far, in order.
func (p *Provider) Constructions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.constructed...)
}

func (p *Provider) Construct(ctx context.Context, req *backend.ConstructRequest) (*backend.Pending, error) {
	// The state serial only grows, so addresses stay unique across runs sharing a store.
	st, err := p.store.Backend().Read(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if err := p.failConstruct[req.Name]; err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.nonce = max(p.nonce, uint64(st.Serial))
	addr := crypto.CreateAddress(p.deployer, p.nonce)
	p.nonce++
	p.constructed = append(p.constructed, req.Name)
	p.mu.Unlock()

	pending := &backend.Pending{
		Name:        req.Name,
		Contract:    req.Contract,
		NetworkID:   req.NetworkID,
		Address:     addr.Hex(),
		TxHash:      crypto.Keccak256Hash(addr.Bytes(), []byte(req.Name)).Hex(),
		Args:        req.Args,
		SubmittedAt: time.Now().UTC(),
	}
	if err := p.store.Put(ctx, pendingRecord(pending)); err != nil {
		return nil, fmt.Errorf("failed to record pending deployment: %w", err)
	}
	return pending, nil
}

func (p *Provider) AwaitConfirmation(ctx context.Context, pending *backend.Pending, depth uint64) (*ir.DeploymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if err := p.failConfirm[pending.Name]; err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.block += depth
	block := p.block
	p.mu.Unlock()

	rec := pendingRecord(pending)
	rec.Status = ir.StatusConfirmed
	rec.BlockNumber = block - depth + 1
	if err := p.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record deployment: %w", err)
	}
	return rec, nil
}

func (p *Provider) LookupExisting(ctx context.Context, name string, networkID uint64) (*ir.DeploymentRecord, error) {
	rec, err := p.store.Get(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	if !rec.Confirmed() || rec.NetworkID != networkID {
		return nil, nil
	}
	return rec, nil
}

func (p *Provider) LookupPending(ctx context.Context, name string, networkID uint64) (*backend.Pending, error) {
	rec, err := p.store.Get(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status != ir.StatusPending || rec.NetworkID != networkID {
		return nil, nil
	}
	return &backend.Pending{
		Name:        rec.Name,
		Contract:    rec.Contract,
		NetworkID:   rec.NetworkID,
		Address:     rec.Address,
		TxHash:      rec.TxHash,
		Args:        rec.Args,
		SubmittedAt: rec.DeployedAt,
	}, nil
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
