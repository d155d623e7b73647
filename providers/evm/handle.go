package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/backend"
)

// Handle binds a deployed contract's ABI to its address.
type Handle struct {
	provider *Provider
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

var _ backend.Handle = (*Handle)(nil)

// TxOptions select the sender and the wei sent with a transaction. Zero values
// send from the deployer without value.
type TxOptions struct {
	From  *ecdsa.PrivateKey
	Value *big.Int
}

// Handle returns a typed capability over the confirmed deployment of name.
func (p *Provider) Handle(ctx context.Context, name string) (*Handle, error) {
	rec, err := p.cfg.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !rec.Confirmed() {
		return nil, fmt.Errorf("%w: %s is not deployed", backend.ErrUnresolvedReference, name)
	}
	contract := rec.Contract
	if contract == "" {
		contract = rec.Name
	}
	art, err := p.cfg.Artifacts.Load(contract)
	if err != nil {
		return nil, err
	}
	return p.Bind(common.HexToAddress(rec.Address), art), nil
}

// Bind returns a handle for an arbitrary address and artifact.
func (p *Provider) Bind(address common.Address, art *artifact.Artifact) *Handle {
	return &Handle{
		provider: p,
		address:  address,
		abi:      art.ABI,
		contract: bind.NewBoundContract(address, art.ABI, p.client, p.client, p.client),
	}
}

func (h *Handle) Address() string {
	return h.address.Hex()
}

func (h *Handle) args(op string, args []any) ([]any, error) {
	method, ok := h.abi.Methods[op]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}
	return artifact.CoerceArgs(method.Inputs, args)
}

func (h *Handle) Call(ctx context.Context, op string, args ...any) ([]any, error) {
	coerced, err := h.args(op, args)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := h.contract.Call(&bind.CallOpts{Context: ctx}, &out, op, coerced...); err != nil {
		if rerr := decodeRevert(h.abi, err); rerr != nil {
			return nil, fmt.Errorf("call %s: %w", op, rerr)
		}
		return nil, fmt.Errorf("call %s: %w", op, err)
	}
	return out, nil
}

func (h *Handle) Transact(ctx context.Context, op string, args ...any) (string, error) {
	return h.TransactWith(ctx, TxOptions{}, op, args...)
}

// TransactWith sends op with the given sender and value. A revert is returned as
// a *RevertError when the contract declares the error.
func (h *Handle) TransactWith(ctx context.Context, o TxOptions, op string, args ...any) (string, error) {
	coerced, err := h.args(op, args)
	if err != nil {
		return "", err
	}
	opts, err := h.provider.senderOpts(ctx, o)
	if err != nil {
		return "", err
	}
	tx, err := h.contract.Transact(opts, op, coerced...)
	if err != nil {
		return "", fmt.Errorf("transact %s: %w", op, h.explain(ctx, opts, op, coerced, err))
	}
	h.provider.mine()
	return tx.Hash().Hex(), nil
}

// explain decodes the revert behind a failed submission. Estimation errors do
// not always keep the node's revert data, so the call is replayed when needed.
func (h *Handle) explain(ctx context.Context, opts *bind.TransactOpts, op string, args []any, cause error) error {
	if rerr := decodeRevert(h.abi, cause); rerr != nil {
		return rerr
	}
	input, err := h.abi.Pack(op, args...)
	if err != nil {
		return cause
	}
	_, err = h.provider.client.CallContract(ctx, ethereum.CallMsg{
		From:  opts.From,
		To:    &h.address,
		Value: opts.Value,
		Data:  input,
	}, nil)
	if rerr := decodeRevert(h.abi, err); rerr != nil {
		return rerr
	}
	return cause
}
