package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/node"
)

// SimulatedChainID is the chain id of the in-process chain.
const SimulatedChainID = 1337

// Simulator is an in-process chain with funded accounts.
type Simulator struct {
	backend  *simulated.Backend
	accounts []*ecdsa.PrivateKey
}

// NewSimulator funds n fresh accounts (at least one) with 10000 ether each.
func NewSimulator(n int) (*Simulator, error) {
	return NewSimulatorWithChainID(n, SimulatedChainID)
}

// NewSimulatorWithChainID is NewSimulator on a chain reporting chainID.
func NewSimulatorWithChainID(n int, chainID uint64) (*Simulator, error) {
	if n < 1 {
		n = 1
	}
	balance := new(big.Int).Mul(big.NewInt(10000), big.NewInt(1e18))

	alloc := types.GenesisAlloc{}
	accounts := make([]*ecdsa.PrivateKey, n)
	for i := range accounts {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate account: %w", err)
		}
		accounts[i] = key
		alloc[crypto.PubkeyToAddress(key.PublicKey)] = types.Account{Balance: balance}
	}

	var opts []func(*node.Config, *ethconfig.Config)
	if chainID != 0 && chainID != SimulatedChainID {
		opts = append(opts, func(_ *node.Config, ethConf *ethconfig.Config) {
			chainConfig := *ethConf.Genesis.Config
			chainConfig.ChainID = new(big.Int).SetUint64(chainID)
			ethConf.Genesis.Config = &chainConfig
			ethConf.NetworkId = chainID
		})
	}

	return &Simulator{backend: simulated.NewBackend(alloc, opts...), accounts: accounts}, nil
}

// Client returns the chain's ethclient-compatible client.
func (s *Simulator) Client() simulated.Client {
	return s.backend.Client()
}

// Key returns the deployer key.
func (s *Simulator) Key() *ecdsa.PrivateKey {
	return s.accounts[0]
}

// Accounts returns every funded key, deployer first.
func (s *Simulator) Accounts() []*ecdsa.PrivateKey {
	return s.accounts
}

// Commit seals the pending block.
func (s *Simulator) Commit() common.Hash {
	return s.backend.Commit()
}

// AdvanceTime seals an empty block d later than the current head.
func (s *Simulator) AdvanceTime(d time.Duration) error {
	return s.backend.AdjustTime(d)
}

func (s *Simulator) Close() error {
	return s.backend.Close()
}
