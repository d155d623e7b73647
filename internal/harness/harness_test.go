package harness

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/deployr/internal/artifact"
	"github.com/picklr-io/deployr/internal/artifact/artifacttest"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/registry"
	"github.com/picklr-io/deployr/providers/evm"
)

func newHarness(t *testing.T, opts Options) *Harness {
	t.Helper()
	if opts.Artifacts == nil {
		opts.Artifacts = artifacttest.CryptoDevs()
	}
	h, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHarness_DeploysDefaultPlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	records, err := h.Deploy(ctx, "all")
	require.NoError(t, err)
	require.Len(t, records, 5)

	nft := records["NFTCollection"]
	assert.Equal(t, []any{registry.MetadataURL, records["Whitelist"].Address}, nft.Args)
	assert.Equal(t, []any{nft.Address}, records["ICO"].Args)
	assert.Equal(t, []any{records["NFTMarketplace"].Address, nft.Address}, records["CryptoDevDAO"].Args)

	// the DAO is funded with 1 ether at construction
	bal, err := h.Balance(ctx, records["CryptoDevDAO"].Address)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", bal)

	ico, err := h.Handle(ctx, "ICO")
	require.NoError(t, err)
	assert.Equal(t, records["ICO"].Address, ico.Address())

	out, err := ico.Call(ctx, "answer")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0, big.NewInt(42).Cmp(out[0].(*big.Int)))
}

func TestHarness_DeployByTagThenAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	records, err := h.Deploy(ctx, "whitelist")
	require.NoError(t, err)
	require.Len(t, records, 1)
	whitelist := records["Whitelist"].Address

	_, err = h.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, whitelist, h.Record("Whitelist").Address, "existing deployment is reused")
	assert.Equal(t, whitelist, h.Record("NFTCollection").Args[1])
}

func TestHarness_AdvanceTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	before, err := h.BlockTime(ctx)
	require.NoError(t, err)

	require.NoError(t, h.AdvanceTime(300))
	h.MineBlock()

	after, err := h.BlockTime(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, after-before, uint64(300))
}

func TestHarness_Accounts(t *testing.T) {
	h := newHarness(t, Options{Accounts: 4})
	assert.Len(t, h.Accounts(), 4)
}

func TestHarness_ConfirmationDepth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{
		Confirmations: 3,
		Resources:     []*ir.Resource{{Name: "NFTMarketplace"}},
	})

	records, err := h.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusConfirmed, records["NFTMarketplace"].Status)
	assert.Equal(t, uint64(3), h.Network().Depth())
}

func TestHarness_RequiresArtifacts(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestHarness_TransactFromOtherAccountWithValue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	records, err := h.Deploy(ctx)
	require.NoError(t, err)

	accounts := h.Accounts()
	deployerBefore, err := h.Balance(ctx, accounts[0].Hex())
	require.NoError(t, err)
	senderBefore, err := h.Balance(ctx, accounts[1].Hex())
	require.NoError(t, err)

	_, err = h.Transact(ctx, "CryptoDevDAO", Tx{Account: 1, Value: big.NewInt(1e17)}, "poke")
	require.NoError(t, err)

	bal, err := h.Balance(ctx, records["CryptoDevDAO"].Address)
	require.NoError(t, err)
	assert.Equal(t, "1100000000000000000", bal)

	deployerAfter, err := h.Balance(ctx, accounts[0].Hex())
	require.NoError(t, err)
	assert.Equal(t, deployerBefore, deployerAfter)

	senderAfter, err := h.Balance(ctx, accounts[1].Hex())
	require.NoError(t, err)
	before, _ := new(big.Int).SetString(senderBefore, 10)
	after, _ := new(big.Int).SetString(senderAfter, 10)
	spent := new(big.Int).Sub(before, after)
	assert.True(t, spent.Cmp(big.NewInt(1e17)) > 0, "sender pays value plus gas, spent %s", spent)
}

func TestHarness_TransactDecodesCustomRevert(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{
		Artifacts: artifact.Static{"Sale": artifacttest.Rejecting("Sale", "NotEnoughETHSent")},
		Resources: []*ir.Resource{{Name: "Sale"}},
	})
	_, err := h.Deploy(ctx)
	require.NoError(t, err)

	_, err = h.Transact(ctx, "Sale", Tx{Account: 1, Value: big.NewInt(1)}, "mint", 2)
	require.Error(t, err)

	var rerr *evm.RevertError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, "NotEnoughETHSent", rerr.Name)
	assert.Empty(t, rerr.Args)

	sale, err := h.Handle(ctx, "Sale")
	require.NoError(t, err)
	_, err = sale.Call(ctx, "answer")
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "NotEnoughETHSent", rerr.Name)
}

func TestHarness_TransactRejectsUnknownAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{Resources: []*ir.Resource{{Name: "NFTMarketplace"}}})
	_, err := h.Deploy(ctx)
	require.NoError(t, err)

	_, err = h.Transact(ctx, "NFTMarketplace", Tx{Account: 7}, "poke")
	assert.ErrorContains(t, err, "out of range")
}
