package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/deployr/internal/artifact/artifacttest"
	"github.com/picklr-io/deployr/internal/backend"
	"github.com/picklr-io/deployr/internal/ir"
	"github.com/picklr-io/deployr/internal/registry"
	"github.com/picklr-io/deployr/internal/state"
	"github.com/picklr-io/deployr/providers/evm"
	"github.com/picklr-io/deployr/providers/null"
)

var hardhat = ir.NetworkContext{ID: 31337, Name: "hardhat", Ephemeral: true}

func newEngine(p backend.Client) *Engine {
	e := NewEngine(p, hardhat, registry.DefaultConstants())
	e.RetryPolicy = &RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return e
}

func pick(names ...string) []*ir.Resource {
	var out []*ir.Resource
	for _, res := range registry.Default() {
		for _, n := range names {
			if res.Name == n {
				out = append(out, res)
			}
		}
	}
	return out
}

func TestDeploy_DefaultPlan(t *testing.T) {
	ctx := context.Background()
	p := null.New(state.NewStore(state.NewMemory(), hardhat.ID))

	result, err := newEngine(p).Deploy(ctx, registry.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{"Whitelist", "NFTCollection", "ICO", "NFTMarketplace", "CryptoDevDAO"}, p.Constructions())
	assert.Len(t, result.Records, 5)
	assert.Equal(t, 5, result.Report.Summary.Constructed)
	assert.Zero(t, result.Report.Summary.NotRun)

	nft := result.Records["NFTCollection"]
	assert.Equal(t, []any{registry.MetadataURL, result.Records["Whitelist"].Address}, nft.Args)

	dao := result.Records["CryptoDevDAO"]
	assert.Equal(t, []any{result.Records["NFTMarketplace"].Address, nft.Address}, dao.Args)

	for _, o := range result.Report.Resources {
		assert.Equal(t, StateConfirmed, o.State)
		assert.Equal(t, ir.VerificationSkipped, o.Verification)
	}
}

func TestDeploy_SecondRunReusesEverything(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemory(), hardhat.ID)

	first, err := newEngine(null.New(store)).Deploy(ctx, registry.Default())
	require.NoError(t, err)

	p := null.New(store)
	second, err := newEngine(p).Deploy(ctx, registry.Default())
	require.NoError(t, err)

	assert.Empty(t, p.Constructions())
	assert.Equal(t, 5, second.Report.Summary.Reused)
	for name, rec := range first.Records {
		assert.Equal(t, rec.Address, second.Records[name].Address)
		assert.True(t, second.Outcome(name).Reused)
	}
}

func TestDeploy_FailFast(t *testing.T) {
	ctx := context.Background()
	p := null.New(state.NewStore(state.NewMemory(), hardhat.ID))
	p.FailConstruct("ICO", errors.New("insufficient funds for gas"))

	result, err := newEngine(p).Deploy(ctx, registry.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrConstructionFailed)

	var rerr *ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "ICO", rerr.Resource)
	assert.Equal(t, PhaseConstruct, rerr.Phase)
	assert.True(t, IsFailure(err))

	assert.Equal(t, []string{"Whitelist", "NFTCollection"}, p.Constructions())
	assert.Contains(t, result.Records, "NFTCollection")
	assert.NotContains(t, result.Records, "ICO")

	assert.Equal(t, StateFailed, result.Outcome("ICO").State)
	assert.Equal(t, StatePending, result.Outcome("NFTMarketplace").State)
	assert.Equal(t, StatePending, result.Outcome("CryptoDevDAO").State)
	assert.Equal(t, 1, result.Report.Summary.Failed)
	assert.Equal(t, 2, result.Report.Summary.NotRun)
}

func TestDeploy_ResumesPendingConstruction(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemory(), hardhat.ID)

	first := null.New(store)
	first.FailConfirm("Whitelist", backend.ErrConfirmationTimeout)
	_, err := newEngine(first).Deploy(ctx, pick("Whitelist"))
	require.ErrorIs(t, err, backend.ErrConfirmationTimeout)

	var rerr *ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, PhaseConfirm, rerr.Phase)

	second := null.New(store)
	result, err := newEngine(second).Deploy(ctx, pick("Whitelist"))
	require.NoError(t, err)
	assert.Empty(t, second.Constructions())
	assert.Equal(t, 1, result.Report.Summary.Constructed)
	assert.True(t, result.Records["Whitelist"].Confirmed())
}

func TestDeploy_DroppedConstructionIsSubmittedAgain(t *testing.T) {
	ctx := context.Background()
	sim, err := evm.NewSimulatorWithChainID(1, hardhat.ID)
	require.NoError(t, err)
	defer sim.Close()

	store := state.NewStore(state.NewMemory(), hardhat.ID)
	require.NoError(t, store.Put(ctx, &ir.DeploymentRecord{
		Name:      "NFTMarketplace",
		Contract:  "NFTMarketplace",
		Address:   "0x000000000000000000000000000000000000dEaD",
		NetworkID: hardhat.ID,
		TxHash:    common.HexToHash("0xbad").Hex(),
		Status:    ir.StatusPending,
	}))

	p, err := evm.New(ctx, sim.Client(), evm.Config{
		Network:        hardhat,
		Key:            sim.Key(),
		Artifacts:      artifacttest.CryptoDevs(),
		Store:          store,
		PollInterval:   10 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	p.WithMiner(sim)

	first, err := newEngine(p).Deploy(ctx, pick("NFTMarketplace"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Report.Summary.Constructed)
	rec := first.Records["NFTMarketplace"]
	assert.True(t, rec.Confirmed())
	assert.NotEqual(t, "0x000000000000000000000000000000000000dEaD", rec.Address)

	for i := 0; i < 2; i++ {
		again, err := newEngine(p).Deploy(ctx, pick("NFTMarketplace"))
		require.NoError(t, err)
		assert.Equal(t, 1, again.Report.Summary.Reused)
		assert.Equal(t, rec.Address, again.Records["NFTMarketplace"].Address)
	}
}

func TestDeploy_FilteredDependencyResolvesFromBackend(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemory(), hardhat.ID)

	earlier, err := newEngine(null.New(store)).Deploy(ctx, pick("Whitelist", "NFTCollection"))
	require.NoError(t, err)

	p := null.New(store)
	result, err := newEngine(p).Deploy(ctx, pick("ICO"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ICO"}, p.Constructions())
	assert.Equal(t, []any{earlier.Records["NFTCollection"].Address}, result.Records["ICO"].Args)
}

func TestDeploy_UnresolvedReference(t *testing.T) {
	ctx := context.Background()
	p := null.New(state.NewStore(state.NewMemory(), hardhat.ID))

	_, err := newEngine(p).Deploy(ctx, pick("ICO"))
	require.ErrorIs(t, err, backend.ErrUnresolvedReference)

	var rerr *ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, PhaseResolve, rerr.Phase)
	assert.Empty(t, p.Constructions())
}

func TestDeploy_MissingConstant(t *testing.T) {
	p := null.New(state.NewStore(state.NewMemory(), hardhat.ID))
	e := NewEngine(p, hardhat, map[string]any{})

	_, err := e.Deploy(context.Background(), []*ir.Resource{{Name: "X", Args: []any{ir.Const("metadataURL")}}})
	assert.ErrorIs(t, err, backend.ErrUnresolvedReference)
}

func TestDeploy_NestedReferences(t *testing.T) {
	ctx := context.Background()
	p := null.New(state.NewStore(state.NewMemory(), hardhat.ID))
	resources := []*ir.Resource{
		{Name: "A"},
		{Name: "B", Args: []any{[]any{ir.Ptr("A"), "literal"}, map[string]any{"url": ir.Const("metadataURL")}}, DependsOn: []string{"A"}},
	}

	result, err := newEngine(p).Deploy(ctx, resources)
	require.NoError(t, err)
	args := result.Records["B"].Args
	assert.Equal(t, []any{result.Records["A"].Address, "literal"}, args[0])
	assert.Equal(t, map[string]any{"url": registry.MetadataURL}, args[1])
}

func TestDeploy_Events(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemory(), hardhat.ID)

	var states []string
	record := func(ev ApplyEvent) { states = append(states, ev.Resource+":"+ev.State) }

	_, err := newEngine(null.New(store)).DeployWithCallback(ctx, pick("Whitelist"), record)
	require.NoError(t, err)
	assert.Equal(t, []string{"Whitelist:pending", "Whitelist:submitted", "Whitelist:confirmed"}, states)

	states = nil
	_, err = newEngine(null.New(store)).DeployWithCallback(ctx, pick("Whitelist"), record)
	require.NoError(t, err)
	assert.Equal(t, []string{"Whitelist:pending", "Whitelist:reused", "Whitelist:confirmed"}, states)
}

func TestDeploy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := null.New(state.NewStore(state.NewMemory(), hardhat.ID))
	_, err := newEngine(p).Deploy(ctx, registry.Default())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFailure(err))
	assert.Empty(t, p.Constructions())
}

func TestDeploy_ReuseWithDifferentArgs(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemory(), hardhat.ID)
	_, err := newEngine(null.New(store)).Deploy(ctx, pick("Whitelist"))
	require.NoError(t, err)

	changed := pick("Whitelist")
	changed[0].Args = []any{20}

	p := null.New(store)
	result, err := newEngine(p).Deploy(ctx, changed)
	require.NoError(t, err)
	assert.Empty(t, p.Constructions())
	assert.True(t, result.Outcome("Whitelist").Reused)
}

type fakeVerifier struct {
	seen []string
}

func (f *fakeVerifier) Verify(ctx context.Context, rec *ir.DeploymentRecord) ir.VerificationStatus {
	f.seen = append(f.seen, rec.Name)
	return ir.VerificationVerified
}

type fakeExporter struct {
	failFor string
}

func (f *fakeExporter) Export(ctx context.Context, rec *ir.DeploymentRecord) (bool, error) {
	if rec.Name == f.failFor {
		return false, errors.New("disk full")
	}
	return rec.Name == "Whitelist" || rec.Name == "NFTCollection", nil
}

func TestDeploy_HooksNeverFailDeployment(t *testing.T) {
	ctx := context.Background()
	store := state.NewStore(state.NewMemory(), hardhat.ID)

	verifier := &fakeVerifier{}
	e := newEngine(null.New(store))
	e.Verifier = verifier
	e.Exporter = &fakeExporter{failFor: "NFTCollection"}

	result, err := e.Deploy(ctx, pick("Whitelist", "NFTCollection"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Whitelist", "NFTCollection"}, verifier.seen)
	assert.True(t, result.Outcome("Whitelist").Exported)
	assert.Equal(t, ir.VerificationVerified, result.Outcome("Whitelist").Verification)
	assert.Equal(t, "disk full", result.Outcome("NFTCollection").ExportError)
	assert.Equal(t, StateConfirmed, result.Outcome("NFTCollection").State)

	// reused resources are exported again but not re-verified
	verifier.seen = nil
	e = newEngine(null.New(store))
	e.Verifier = verifier
	e.Exporter = &fakeExporter{}
	result, err = e.Deploy(ctx, pick("Whitelist"))
	require.NoError(t, err)
	assert.Empty(t, verifier.seen)
	assert.Equal(t, ir.VerificationSkipped, result.Outcome("Whitelist").Verification)
	assert.True(t, result.Outcome("Whitelist").Exported)
}
