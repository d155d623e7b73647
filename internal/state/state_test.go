package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/deployr/internal/ir"
)

func TestManager_ReadWrite(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "deployments", "goerli.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	st, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
	assert.Empty(t, st.Deployments)

	st.Lineage = "test-lineage"
	st.Upsert(&ir.DeploymentRecord{
		Name:       "Whitelist",
		Address:    "0x1111111111111111111111111111111111111111",
		NetworkID:  5,
		Args:       []any{10},
		Status:     ir.StatusConfirmed,
		DeployedAt: time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, mgr.Write(ctx, st))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name": "Whitelist"`)

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-lineage", got.Lineage)
	rec := got.Find("Whitelist")
	require.NotNil(t, rec)
	assert.True(t, rec.Confirmed())
	assert.Equal(t, []any{float64(10)}, rec.Args)
}

func TestManager_Lock(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(filepath.Join(t.TempDir(), "hardhat.json"))

	require.NoError(t, mgr.Lock(ctx))
	err := mgr.Lock(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, mgr.Unlock(ctx))
	require.NoError(t, mgr.Lock(ctx))
	require.NoError(t, mgr.Unlock(ctx))
	require.NoError(t, mgr.Unlock(ctx))
}

func TestManager_LockIsRefreshedWhileHeld(t *testing.T) {
	defer func(d time.Duration) { lockRefreshInterval = d }(lockRefreshInterval)
	lockRefreshInterval = 20 * time.Millisecond

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hardhat.json")
	holder := NewManager(path)
	require.NoError(t, holder.Lock(ctx))

	lockPath := path + ".lock"
	old := time.Now().Add(-staleLockAge - time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	assert.Eventually(t, func() bool {
		info, err := os.Stat(lockPath)
		return err == nil && time.Since(info.ModTime()) < staleLockAge
	}, 2*time.Second, 10*time.Millisecond)

	other := NewManager(path)
	assert.ErrorIs(t, other.Lock(ctx), ErrLocked)

	require.NoError(t, holder.Unlock(ctx))
	require.NoError(t, other.Lock(ctx))
	require.NoError(t, other.Unlock(ctx))
}

func TestManager_AbandonedLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hardhat.json")
	lockPath := path + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1\n"), 0o644))
	old := time.Now().Add(-staleLockAge - time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	mgr := NewManager(path)
	require.NoError(t, mgr.Lock(ctx))
	require.NoError(t, mgr.Unlock(ctx))
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "my-super-secret-encryption-key!!")
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "goerli.json")
	mgr := NewManager(path)

	st := emptyState(5)
	st.Upsert(&ir.DeploymentRecord{Name: "ICO", Address: "0xabc", Status: ir.StatusPending})
	require.NoError(t, mgr.Write(ctx, st))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "ICO")

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.Find("ICO"))
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	st, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Deployments)

	st.Upsert(&ir.DeploymentRecord{Name: "A"})
	require.NoError(t, m.Write(ctx, st))

	// stored copy is independent of the caller's value
	st.Deployments[0].Name = "mutated"
	got, err := m.Read(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got.Find("A"))

	require.NoError(t, m.Lock(ctx))
	assert.ErrorIs(t, m.Lock(ctx), ErrLocked)
	require.NoError(t, m.Unlock(ctx))
}

func TestStore_PutBumpsSerialAndLineage(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemory(), 5)

	require.NoError(t, store.Put(ctx, &ir.DeploymentRecord{Name: "Whitelist", Status: ir.StatusPending}))
	require.NoError(t, store.Put(ctx, &ir.DeploymentRecord{Name: "Whitelist", Status: ir.StatusConfirmed}))

	st, err := store.Backend().Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Serial)
	assert.NotEmpty(t, st.Lineage)
	assert.Equal(t, uint64(5), st.NetworkID)
	require.Len(t, st.Deployments, 1)
	assert.Equal(t, ir.StatusConfirmed, st.Deployments[0].Status)

	rec, err := store.Get(ctx, "Whitelist")
	require.NoError(t, err)
	assert.True(t, rec.Confirmed())

	missing, err := store.Get(ctx, "ICO")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_RejectsForeignNetwork(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	require.NoError(t, NewStore(backend, 5).Put(ctx, &ir.DeploymentRecord{Name: "A"}))

	err := NewStore(backend, 1).Put(ctx, &ir.DeploymentRecord{Name: "B"})
	assert.ErrorContains(t, err, "network 5")
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	b, err := NewBackend(ctx, nil, ir.NetworkContext{Name: "hardhat", Ephemeral: true})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	dir := t.TempDir()
	b, err = NewBackend(ctx, &ir.StateConfig{Type: "local", Dir: dir}, ir.NetworkContext{Name: "goerli"})
	require.NoError(t, err)
	mgr, ok := b.(*Manager)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "goerli.json"), mgr.Path())

	b, err = NewBackend(ctx, nil, ir.NetworkContext{Name: "goerli"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultDir, "goerli.json"), b.(*Manager).Path())

	_, err = NewBackend(ctx, &ir.StateConfig{Type: "redis"}, ir.NetworkContext{Name: "goerli"})
	assert.ErrorContains(t, err, "unknown state backend type")
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemory(), 5)
	require.NoError(t, store.Put(ctx, &ir.DeploymentRecord{Name: "A"}))
	require.NoError(t, store.Put(ctx, &ir.DeploymentRecord{Name: "B"}))

	require.NoError(t, store.Delete(ctx, "A"))
	require.NoError(t, store.Delete(ctx, "missing"))

	recs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "B", recs[0].Name)
}
