package artifact

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whitelistABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"_maxWhitelistedAddresses","type":"uint8"}]},
{"type":"function","name":"numAddressesWhitelisted","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}]`

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestDir_LoadHardhatLayout(t *testing.T) {
	root := t.TempDir()
	contractDir := filepath.Join(root, "contracts", "Whitelist.sol")

	writeJSON(t, filepath.Join(contractDir, "Whitelist.json"), map[string]any{
		"_format":      "hh-sol-artifact-1",
		"contractName": "Whitelist",
		"sourceName":   "contracts/Whitelist.sol",
		"abi":          json.RawMessage(whitelistABI),
		"bytecode":     "0x6080",
	})
	writeJSON(t, filepath.Join(contractDir, "Whitelist.dbg.json"), map[string]any{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": "../../build-info/abc.json",
	})
	writeJSON(t, filepath.Join(root, "build-info", "abc.json"), map[string]any{
		"solcVersion":     "0.8.10",
		"solcLongVersion": "0.8.10+commit.fc410830",
		"input":           map[string]any{"language": "Solidity"},
	})

	dir := NewDir(root)
	a, err := dir.Load("Whitelist")
	require.NoError(t, err)

	assert.Equal(t, "contracts/Whitelist.sol:Whitelist", a.QualifiedName())
	assert.Equal(t, []byte{0x60, 0x80}, a.Bytecode)
	require.Len(t, a.ABI.Constructor.Inputs, 1)
	require.NotNil(t, a.BuildInfo)
	assert.Equal(t, "0.8.10+commit.fc410830", a.BuildInfo.SolcLongVersion)
	assert.JSONEq(t, `{"language":"Solidity"}`, string(a.BuildInfo.Input))

	again, err := dir.Load("Whitelist")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = dir.Load("Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatic(t *testing.T) {
	a, err := New("Whitelist", "", []byte(whitelistABI), "")
	require.NoError(t, err)
	assert.Nil(t, a.Bytecode)
	assert.Equal(t, "Whitelist", a.QualifiedName())

	src := Static{"Whitelist": a}
	got, err := src.Load("Whitelist")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = src.Load("ICO")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_RejectsBadInput(t *testing.T) {
	_, err := New("X", "", []byte("not json"), "")
	assert.ErrorContains(t, err, "invalid abi")

	_, err = New("X", "", []byte(whitelistABI), "0xzz")
	assert.ErrorContains(t, err, "invalid bytecode")
}

func mustType(t *testing.T, s string, components []abi.ArgumentMarshaling) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", components)
	require.NoError(t, err)
	return typ
}

func TestCoerce(t *testing.T) {
	addr := "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	big256, _ := new(big.Int).SetString("1000000000000000000", 10)

	tests := []struct {
		name    string
		typ     string
		in      any
		want    any
		wantErr bool
	}{
		{"address", "address", addr, common.HexToAddress(addr), false},
		{"bad address", "address", "0x123", nil, true},
		{"uint8 from int", "uint8", 10, uint8(10), false},
		{"uint8 from float", "uint8", float64(10), uint8(10), false},
		{"uint8 overflow", "uint8", 256, nil, true},
		{"uint negative", "uint64", -1, nil, true},
		{"int8 min", "int8", -128, int8(-128), false},
		{"int8 overflow", "int8", -129, nil, true},
		{"uint256 from string", "uint256", "1000000000000000000", big256, false},
		{"uint24 is big", "uint24", 7, big.NewInt(7), false},
		{"fractional", "uint256", 1.5, nil, true},
		{"string", "string", "ipfs://x/", "ipfs://x/", false},
		{"bool", "bool", true, true, false},
		{"bytes", "bytes", "0x0102", []byte{1, 2}, false},
		{"bytes4", "bytes4", "0x01020304", [4]byte{1, 2, 3, 4}, false},
		{"address slice", "address[]", []any{addr}, []common.Address{common.HexToAddress(addr)}, false},
		{"fixed array length", "uint8[2]", []any{1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(mustType(t, tt.typ, nil), tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPackConstructor(t *testing.T) {
	a, err := New("Whitelist", "", []byte(whitelistABI), "0x00")
	require.NoError(t, err)

	packed, err := a.PackConstructor(float64(10))
	require.NoError(t, err)
	require.Len(t, packed, 32)
	assert.Equal(t, byte(10), packed[31])

	_, err = a.PackConstructor()
	assert.ErrorContains(t, err, "argument count mismatch")
}
