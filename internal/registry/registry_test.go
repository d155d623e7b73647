package registry

import (
	"math/big"
	"testing"

	"github.com/picklr-io/deployr/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultPlan(t *testing.T) {
	reg, err := New(Default(), DefaultConstants())
	require.NoError(t, err)

	var names []string
	for _, res := range reg.ListResources() {
		names = append(names, res.Name)
	}
	assert.Equal(t, []string{"Whitelist", "NFTCollection", "ICO", "NFTMarketplace", "CryptoDevDAO"}, names)
}

func TestNew_RejectsForwardReference(t *testing.T) {
	resources := []*ir.Resource{
		{Name: "ICO", Args: []any{ir.Ptr("NFTCollection")}, DependsOn: []string{"NFTCollection"}},
		{Name: "NFTCollection"},
	}

	_, err := New(resources, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForwardReference)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ICO", verr.Resource)
}

func TestNew_RejectsUnknownDependency(t *testing.T) {
	_, err := New([]*ir.Resource{{Name: "ICO", DependsOn: []string{"Ghost"}}}, nil)
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestNew_RejectsSelfDependency(t *testing.T) {
	_, err := New([]*ir.Resource{{Name: "A", DependsOn: []string{"A"}}}, nil)
	assert.ErrorIs(t, err, ErrForwardReference)
}

func TestNew_RejectsDuplicate(t *testing.T) {
	_, err := New([]*ir.Resource{{Name: "A"}, {Name: "A"}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateResource)
}

func TestNew_RequiresExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Name: "Whitelist"},
		{Name: "NFTCollection", Args: []any{ir.Ptr("Whitelist")}},
	}
	_, err := New(resources, nil)
	assert.ErrorIs(t, err, ErrUndeclaredDependency)
}

func TestNew_RejectsMissingConstant(t *testing.T) {
	resources := []*ir.Resource{
		{Name: "NFTCollection", Args: []any{ir.Const("metadataURL")}},
	}
	_, err := New(resources, map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestNew_RejectsBadValue(t *testing.T) {
	_, err := New([]*ir.Resource{{Name: "DAO", Value: "lots"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidResource)
}

func TestSelect(t *testing.T) {
	reg, err := New(Default(), DefaultConstants())
	require.NoError(t, err)

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"no tags", nil, []string{"Whitelist", "NFTCollection", "ICO", "NFTMarketplace", "CryptoDevDAO"}},
		{"all", []string{"all"}, []string{"Whitelist", "NFTCollection", "ICO", "NFTMarketplace", "CryptoDevDAO"}},
		{"single", []string{"ico"}, []string{"ICO"}},
		{"family", []string{"cryptoDevDao"}, []string{"NFTMarketplace", "CryptoDevDAO"}},
		{"keeps declaration order", []string{"ico", "whitelist"}, []string{"Whitelist", "ICO"}},
		{"unknown", []string{"nope"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, res := range reg.Select(tt.tags) {
				got = append(got, res.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValue(t *testing.T) {
	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)
	halfEther, _ := new(big.Int).SetString("500000000000000000", 10)

	tests := []struct {
		in      string
		want    *big.Int
		wantErr bool
	}{
		{"", big.NewInt(0), false},
		{"1000", big.NewInt(1000), false},
		{"1ether", oneEther, false},
		{"0.5 ether", halfEther, false},
		{"20gwei", big.NewInt(20_000_000_000), false},
		{"7wei", big.NewInt(7), false},
		{"0.5", nil, true},
		{"-1", nil, true},
		{"abc", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tt.want.Cmp(got), "got %s", got)
		})
	}
}
