package registry

import "github.com/picklr-io/deployr/internal/ir"

// Addresses and URLs of contracts that live outside the plan.
const (
	WhitelistContract     = "0x6c5c4C02a9cdcb8e5F6612c3812B1a0f1a55886f"
	NFTCollectionContract = "0x5c416F3b3A312355436797602641429cfb38861c"
	MetadataURL           = "https://crypto-dev-nft-collection-frontend-4fb9.vercel.app/api/"

	MaxWhitelistedAddresses = 10
)

// DefaultConstants returns the static configuration values referenced by the built-in plan.
func DefaultConstants() map[string]any {
	return map[string]any{
		"whitelistContract":     WhitelistContract,
		"nftCollectionContract": NFTCollectionContract,
		"metadataURL":           MetadataURL,
	}
}

// Default returns the built-in Crypto Dev plan.
func Default() []*ir.Resource {
	return []*ir.Resource{
		{
			Name: "Whitelist",
			Args: []any{MaxWhitelistedAddresses},
			Tags: []string{"whitelist"},
		},
		{
			Name:      "NFTCollection",
			Args:      []any{ir.Const("metadataURL"), ir.Ptr("Whitelist")},
			DependsOn: []string{"Whitelist"},
			Tags:      []string{"nftCollection"},
		},
		{
			Name:      "ICO",
			Args:      []any{ir.Ptr("NFTCollection")},
			DependsOn: []string{"NFTCollection"},
			Tags:      []string{"ico"},
		},
		{
			Name: "NFTMarketplace",
			Tags: []string{"cryptoDevDao"},
		},
		{
			Name:      "CryptoDevDAO",
			Args:      []any{ir.Ptr("NFTMarketplace"), ir.Ptr("NFTCollection")},
			DependsOn: []string{"NFTMarketplace", "NFTCollection"},
			Value:     "1ether",
			Tags:      []string{"cryptoDevDao"},
		},
	}
}
