// Package artifacttest provides small hand-assembled contracts for tests that
// need real bytecode without a compiler.
package artifacttest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/picklr-io/deployr/internal/artifact"
)

const (
	// AnswerBytecode deploys a runtime that returns 42 for any call.
	AnswerBytecode = "0x600a600c600039600a6000f3" + "602a60005260206000f3"

	// RevertingBytecode reverts during construction.
	RevertingBytecode = "0x60006000fd"

	answerMethod = `{"type":"function","name":"answer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}`
	pokeMethod   = `{"type":"function","name":"poke","stateMutability":"nonpayable","inputs":[],"outputs":[]}`
)

// Answer returns an artifact whose constructor takes the given ABI inputs JSON
// (for example `[{"name":"max","type":"uint8"}]`) and whose runtime answers 42.
func Answer(name, inputs string, payable bool) *artifact.Artifact {
	mutability := "nonpayable"
	if payable {
		mutability = "payable"
	}
	raw := fmt.Sprintf(`[{"type":"constructor","stateMutability":%q,"inputs":%s},%s,%s]`,
		mutability, inputs, answerMethod, pokeMethod)
	a, err := artifact.New(name, "contracts/"+name+".sol", []byte(raw), AnswerBytecode)
	if err != nil {
		panic(err)
	}
	return a
}

// Reverting returns an artifact whose construction always reverts.
func Reverting(name string) *artifact.Artifact {
	raw := `[{"type":"constructor","stateMutability":"nonpayable","inputs":[]}]`
	a, err := artifact.New(name, "contracts/"+name+".sol", []byte(raw), RevertingBytecode)
	if err != nil {
		panic(err)
	}
	return a
}

// Rejecting returns an artifact whose runtime reverts every call with the
// argumentless custom error errName. Its ABI declares the error, the answer
// method and a payable mint(uint256).
func Rejecting(name, errName string) *artifact.Artifact {
	selector := crypto.Keccak256([]byte(errName + "()"))[:4]
	// PUSH4 selector, PUSH1 0xe0, SHL, PUSH1 0, MSTORE, PUSH1 4, PUSH1 0, REVERT
	runtime := "63" + hexutil.Encode(selector)[2:] + "60e01b60005260046000fd"
	code := "0x6010600c60003960106000f3" + runtime

	raw := fmt.Sprintf(`[{"type":"constructor","stateMutability":"nonpayable","inputs":[]},%s,`+
		`{"type":"function","name":"mint","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},`+
		`{"type":"error","name":%q,"inputs":[]}]`, answerMethod, errName)
	a, err := artifact.New(name, "contracts/"+name+".sol", []byte(raw), code)
	if err != nil {
		panic(err)
	}
	return a
}

// CryptoDevs returns stand-ins for the five contracts of the default plan, with
// their real constructor signatures.
func CryptoDevs() artifact.Static {
	return artifact.Static{
		"Whitelist":      Answer("Whitelist", `[{"name":"_maxWhitelistedAddresses","type":"uint8"}]`, false),
		"NFTCollection":  Answer("NFTCollection", `[{"name":"baseURI","type":"string"},{"name":"whitelistContract","type":"address"}]`, false),
		"ICO":            Answer("ICO", `[{"name":"_cryptoDevsContract","type":"address"}]`, false),
		"NFTMarketplace": Answer("NFTMarketplace", `[]`, false),
		"CryptoDevDAO":   Answer("CryptoDevDAO", `[{"name":"_nftMarketplace","type":"address"},{"name":"_cryptoDevsNFT","type":"address"}]`, true),
	}
}
