package tba

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// DerivationParams are all the inputs of an account address. The address
// depends on nothing else, so it can be computed off-chain. A nil ChainID
// stands for DefaultChainID and a nil TokenID for token 0.
type DerivationParams struct {
	ChainID        *big.Int
	Registry       common.Address
	Implementation common.Address
	Ledger         common.Address
	TokenID        *uint256.Int
}

var (
	uint256Type = mustNewType("uint256")
	addressType = mustNewType("address")

	// tokenArgs is abi.encode(uint256 chainId, address tokenContract, uint256 tokenId).
	tokenArgs = abi.Arguments{{Type: uint256Type}, {Type: addressType}, {Type: uint256Type}}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// encodeTokenData returns abi.encode(chainId, ledger, tokenId), the data every
// account carries after its proxy code.
func encodeTokenData(chainID *big.Int, ledger common.Address, tokenID *uint256.Int) []byte {
	if chainID == nil {
		chainID = DefaultChainID
	}
	if tokenID == nil {
		tokenID = new(uint256.Int)
	}
	data, err := tokenArgs.Pack(chainID, ledger, tokenID.ToBig())
	if err != nil {
		// Static types only, packing can't fail for well-formed values.
		panic(err)
	}
	return data
}

// AccountSalt returns the CREATE2 salt of the account bound to the token.
func AccountSalt(chainID *big.Int, ledger common.Address, tokenID *uint256.Int) common.Hash {
	return crypto.Keccak256Hash(encodeTokenData(chainID, ledger, tokenID))
}

// AccountInitCode returns the creation code of the account: an ERC-1167
// minimal proxy delegating to the implementation followed by the token data.
func AccountInitCode(p DerivationParams) []byte {
	tokenData := encodeTokenData(p.ChainID, p.Ledger, p.TokenID)
	runtimeLen := len(proxyRuntimePrefix) + common.AddressLength + len(proxyRuntimeSuffix) + len(tokenData)

	code := make([]byte, 0, 10+runtimeLen)
	// PUSH1 runtimeLen, copy the runtime to memory and return it.
	code = append(code, 0x3d, 0x60, byte(runtimeLen), 0x80, 0x60, 0x0a, 0x3d, 0x39, 0x81, 0xf3)
	code = append(code, proxyRuntimePrefix...)
	code = append(code, p.Implementation.Bytes()...)
	code = append(code, proxyRuntimeSuffix...)
	code = append(code, tokenData...)
	return code
}

// DeriveAccountAddress returns the address the account bound to the token has
// or will have once the registry creates it.
func DeriveAccountAddress(p DerivationParams) common.Address {
	salt := AccountSalt(p.ChainID, p.Ledger, p.TokenID)
	return crypto.CreateAddress2(p.Registry, salt, crypto.Keccak256(AccountInitCode(p)))
}

// AccountRuntimeCode returns the code an account has once created: the
// creation code without its 10 byte constructor prefix.
func AccountRuntimeCode(p DerivationParams) []byte {
	return AccountInitCode(p)[10:]
}
