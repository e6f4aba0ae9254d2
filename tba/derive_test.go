package tba

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func testDerivation() DerivationParams {
	return DerivationParams{
		ChainID:        big.NewInt(31337),
		Registry:       common.HexToAddress("0x000000000000000000000000000000000000aaaa"),
		Implementation: common.HexToAddress("0x000000000000000000000000000000000000bbbb"),
		Ledger:         common.HexToAddress("0x0000000000000000000000000000000000000042"),
		TokenID:        uint256.NewInt(1),
	}
}

func TestAccountInitCode(t *testing.T) {
	p := testDerivation()
	code := AccountInitCode(p)

	// 10 bytes of creation code, 45 bytes of proxy, 3 words of token data.
	require.Len(t, code, 10+45+96)
	require.Equal(t, byte(45+96), code[2])
	require.Equal(t, p.Implementation.Bytes(), code[20:40])
	require.Equal(t, common.BigToHash(p.ChainID).Bytes(), code[55:87])
	require.Equal(t, common.BytesToHash(p.Ledger.Bytes()).Bytes(), code[87:119])
	require.Equal(t, common.Hash(p.TokenID.Bytes32()).Bytes(), code[119:151])
}

func TestDeriveAccountAddressKnownValue(t *testing.T) {
	p := testDerivation()

	require.Equal(t, common.HexToHash("0x4fa885d799dd4bf0fd478e12aede263554d2c3c171680a08d3bd4e23ae350778"),
		AccountSalt(p.ChainID, p.Ledger, p.TokenID))
	require.Equal(t, common.HexToHash("0x55e7070cd7ae04ae36d3affd0c3ea786dc7a3ba7e51ae33f186ec3efc763ad54"),
		crypto.Keccak256Hash(AccountInitCode(p)))
	require.Equal(t, common.HexToAddress("0x04b88Fa8fb9C049e2c735bE090A45cACA03081a7"), DeriveAccountAddress(p))
}

func TestDeriveAccountAddressDefaults(t *testing.T) {
	p := testDerivation()
	p.ChainID = nil
	p.TokenID = nil

	var addr common.Address
	require.NotPanics(t, func() { addr = DeriveAccountAddress(p) })

	q := testDerivation()
	q.ChainID = DefaultChainID
	q.TokenID = uint256.NewInt(0)
	require.Equal(t, DeriveAccountAddress(q), addr)
	require.NotPanics(t, func() { DeriveAccountAddress(DerivationParams{}) })
}

func TestDeriveAccountAddress(t *testing.T) {
	p := testDerivation()
	addr := DeriveAccountAddress(p)
	require.Equal(t, addr, DeriveAccountAddress(testDerivation()))

	salt := AccountSalt(p.ChainID, p.Ledger, p.TokenID)
	require.Equal(t, crypto.CreateAddress2(p.Registry, salt, crypto.Keccak256(AccountInitCode(p))), addr)

	testCases := []struct {
		name   string
		modify func(*DerivationParams)
	}{
		{"chain_id", func(p *DerivationParams) { p.ChainID = big.NewInt(1) }},
		{"registry", func(p *DerivationParams) { p.Registry = common.HexToAddress("0x01") }},
		{"implementation", func(p *DerivationParams) { p.Implementation = common.HexToAddress("0x02") }},
		{"ledger", func(p *DerivationParams) { p.Ledger = common.HexToAddress("0x03") }},
		{"token_id", func(p *DerivationParams) { p.TokenID = uint256.NewInt(2) }},
		{"max_token_id", func(p *DerivationParams) { p.TokenID = new(uint256.Int).SetAllOne() }},
	}
	seen := map[common.Address]string{addr: "base"}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := testDerivation()
			tc.modify(&q)
			got := DeriveAccountAddress(q)
			prev, dup := seen[got]
			require.False(t, dup, "collides with %s", prev)
			seen[got] = tc.name
		})
	}
}
