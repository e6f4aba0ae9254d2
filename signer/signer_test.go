package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDevMnemonicSigners(t *testing.T) {
	expected := []common.Address{
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
		common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"),
	}

	signers, err := Signers(DevMnemonic, len(expected))
	require.NoError(t, err)
	for i, s := range signers {
		require.Equal(t, expected[i], s.Address, "signer %d", i)
	}

	require.Equal(t, "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", signers[0].KeyHex())
}

func TestMnemonicNormalization(t *testing.T) {
	a, err := FromMnemonic("  TEST test test test test test test test test test test   junk ", 0)
	require.NoError(t, err)
	b, err := FromMnemonic(DevMnemonic, 0)
	require.NoError(t, err)
	require.Equal(t, b.Address, a.Address)

	_, err = FromMnemonic("   ", 0)
	require.Error(t, err)

	// Words outside the BIP-39 list.
	_, err = FromMnemonic("tokenbound accounts follow their token", 0)
	require.Error(t, err)
}

func TestDerivationPath(t *testing.T) {
	// m/44'/60'/0'/0/3 of the development mnemonic.
	key, err := DeriveKeyFromMnemonic(DevMnemonic, 3)
	require.NoError(t, err)
	require.Equal(t, "7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6", key)

	s, err := FromKey(key)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"), s.Address)
}

func TestFromKey(t *testing.T) {
	s, err := FromKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address)

	_, err = FromKey("zz")
	require.Error(t, err)
}
