package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetChainID(t *testing.T) {
	t.Setenv("CHAIN_ID", "")
	t.Setenv("CHAIN_PRESET", "")
	require.Equal(t, big.NewInt(31337), GetChainID())

	t.Setenv("CHAIN_PRESET", "Sepolia")
	require.Equal(t, big.NewInt(11155111), GetChainID())
	require.Equal(t, "https://rpc.sepolia.org", GetRPCURL())

	t.Setenv("CHAIN_ID", "5")
	require.Equal(t, big.NewInt(5), GetChainID())
}

func TestGetPrivateKeyTrimsPrefix(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0xabc")
	require.Equal(t, "abc", GetPrivateKey())
}

func TestApplyPreset(t *testing.T) {
	cfg, err := ApplyPreset("local")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(31337), cfg.ChainID)
	require.Equal(t, "http://localhost:8545", cfg.RPCURL)

	_, err = ApplyPreset("nope")
	require.ErrorContains(t, err, "unknown chain preset")
}

func TestListPresetsSorted(t *testing.T) {
	require.Equal(t, []string{"holesky", "local", "mainnet", "polygon", "sepolia"}, ListPresets())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_ADDRESS=0x42\n"), 0600))
	t.Setenv("LEDGER_ADDRESS", "")
	require.NoError(t, os.Unsetenv("LEDGER_ADDRESS"))

	require.NoError(t, LoadConfig(path))
	require.Equal(t, "0x42", FromEnv().Ledger)

	require.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadFile(t *testing.T) {
	t.Setenv("CHAIN_ID", "")
	t.Setenv("CHAIN_PRESET", "")
	t.Setenv("LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
Preset: holesky
PrivateKey: "0x0102"
DBPath: /tmp/chain.db
Registry: "0x000000000000000000000000000000000000aaaa"
`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(17000), cfg.ChainID)
	require.Equal(t, "https://rpc.holesky.ethpandaops.io", cfg.RPCURL)
	require.Equal(t, "0102", cfg.PrivateKey)
	require.Equal(t, "/tmp/chain.db", cfg.DBPath)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "0x000000000000000000000000000000000000aaaa", cfg.Registry)

	require.NoError(t, os.WriteFile(path, []byte("ChainID: \"0x7a69\"\nRPCURL: http://node:8545\n"), 0600))
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(31337), cfg.ChainID)
	require.Equal(t, "http://node:8545", cfg.RPCURL)

	require.NoError(t, os.WriteFile(path, []byte("Preset: nowhere\n"), 0600))
	_, err = LoadFile(path)
	require.Error(t, err)
}
