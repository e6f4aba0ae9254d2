// Package config provides configuration management for the token-bound
// account tools with support for environment variables, YAML files and chain
// presets.
package config

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values
type Config struct {
	ChainID        *big.Int `yaml:"-"`
	RPCURL         string   `yaml:"RPCURL"`
	Mnemonic       string   `yaml:"Mnemonic"`
	PrivateKey     string   `yaml:"PrivateKey"`
	DBPath         string   `yaml:"DBPath"`
	LogLevel       string   `yaml:"LogLevel"`
	MetricsAddr    string   `yaml:"MetricsAddr"`
	Registry       string   `yaml:"Registry"`
	Implementation string   `yaml:"Implementation"`
	Ledger         string   `yaml:"Ledger"`
}

// ChainPreset represents a predefined chain configuration
type ChainPreset struct {
	Name    string
	ChainID *big.Int
	RPCURL  string
}

// ChainPresets contains predefined configurations for common networks
var ChainPresets = map[string]ChainPreset{
	"local": {
		Name:    "local",
		ChainID: big.NewInt(31337),
		RPCURL:  "http://localhost:8545",
	},
	"mainnet": {
		Name:    "mainnet",
		ChainID: big.NewInt(1),
		RPCURL:  "https://eth.llamarpc.com",
	},
	"sepolia": {
		Name:    "sepolia",
		ChainID: big.NewInt(11155111),
		RPCURL:  "https://rpc.sepolia.org",
	},
	"holesky": {
		Name:    "holesky",
		ChainID: big.NewInt(17000),
		RPCURL:  "https://rpc.holesky.ethpandaops.io",
	},
	"polygon": {
		Name:    "polygon",
		ChainID: big.NewInt(137),
		RPCURL:  "https://polygon-rpc.com",
	},
}

// fileConfig is the YAML layout, chain id is kept as a string to allow
// values over int64.
type fileConfig struct {
	Config  `yaml:",inline"`
	ChainID string `yaml:"ChainID"`
	Preset  string `yaml:"Preset"`
}

// LoadConfig loads configuration from .env file
// It silently ignores if the file doesn't exist
func LoadConfig(envPath string) error {
	if envPath != "" {
		return godotenv.Load(envPath)
	}
	// Try to load from current directory, ignore if not exists
	_ = godotenv.Load()
	return nil
}

// FromEnv builds a configuration from environment variables and defaults.
func FromEnv() *Config {
	return &Config{
		ChainID:        GetChainID(),
		RPCURL:         GetRPCURL(),
		Mnemonic:       GetMnemonic(),
		PrivateKey:     GetPrivateKey(),
		DBPath:         os.Getenv("DB_PATH"),
		LogLevel:       GetLogLevel(),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
		Registry:       os.Getenv("REGISTRY_ADDRESS"),
		Implementation: os.Getenv("IMPLEMENTATION_ADDRESS"),
		Ledger:         os.Getenv("LEDGER_ADDRESS"),
	}
}

// LoadFile reads a YAML configuration file. Values missing from the file are
// taken from the environment, a preset in the file overrides both.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := FromEnv()
	if fc.Preset != "" {
		p, ok := GetChainPreset(fc.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown chain preset: %s (available: %s)", fc.Preset, strings.Join(ListPresets(), ", "))
		}
		cfg.ChainID = p.ChainID
		cfg.RPCURL = p.RPCURL
	}
	if fc.ChainID != "" {
		id, ok := new(big.Int).SetString(fc.ChainID, 0)
		if !ok {
			return nil, fmt.Errorf("invalid chain ID: %s", fc.ChainID)
		}
		cfg.ChainID = id
	}
	overlay(&cfg.RPCURL, fc.RPCURL)
	overlay(&cfg.Mnemonic, fc.Mnemonic)
	overlay(&cfg.PrivateKey, strings.TrimPrefix(fc.PrivateKey, "0x"))
	overlay(&cfg.DBPath, fc.DBPath)
	overlay(&cfg.LogLevel, fc.LogLevel)
	overlay(&cfg.MetricsAddr, fc.MetricsAddr)
	overlay(&cfg.Registry, fc.Registry)
	overlay(&cfg.Implementation, fc.Implementation)
	overlay(&cfg.Ledger, fc.Ledger)
	return cfg, nil
}

func overlay(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

// GetChainID returns chain ID from environment variable or default
func GetChainID() *big.Int {
	if val := os.Getenv("CHAIN_ID"); val != "" {
		if id, ok := new(big.Int).SetString(val, 10); ok {
			return id
		}
	}
	// Check if preset is specified
	if preset := os.Getenv("CHAIN_PRESET"); preset != "" {
		if p, ok := GetChainPreset(preset); ok {
			return p.ChainID
		}
	}
	return big.NewInt(31337) // Default: local node
}

// GetRPCURL returns RPC URL from environment variable or default
func GetRPCURL() string {
	if val := os.Getenv("RPC_URL"); val != "" {
		return val
	}
	// Check if preset is specified
	if preset := os.Getenv("CHAIN_PRESET"); preset != "" {
		if p, ok := GetChainPreset(preset); ok {
			return p.RPCURL
		}
	}
	return "http://localhost:8545"
}

// GetPrivateKey returns private key from environment variable
// Returns empty string if not set
func GetPrivateKey() string {
	key := os.Getenv("PRIVATE_KEY")
	return strings.TrimPrefix(key, "0x")
}

// GetMnemonic returns the signer mnemonic from environment variable
func GetMnemonic() string {
	return os.Getenv("MNEMONIC")
}

// GetLogLevel returns the log level, "info" if not set
func GetLogLevel() string {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		return val
	}
	return "info"
}

// GetChainPreset returns a preset by name (case-insensitive)
func GetChainPreset(name string) (ChainPreset, bool) {
	preset, ok := ChainPresets[strings.ToLower(name)]
	return preset, ok
}

// ApplyPreset returns configuration from a named preset
func ApplyPreset(name string) (*Config, error) {
	preset, ok := GetChainPreset(name)
	if !ok {
		return nil, fmt.Errorf("unknown chain preset: %s (available: %s)", name, strings.Join(ListPresets(), ", "))
	}
	return &Config{
		ChainID: preset.ChainID,
		RPCURL:  preset.RPCURL,
	}, nil
}

// ListPresets returns all available preset names sorted alphabetically
func ListPresets() []string {
	names := make([]string, 0, len(ChainPresets))
	for name := range ChainPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrintPresets prints all available presets to stdout
func PrintPresets() {
	fmt.Println("Available chain presets:")
	names := ListPresets()
	for _, name := range names {
		p := ChainPresets[name]
		fmt.Printf("  %-10s chainId: %-10s rpc: %s\n", name, p.ChainID.String(), p.RPCURL)
	}
}
