// tokenbound - token-bound account registry toolkit
//
// Runs the token-bound account scenario suite on a local chain, derives
// account addresses offline, resolves bound accounts and their owners over
// JSON-RPC and serves a local chain to JSON-RPC clients.
//
// Usage:
//
//	tokenbound [options]
//
// Options:
//
//	-chain-id      Chain ID (default: 31337, or from env/preset)
//	-rpc           RPC URL (default: http://localhost:8545)
//	-mnemonic      BIP39 mnemonic for deriving signers (default: development mnemonic)
//	-preset        Chain preset (local, mainnet, sepolia, holesky, polygon)
//	-env           Path to .env file (default: .env in current directory)
//	-config        Path to a YAML configuration file
//	-list-presets  List available chain presets
//	-verbose       Show detailed output
//
// Commands:
//
//	-scenario    Run the scenario suite on an in-memory chain (default)
//	-derive      Derive the account bound to -ledger/-token for -registry/-impl
//	-owner       Resolve the account bound to -ledger/-token and its owner over RPC
//	-serve       Serve a local chain over JSON-RPC on the given address
//	-signers     Print the signers derived from the mnemonic
//
// Environment Variables:
//
//	CHAIN_ID                Chain ID (overridden by -chain-id flag)
//	RPC_URL                 RPC endpoint URL (overridden by -rpc flag)
//	MNEMONIC                Signer mnemonic
//	PRIVATE_KEY             Signer private key (no 0x prefix)
//	DB_PATH                 bbolt file for -serve (in-memory if empty)
//	LOG_LEVEL               debug, info, warn or error
//	METRICS_ADDR            Prometheus listen address for -serve
//	REGISTRY_ADDRESS        Account registry address
//	IMPLEMENTATION_ADDRESS  Account implementation address
//	LEDGER_ADDRESS          ERC-721 ledger address
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stable-net/tokenbound/config"
	"github.com/stable-net/tokenbound/rpc"
	"github.com/stable-net/tokenbound/scenario"
	"github.com/stable-net/tokenbound/signer"
	"github.com/stable-net/tokenbound/storage"
	"github.com/stable-net/tokenbound/tba"
)

func main() {
	// Pre-parse to get env path for early loading
	// We need to load .env before defining other flags so defaults work
	envLoaded := false
	for i, arg := range os.Args[1:] {
		if arg == "-env" && i+1 < len(os.Args)-1 {
			_ = config.LoadConfig(os.Args[i+2])
			envLoaded = true
			break
		} else if strings.HasPrefix(arg, "-env=") {
			_ = config.LoadConfig(strings.TrimPrefix(arg, "-env="))
			envLoaded = true
			break
		}
	}
	// Try default .env if not explicitly specified
	if !envLoaded {
		_ = config.LoadConfig("")
	}

	// Define flags
	_ = flag.String("env", "", "Path to .env file (default: .env in current directory)")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	preset := flag.String("preset", "", "Chain preset (local, mainnet, sepolia, holesky, polygon)")
	listPresets := flag.Bool("list-presets", false, "List available chain presets")

	cfg := config.FromEnv()

	// Define flags with environment-aware defaults
	chainID := flag.Int64("chain-id", cfg.ChainID.Int64(), "Chain ID")
	rpcURL := flag.String("rpc", cfg.RPCURL, "RPC URL")
	mnemonic := flag.String("mnemonic", cfg.Mnemonic, "BIP39 mnemonic for deriving signers")
	verbose := flag.Bool("verbose", false, "Show detailed output")
	dbPath := flag.String("db", cfg.DBPath, "bbolt file backing the served chain (in-memory if empty)")
	metricsAddr := flag.String("metrics", cfg.MetricsAddr, "Prometheus listen address for -serve")

	registryAddr := flag.String("registry", cfg.Registry, "Account registry address")
	implAddr := flag.String("impl", cfg.Implementation, "Account implementation address")
	ledgerAddr := flag.String("ledger", cfg.Ledger, "ERC-721 ledger address")
	tokenID := flag.String("token", "1", "Token ID")

	// Commands
	_ = flag.Bool("scenario", false, "Run the scenario suite on an in-memory chain (default)")
	derive := flag.Bool("derive", false, "Derive the bound account address offline")
	owner := flag.Bool("owner", false, "Resolve a bound account and its owner over RPC")
	serve := flag.String("serve", "", "Serve a local chain over JSON-RPC on this address (e.g. :8545)")
	signers := flag.Bool("signers", false, "Print the signers derived from the mnemonic")

	flag.Parse()

	// Handle list-presets command
	if *listPresets {
		config.PrintPresets()
		return
	}

	// Values from a config file apply unless the flag was set explicitly
	if *configPath != "" {
		fileCfg, err := config.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = fileCfg
		applyDefault("chain-id", func() { *chainID = cfg.ChainID.Int64() })
		applyDefault("rpc", func() { *rpcURL = cfg.RPCURL })
		applyDefault("mnemonic", func() { *mnemonic = cfg.Mnemonic })
		applyDefault("db", func() { *dbPath = cfg.DBPath })
		applyDefault("metrics", func() { *metricsAddr = cfg.MetricsAddr })
		applyDefault("registry", func() { *registryAddr = cfg.Registry })
		applyDefault("impl", func() { *implAddr = cfg.Implementation })
		applyDefault("ledger", func() { *ledgerAddr = cfg.Ledger })
	}

	// Apply preset if specified (preset values are overridden by explicit flags)
	if *preset != "" {
		presetConfig, err := config.ApplyPreset(*preset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		applyDefault("chain-id", func() { *chainID = presetConfig.ChainID.Int64() })
		applyDefault("rpc", func() { *rpcURL = presetConfig.RPCURL })
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log, err := newLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *mnemonic == "" {
		*mnemonic = signer.DevMnemonic
	}

	fmt.Println("Token-Bound Accounts")
	fmt.Println("====================")

	switch {
	case *signers:
		runSigners(*mnemonic, cfg.PrivateKey)
	case *derive:
		runDerive(big.NewInt(*chainID), *registryAddr, *implAddr, *ledgerAddr, *tokenID)
	case *owner:
		runOwner(*rpcURL, *registryAddr, *implAddr, *ledgerAddr, *tokenID, log)
	case *serve != "":
		runServe(*serve, *metricsAddr, *dbPath, big.NewInt(*chainID), *mnemonic, log)
	default:
		runScenario(big.NewInt(*chainID), *mnemonic, *verbose, log)
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func applyDefault(name string, set func()) {
	if !isFlagSet(name) {
		set()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cc := zap.NewDevelopmentConfig()
	cc.DisableStacktrace = true
	cc.Level = zap.NewAtomicLevelAt(lvl)
	cc.OutputPaths = []string{"stderr"}
	return cc.Build()
}

func parseAddress(name, s string) common.Address {
	if !common.IsHexAddress(s) {
		fmt.Fprintf(os.Stderr, "Error: invalid %s address %q\n", name, s)
		os.Exit(1)
	}
	return common.HexToAddress(s)
}

func parseTokenID(s string) *uint256.Int {
	id, err := uint256.FromDecimal(s)
	if err != nil {
		id, err = uint256.FromHex(s)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid token ID %q\n", s)
		os.Exit(1)
	}
	return id
}

func runScenario(chainID *big.Int, mnemonic string, verbose bool, log *zap.Logger) {
	fmt.Println("Running Scenario Suite...")
	fmt.Println("-------------------------")

	runner, err := scenario.NewRunner(scenario.Options{
		ChainID:  chainID,
		Mnemonic: mnemonic,
		Logger:   log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report, err := runner.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running scenario: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(scenario.FormatReport(report))
	if verbose {
		fmt.Println()
		for _, r := range report.Results {
			fmt.Printf("  %-12s %-30s %s\n", r.Case.Group, r.Case.Name, r.Duration)
		}
	}

	if !report.Passed() {
		os.Exit(1)
	}
}

func runSigners(mnemonic, privateKey string) {
	fmt.Println("Signers")
	fmt.Println("-------")

	list, err := signer.Signers(mnemonic, 4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error deriving signers: %v\n", err)
		os.Exit(1)
	}
	for i, s := range list {
		fmt.Printf("  [%d] %s\n", i, s.Address.Hex())
	}

	if privateKey != "" {
		s, err := signer.FromKey(privateKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("  [key] %s\n", s.Address.Hex())
	}
}

func runDerive(chainID *big.Int, registryHex, implHex, ledgerHex, tokenHex string) {
	fmt.Println("Deriving Bound Account...")
	fmt.Println("-------------------------")

	p := tba.DerivationParams{
		ChainID:        chainID,
		Registry:       parseAddress("registry", registryHex),
		Implementation: parseAddress("implementation", implHex),
		Ledger:         parseAddress("ledger", ledgerHex),
		TokenID:        parseTokenID(tokenHex),
	}

	fmt.Printf("Chain ID:       %s\n", p.ChainID.String())
	fmt.Printf("Registry:       %s\n", p.Registry.Hex())
	fmt.Printf("Implementation: %s\n", p.Implementation.Hex())
	fmt.Printf("Ledger:         %s\n", p.Ledger.Hex())
	fmt.Printf("Token ID:       %s\n", p.TokenID.Dec())
	fmt.Printf("Salt:           %s\n", tba.AccountSalt(p.ChainID, p.Ledger, p.TokenID).Hex())
	fmt.Printf("Account:        %s\n", tba.DeriveAccountAddress(p).Hex())
}

func runOwner(rpcURL, registryHex, implHex, ledgerHex, tokenHex string, log *zap.Logger) {
	fmt.Println("Resolving Bound Account...")
	fmt.Println("--------------------------")
	fmt.Printf("RPC URL: %s\n", rpcURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := rpc.Dial(ctx, rpcURL, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	registry := parseAddress("registry", registryHex)
	ledger := parseAddress("ledger", ledgerHex)
	id := parseTokenID(tokenHex)

	// The implementation is optional, the registry knows it.
	var impl common.Address
	if implHex != "" {
		impl = parseAddress("implementation", implHex)
	}

	fmt.Printf("Chain ID: %s\n", client.ChainID().String())
	if impl == (common.Address{}) {
		account, err := client.RegistryAccount(ctx, registry, ledger, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying registry: %v\n", err)
			os.Exit(1)
		}
		owner, err := client.OwnerOf(ctx, ledger, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying owner: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Account: %s\n", account.Hex())
		fmt.Printf("Owner:   %s\n", owner.Hex())
		return
	}

	info, err := client.ResolveBoundAccount(ctx, registry, impl, ledger, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving account: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Account:  %s\n", info.Account.Hex())
	fmt.Printf("Deployed: %v\n", info.Deployed)
	fmt.Printf("Owner:    %s\n", info.Owner.Hex())
}

func runServe(addr, metricsAddr, dbPath string, chainID *big.Int, mnemonic string, log *zap.Logger) {
	fmt.Println("Serving Local Chain...")
	fmt.Println("----------------------")

	var (
		store storage.Store = storage.NewMemoryStore()
		err   error
	)
	if dbPath != "" {
		store, err = storage.NewBoltDBStore(storage.BoltDBOptions{FilePath: dbPath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
	}

	chain, err := tba.NewChain(tba.Options{ChainID: chainID, Store: store, Logger: log})
	if err != nil {
		_ = store.Close()
		fmt.Fprintf(os.Stderr, "Error opening chain: %v\n", err)
		os.Exit(1)
	}
	defer chain.Close()

	runner, err := scenario.NewRunner(scenario.Options{ChainID: chainID, Mnemonic: mnemonic, Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fresh := chain.Sequence() == 0
	env, err := runner.Attach(chain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing deployment: %v\n", err)
		os.Exit(1)
	}
	if fresh {
		if _, err := env.Seed(); err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding chain: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Chain ID:       %s\n", chainID.String())
	fmt.Printf("Sequence:       %d\n", chain.Sequence())
	fmt.Printf("Ledger:         %s\n", env.Ledger.Address().Hex())
	fmt.Printf("Implementation: %s\n", env.Implementation.Hex())
	fmt.Printf("Registry:       %s\n", env.Registry.Address().Hex())
	accounts, err := env.Registry.Accounts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing accounts: %v\n", err)
		os.Exit(1)
	}
	for _, a := range accounts {
		fmt.Printf("Account:        %s (token %s)\n", a.Account.Hex(), a.TokenID.Dec())
	}

	srv, err := rpc.NewServer(chain, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer srv.Stop()

	servers := []*http.Server{{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		log.Info("listening", zap.String("addr", s.Addr))
		go func(s *http.Server) {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", s.Addr, err)
			}
		}(s)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
}
