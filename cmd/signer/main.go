// Command signer runs one ODIS signer.
//
// A signer authenticates incoming requests against the requester's
// on-chain identity, enforces per-account quota backed by PostgreSQL,
// and answers admitted requests with a partial threshold-BLS signature
// over the client's blinded message.
//
// # Usage
//
//	go run ./cmd/signer --config=signer.yaml
//	go run ./cmd/signer --addr=:8080 --key-share=@/etc/odis/share.hex
//
// Command-line flags override config file values. Without a configured
// database the signer falls back to an in-memory request store, which
// is only suitable for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/api/httpserver"
	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/cmd/common"
	"github.com/celo-org/celo-monorepo-sub009/quota"
	"github.com/celo-org/celo-monorepo-sub009/signer"
	"github.com/celo-org/celo-monorepo-sub009/store"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Config is the signer's YAML configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	// KeyShare is the hex private share, or "@path" to a file holding it.
	KeyShare string `yaml:"key_share"`

	Database *store.PostgresConfig `yaml:"database"`

	Chain struct {
		RPCURL       string `yaml:"rpc_url"`
		StableToken  string `yaml:"stable_token"`
		Attestations string `yaml:"attestations"`
		Accounts     string `yaml:"accounts"`
	} `yaml:"chain"`

	Quota quota.Config `yaml:"quota"`

	// MinNativeBalance and MinStableBalance are decimal wei amounts;
	// big.Int does not round-trip through YAML directly.
	MinNativeBalance string `yaml:"min_native_balance"`
	MinStableBalance string `yaml:"min_stable_balance"`
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		keyShareArg = flag.String("key-share", "", "Threshold key share (hex, or @file)")
		rpcURL      = flag.String("rpc", "", "Chain JSON-RPC endpoint")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
		logDebug    = flag.Bool("log-debug", false, "Log at debug level")
	)
	flag.Parse()

	cfg := &Config{ListenAddr: *addr}
	if err := common.LoadConfig(*configPath, cfg); err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}
	if isFlagSet("addr") {
		cfg.ListenAddr = *addr
	}
	if isFlagSet("metrics-addr") {
		cfg.MetricsAddr = *metricsAddr
	}
	if isFlagSet("pprof") {
		cfg.EnablePprof = *enablePprof
	}
	if isFlagSet("key-share") {
		cfg.KeyShare = *keyShareArg
	}
	if isFlagSet("rpc") {
		cfg.Chain.RPCURL = *rpcURL
	}

	log := common.NewLogger(*logJSON, *logDebug)

	if cfg.KeyShare == "" {
		fmt.Println("Error: a key share is required (--key-share or key_share in config)")
		os.Exit(1)
	}
	keyShare, err := common.LoadKeyShare(cfg.KeyShare)
	if err != nil {
		fmt.Printf("Key share error: %v\n", err)
		os.Exit(1)
	}
	log.Info("Loaded threshold key share", "index", keyShare.Index())

	if cfg.Chain.RPCURL == "" {
		fmt.Println("Error: a chain RPC endpoint is required (--rpc or chain.rpc_url in config)")
		os.Exit(1)
	}

	minNative, err := common.ParseBalance(cfg.MinNativeBalance)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	minStable, err := common.ParseBalance(cfg.MinStableBalance)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	cfg.Quota.MinNativeBalance = minNative
	cfg.Quota.MinStableBalance = minStable

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	reader, err := chain.NewEVMReader(ctx, cfg.Chain.RPCURL, chain.ContractAddresses{
		StableToken:  ethcommon.HexToAddress(cfg.Chain.StableToken),
		Attestations: ethcommon.HexToAddress(cfg.Chain.Attestations),
		Accounts:     ethcommon.HexToAddress(cfg.Chain.Accounts),
	}, chain.DefaultRetryPolicy)
	cancel()
	if err != nil {
		fmt.Printf("Chain connection error: %v\n", err)
		os.Exit(1)
	}

	var requestStore store.RequestStore
	if cfg.Database != nil {
		requestStore, err = store.NewPostgresStore(cfg.Database)
		if err != nil {
			fmt.Printf("Database error: %v\n", err)
			os.Exit(1)
		}
	} else {
		log.Warn("No database configured, using in-memory request store")
		requestStore = store.NewInMemoryStore()
	}
	defer requestStore.Close()

	quotaSvc := quota.New(reader, requestStore, cfg.Quota, log)
	orchestrator := signer.NewOrchestrator(keyShare, quotaSvc, reader, requestStore, log)
	handler := signer.NewHandler(orchestrator, reader, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            10 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler)
	if err != nil {
		fmt.Printf("Create server error: %v\n", err)
		os.Exit(1)
	}

	srv.RunInBackground()
	log.Info("Signer running", "addr", cfg.ListenAddr, "shareIndex", keyShare.Index())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")
	srv.Shutdown()
}
