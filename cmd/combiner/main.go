// Command combiner runs the ODIS combiner.
//
// The combiner is the client-facing service: it forwards each signing
// request to every configured signer, verifies the returned partial
// signatures against the published key shares, and interpolates the
// threshold aggregate signature.
//
// # Usage
//
//	go run ./cmd/combiner --config=combiner.yaml
//	go run ./cmd/combiner --addr=:8081 --public-shares=@/etc/odis/public.hex \
//	    --signer=http://signer-0:8080 --signer=http://signer-1:8080
//
// Command-line flags override config file values.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/api/httpserver"
	"github.com/celo-org/celo-monorepo-sub009/cmd/common"
	"github.com/celo-org/celo-monorepo-sub009/combiner"
)

// Config is the combiner's YAML configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	// PublicShares is the hex commitment polynomial, or "@path".
	PublicShares string `yaml:"public_shares"`

	// Signers are the base URLs of the upstream signers.
	Signers []string `yaml:"signers"`

	// SignerTimeout bounds each upstream request, in time.ParseDuration
	// form ("10s").
	SignerTimeout string `yaml:"signer_timeout"`

	// BlockDrift is the tolerated spread of signer-reported block
	// numbers before a disagreement warning.
	BlockDrift uint64 `yaml:"block_drift"`
}

type signerList []string

func (s *signerList) String() string     { return fmt.Sprint(*s) }
func (s *signerList) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var signerFlags signerList
	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		addr         = flag.String("addr", ":8081", "HTTP listen address")
		metricsAddr  = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		enablePprof  = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		publicShares = flag.String("public-shares", "", "Published key shares (hex, or @file)")
		logJSON      = flag.Bool("log-json", false, "Log in JSON format")
		logDebug     = flag.Bool("log-debug", false, "Log at debug level")
	)
	flag.Var(&signerFlags, "signer", "Signer base URL (repeatable)")
	flag.Parse()

	cfg := &Config{
		ListenAddr:    *addr,
		SignerTimeout: "10s",
		BlockDrift:    5,
	}
	if err := common.LoadConfig(*configPath, cfg); err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	signerTimeout, err := time.ParseDuration(cfg.SignerTimeout)
	if err != nil {
		fmt.Printf("Config error: invalid signer_timeout: %v\n", err)
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
	if isFlagSet("public-shares") {
		cfg.PublicShares = *publicShares
	}
	if len(signerFlags) > 0 {
		cfg.Signers = signerFlags
	}

	log := common.NewLogger(*logJSON, *logDebug)

	if cfg.PublicShares == "" {
		fmt.Println("Error: published key shares are required (--public-shares or public_shares in config)")
		os.Exit(1)
	}
	pub, err := common.LoadPublicShares(cfg.PublicShares)
	if err != nil {
		fmt.Printf("Public shares error: %v\n", err)
		os.Exit(1)
	}

	if len(cfg.Signers) == 0 {
		fmt.Println("Error: at least one signer URL is required")
		os.Exit(1)
	}

	clients := make([]combiner.SignerClient, 0, len(cfg.Signers))
	for _, url := range cfg.Signers {
		clients = append(clients, combiner.NewHTTPSignerClient(url, signerTimeout))
	}

	c, err := combiner.New(clients, pub, cfg.BlockDrift, log)
	if err != nil {
		fmt.Printf("Create combiner error: %v\n", err)
		os.Exit(1)
	}
	handler := combiner.NewHandler(c, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            10 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, handler)
	if err != nil {
		fmt.Printf("Create server error: %v\n", err)
		os.Exit(1)
	}

	srv.RunInBackground()
	log.Info("Combiner running",
		"addr", cfg.ListenAddr,
		"signers", len(cfg.Signers),
		"threshold", pub.Threshold())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")
	srv.Shutdown()
}
