// Package common provides shared helpers for the ODIS service binaries:
// loading key material from hex strings or files, YAML configuration
// loading, and logger construction.
package common

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"gopkg.in/yaml.v3"
)

// NewLogger builds the process logger. JSON output is for deployments
// behind log collectors; text output reads better locally.
func NewLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// LoadConfig reads a YAML config file into cfg. An empty path leaves
// cfg at its defaults.
func LoadConfig(path string, cfg any) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// keyMaterial resolves a flag value to hex: either the hex itself, or
// "@path" naming a file whose contents are the hex. The file form keeps
// private shares out of process listings.
func keyMaterial(value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	raw, err := os.ReadFile(strings.TrimPrefix(value, "@"))
	if err != nil {
		return "", fmt.Errorf("reading key file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// LoadKeyShare loads a private threshold key share from a hex string or
// an @-prefixed file path.
func LoadKeyShare(value string) (*crypto.KeyShare, error) {
	hexKey, err := keyMaterial(value)
	if err != nil {
		return nil, err
	}
	return crypto.NewKeyShareFromString(hexKey)
}

// LoadPublicShares loads the published commitment polynomial from a hex
// string or an @-prefixed file path.
func LoadPublicShares(value string) (*crypto.PublicShares, error) {
	hexKey, err := keyMaterial(value)
	if err != nil {
		return nil, err
	}
	return crypto.NewPublicSharesFromString(hexKey)
}

// ParseBalance parses a decimal wei amount from config. Empty means the
// minimum is not configured.
func ParseBalance(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance %q", value)
	}
	return n, nil
}
