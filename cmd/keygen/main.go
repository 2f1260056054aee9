// Command keygen deals a fresh t-of-n threshold signing key and prints
// the private shares and the published commitment polynomial as hex.
//
// Intended for local development and testing; production key shares
// come from a distributed key generation ceremony so that no single
// party ever holds the full key.
//
// # Usage
//
//	go run ./cmd/keygen --threshold=2 --shares=3
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
)

func main() {
	var (
		threshold = flag.Int("threshold", 2, "Partial signatures needed to recover the aggregate")
		n         = flag.Int("shares", 3, "Total number of key shares to deal")
	)
	flag.Parse()

	shares, pub, err := crypto.GenerateKeyShares(*threshold, *n)
	if err != nil {
		fmt.Printf("Key generation error: %v\n", err)
		os.Exit(1)
	}

	pubHex, err := pub.String()
	if err != nil {
		fmt.Printf("Serialization error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("public_shares: %s\n", pubHex)
	for _, share := range shares {
		raw, err := share.Bytes()
		if err != nil {
			fmt.Printf("Serialization error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("share_%d: %s\n", share.Index(), hex.EncodeToString(raw))
	}
}
