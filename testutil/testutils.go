// Package testutil provides helpers shared by package tests: threshold
// key generation, test accounts with real ECDSA keys, and canonical
// signed request bodies.
package testutil

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// ThresholdKeys deals a fresh t-of-n threshold key for tests.
func ThresholdKeys(t *testing.T, threshold, n int) ([]*crypto.KeyShare, *crypto.PublicShares) {
	t.Helper()
	shares, pub, err := crypto.GenerateKeyShares(threshold, n)
	require.NoError(t, err)
	return shares, pub
}

// TestAccount is a client identity with a real signing key.
type TestAccount struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewTestAccount generates a fresh account.
func NewTestAccount(t *testing.T) *TestAccount {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &TestAccount{Key: key, Address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// BlindedMessage returns a well-formed random blinded message (a G1
// point, base64-encoded).
func BlindedMessage(t *testing.T) string {
	t.Helper()
	point := crypto.Suite.G1().Point().Pick(crypto.Suite.RandomStream())
	raw, err := point.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

// SignedBody marshals the request and signs the exact bytes with the
// account key, returning the body and the Authorization header value.
// The signature covers the canonical body, so callers must send the
// returned bytes unmodified.
func SignedBody[T any](t *testing.T, req *T, acct *TestAccount) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	sig, err := ethcrypto.Sign(accounts.TextHash(body), acct.Key)
	require.NoError(t, err)
	return body, base64.StdEncoding.EncodeToString(sig)
}

// NewSignRequest builds a valid signing request for the account.
func NewSignRequest(t *testing.T, acct *TestAccount) *protocol.SignRequest {
	t.Helper()
	return &protocol.SignRequest{
		Account:                 acct.Address.Hex(),
		BlindedQueryPhoneNumber: BlindedMessage(t),
	}
}
