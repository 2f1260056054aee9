package signer

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"testing"

	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/celo-org/celo-monorepo-sub009/quota"
	"github.com/celo-org/celo-monorepo-sub009/store"
	"github.com/celo-org/celo-monorepo-sub009/testutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type signerFixture struct {
	orch  *Orchestrator
	mock  *chain.MockReader
	store *store.InMemoryStore
	pub   *crypto.PublicShares
}

func newSignerFixture(t *testing.T) *signerFixture {
	t.Helper()
	shares, pub := testutil.ThresholdKeys(t, 2, 3)

	mock := chain.NewMockReader()
	mock.SetBlockNumber(100)
	st := store.NewInMemoryStore()

	cfg := quota.Config{UnverifiedBaseQuota: 10, VerifiedBonusQuota: 30, PerTransactionQuota: 40}
	svc := quota.New(mock, st, cfg, slog.Default())

	return &signerFixture{
		orch:  NewOrchestrator(shares[0], svc, mock, st, slog.Default()),
		mock:  mock,
		store: st,
		pub:   pub,
	}
}

func TestHandleSignRequestSuccess(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 5, big.NewInt(0), big.NewInt(0), true)

	req := testutil.NewSignRequest(t, acct)
	body, auth := testutil.SignedBody(t, req, acct)

	resp, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
	require.Equal(t, int64(1), resp.PerformedQueryCount)
	require.Equal(t, int64(240), resp.TotalQuota)
	require.Equal(t, uint64(100), resp.BlockNumber)
	require.Empty(t, resp.Warnings)

	partial, err := base64.StdEncoding.DecodeString(resp.Signature)
	require.NoError(t, err)
	require.NoError(t, crypto.VerifyPartial(f.pub, req.BlindedQueryPhoneNumber, partial))
}

func TestHandleSignRequestReplay(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 0, big.NewInt(0), big.NewInt(0), true)

	req := testutil.NewSignRequest(t, acct)
	body, auth := testutil.SignedBody(t, req, acct)

	first, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.True(t, first.Success)
	require.Equal(t, int64(1), first.PerformedQueryCount)

	second, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.True(t, second.Success)
	require.Contains(t, second.Warnings, protocol.WarnDuplicateRequest)
	require.Equal(t, first.Signature, second.Signature)
	require.Equal(t, int64(1), second.PerformedQueryCount)
}

func TestHandleSignRequestRejectsUnauthenticated(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 0, big.NewInt(0), big.NewInt(0), true)

	req := testutil.NewSignRequest(t, acct)
	body, _ := testutil.SignedBody(t, req, acct)

	_, status, err := f.orch.HandleSignRequest(context.Background(), body, "")
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	// A signature by some other key is just as unauthenticated.
	other := testutil.NewTestAccount(t)
	_, wrongAuth := testutil.SignedBody(t, req, other)
	_, status, err = f.orch.HandleSignRequest(context.Background(), body, wrongAuth)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestHandleSignRequestDEKFallback(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 0, big.NewInt(0), big.NewInt(0), true)

	dekKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	f.mock.SetDEK(acct.Address, ethcrypto.CompressPubkey(&dekKey.PublicKey))

	req := testutil.NewSignRequest(t, acct)
	body, err := protocol.SerializeMessage(req)
	require.NoError(t, err)

	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(body), dekKey)
	require.NoError(t, err)
	auth := base64.StdEncoding.EncodeToString(sig)

	resp, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
}

func TestHandleSignRequestQuotaExceeded(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	// Unverified, unfunded, no transactions: totalQuota is zero.
	f.mock.SetAccount(acct.Address, 0, big.NewInt(0), big.NewInt(0), false)

	req := testutil.NewSignRequest(t, acct)
	body, auth := testutil.SignedBody(t, req, acct)

	_, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, status)

	count, err := f.store.QueryCount(context.Background(), acct.Address)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestHandleSignRequestMalformedInput(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 0, big.NewInt(0), big.NewInt(0), true)

	req := testutil.NewSignRequest(t, acct)
	req.BlindedQueryPhoneNumber = "not-base64!!"
	body, auth := testutil.SignedBody(t, req, acct)

	_, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, status)

	req.Account = "0x1234"
	body, auth = testutil.SignedBody(t, req, acct)
	_, status, _ = f.orch.HandleSignRequest(context.Background(), body, auth)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHandleSignRequestBookkeepingFailure(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 0, big.NewInt(0), big.NewInt(0), true)

	req := testutil.NewSignRequest(t, acct)
	body, auth := testutil.SignedBody(t, req, acct)

	// FailWith only affects the mutating call, so the quota check still
	// runs and admission succeeds before bookkeeping fails.
	f.store.FailWith = errors.New("database offline")

	resp, status, err := f.orch.HandleSignRequest(context.Background(), body, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.False(t, resp.Success)
	require.Contains(t, resp.Warnings, protocol.WarnBookkeepingFailure)
	require.NotEmpty(t, resp.Signature)
}

func TestHandleQuotaRequest(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)
	f.mock.SetAccount(acct.Address, 2, big.NewInt(0), big.NewInt(1), false)

	req := &protocol.QuotaRequest{Account: acct.Address.Hex()}
	body, auth := testutil.SignedBody(t, req, acct)

	// Stable balance of 1 wei meets a 1 wei minimum.
	f.orch.quota = quota.New(f.mock, f.store, quota.Config{
		UnverifiedBaseQuota: 10,
		PerTransactionQuota: 40,
		MinStableBalance:    big.NewInt(1),
	}, slog.Default())

	resp, status, err := f.orch.HandleQuotaRequest(context.Background(), body, auth)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
	require.Equal(t, int64(90), resp.TotalQuota)
	require.Equal(t, int64(0), resp.PerformedQueryCount)
}

func TestHandleQuotaRequestRejectsUnauthenticated(t *testing.T) {
	f := newSignerFixture(t)
	acct := testutil.NewTestAccount(t)

	req := &protocol.QuotaRequest{Account: acct.Address.Hex()}
	body, _ := testutil.SignedBody(t, req, acct)

	_, status, err := f.orch.HandleQuotaRequest(context.Background(), body, "")
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, status)
}
