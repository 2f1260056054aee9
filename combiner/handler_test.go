package combiner

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/protocol"
	"github.com/celo-org/celo-monorepo-sub009/quota"
	"github.com/celo-org/celo-monorepo-sub009/signer"
	"github.com/celo-org/celo-monorepo-sub009/store"
	"github.com/celo-org/celo-monorepo-sub009/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// startSigners runs real signer services behind httptest listeners, all
// sharing one threshold key and one funded verified account.
func startSigners(t *testing.T, threshold, n int, acct *testutil.TestAccount) ([]SignerClient, *crypto.PublicShares) {
	t.Helper()
	shares, pub := testutil.ThresholdKeys(t, threshold, n)

	clients := make([]SignerClient, 0, n)
	for i := 0; i < n; i++ {
		mock := chain.NewMockReader()
		mock.SetAccount(acct.Address, 5, big.NewInt(0), big.NewInt(0), true)
		mock.SetBlockNumber(100)

		cfg := quota.Config{UnverifiedBaseQuota: 10, VerifiedBonusQuota: 30, PerTransactionQuota: 40}
		st := store.NewInMemoryStore()
		svc := quota.New(mock, st, cfg, slog.Default())
		orch := signer.NewOrchestrator(shares[i], svc, mock, st, slog.Default())

		router := chi.NewRouter()
		signer.NewHandler(orch, mock, slog.Default()).RegisterRoutes(router)
		srv := httptest.NewServer(router)
		t.Cleanup(srv.Close)

		clients = append(clients, NewHTTPSignerClient(srv.URL, 5*time.Second))
	}
	return clients, pub
}

func startCombiner(t *testing.T, signers []SignerClient, pub *crypto.PublicShares) *httptest.Server {
	t.Helper()
	c, err := New(signers, pub, 5, slog.Default())
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandler(c, slog.Default()).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postBody(t *testing.T, url string, body []byte, auth string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set(protocol.AuthorizationHeader, auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCombinedSigEndToEnd(t *testing.T) {
	acct := testutil.NewTestAccount(t)
	signers, pub := startSigners(t, 2, 3, acct)
	srv := startCombiner(t, signers, pub)

	req := testutil.NewSignRequest(t, acct)
	body, auth := testutil.SignedBody(t, req, acct)

	httpResp := postBody(t, srv.URL+protocol.CombinedSigEndpoint, body, auth)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	resp, err := protocol.DecodeMessage[protocol.SignResponse](httpResp.Body)
	require.NoError(t, err)
	require.True(t, resp.Success)

	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	require.NoError(t, err)
	require.NoError(t, crypto.VerifyCombined(pub, req.BlindedQueryPhoneNumber, sig))
}

func TestLegacyAliasServesCombinedSig(t *testing.T) {
	acct := testutil.NewTestAccount(t)
	signers, pub := startSigners(t, 2, 3, acct)
	srv := startCombiner(t, signers, pub)

	req := testutil.NewSignRequest(t, acct)
	body, auth := testutil.SignedBody(t, req, acct)

	httpResp := postBody(t, srv.URL+protocol.DistributedBlindedSaltAlias, body, auth)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
}

func TestCombinedSigRejectsMissingAuth(t *testing.T) {
	acct := testutil.NewTestAccount(t)
	signers, pub := startSigners(t, 2, 3, acct)
	srv := startCombiner(t, signers, pub)

	req := testutil.NewSignRequest(t, acct)
	body, _ := testutil.SignedBody(t, req, acct)

	httpResp := postBody(t, srv.URL+protocol.CombinedSigEndpoint, body, "")
	require.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
}

func TestCombinedSigRejectsMalformedAccount(t *testing.T) {
	acct := testutil.NewTestAccount(t)
	signers, pub := startSigners(t, 2, 3, acct)
	srv := startCombiner(t, signers, pub)

	httpResp := postBody(t, srv.URL+protocol.CombinedSigEndpoint, []byte(`{"account":"nope"}`), "x")
	require.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}

func TestCombinerQuotaEndpoint(t *testing.T) {
	acct := testutil.NewTestAccount(t)
	signers, pub := startSigners(t, 2, 3, acct)
	srv := startCombiner(t, signers, pub)

	req := &protocol.QuotaRequest{Account: acct.Address.Hex()}
	body, auth := testutil.SignedBody(t, req, acct)

	httpResp := postBody(t, srv.URL+protocol.QuotaEndpoint, body, auth)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	resp, err := protocol.DecodeMessage[protocol.QuotaResponse](httpResp.Body)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, int64(240), resp.TotalQuota)
	require.Equal(t, int64(0), resp.PerformedQueryCount)
}

func TestCombinerStatusEndpoint(t *testing.T) {
	acct := testutil.NewTestAccount(t)
	signers, pub := startSigners(t, 2, 2, acct)
	srv := startCombiner(t, signers, pub)

	httpResp, err := http.Get(srv.URL + protocol.StatusEndpoint)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	resp, err := protocol.DecodeMessage[protocol.StatusResponse](httpResp.Body)
	require.NoError(t, err)
	require.Equal(t, "combiner", resp.Service)
	require.Equal(t, protocol.Version, resp.Version)
}
