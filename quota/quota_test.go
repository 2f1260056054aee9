package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"

	"github.com/celo-org/celo-monorepo-sub009/chain"
	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/celo-org/celo-monorepo-sub009/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testService(t *testing.T, cfg Config) (*Service, *chain.MockReader, *store.InMemoryStore) {
	t.Helper()
	mock := chain.NewMockReader()
	st := store.NewInMemoryStore()
	return New(mock, st, cfg, slog.Default()), mock, st
}

func defaultConfig() Config {
	return Config{
		UnverifiedBaseQuota: 10,
		VerifiedBonusQuota:  30,
		PerTransactionQuota: 40,
		MinStableBalance:    big.NewInt(1000),
		MinNativeBalance:    big.NewInt(1000),
	}
}

func fingerprint(n int) crypto.Fingerprint {
	return crypto.RequestFingerprint("phone_number", testAccount, fmt.Sprintf("blinded-%d", n))
}

func TestUnfundedUnverifiedAccountGetsZeroQuota(t *testing.T) {
	// Scenario A: no verification, no balance, no transactions.
	svc, _, _ := testService(t, defaultConfig())

	status, err := svc.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	require.Zero(t, status.TotalQuota)

	status, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "", fingerprint(1))
	require.NoError(t, err)
	require.False(t, outcome.Sufficient)
	require.Zero(t, status.QueryCount)
}

func TestVerifiedAccountQuota(t *testing.T) {
	// Scenario B: verified, 5 transactions => 10 + 30 + 40*5 = 240.
	svc, mock, _ := testService(t, defaultConfig())
	mock.SetAccount(testAccount, 5, nil, nil, true)

	status, err := svc.Check(context.Background(), testAccount, "0xdead")
	require.NoError(t, err)
	require.Equal(t, int64(240), status.TotalQuota)
}

func TestFundedUnverifiedAccountQuota(t *testing.T) {
	// Scenario C: unverified but funded, 2 transactions => 10 + 40*2 = 90.
	svc, mock, _ := testService(t, defaultConfig())
	mock.SetAccount(testAccount, 2, nil, big.NewInt(5000), false)

	status, err := svc.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	require.Equal(t, int64(90), status.TotalQuota)
}

func TestVerifiedAtLeastUnverifiedQuota(t *testing.T) {
	// Same balances and transactions, verified vs not.
	verified, vMock, _ := testService(t, defaultConfig())
	vMock.SetAccount(testAccount, 3, big.NewInt(5000), nil, true)

	unverified, uMock, _ := testService(t, defaultConfig())
	uMock.SetAccount(testAccount, 3, big.NewInt(5000), nil, false)

	vStatus, err := verified.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	uStatus, err := unverified.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, vStatus.TotalQuota, uStatus.TotalQuota)
}

func TestTotalQuotaStableAcrossChecks(t *testing.T) {
	svc, mock, _ := testService(t, defaultConfig())
	mock.SetAccount(testAccount, 4, big.NewInt(2000), nil, true)

	first, err := svc.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	second, err := svc.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	require.Equal(t, first.TotalQuota, second.TotalQuota)
}

func TestQuotaBoundary(t *testing.T) {
	// Q=2: requests 1 and 2 succeed, request 3 is rejected.
	cfg := defaultConfig()
	cfg.UnverifiedBaseQuota = 2
	cfg.VerifiedBonusQuota = 0
	cfg.PerTransactionQuota = 0

	svc, mock, st := testService(t, cfg)
	mock.SetAccount(testAccount, 0, nil, nil, true)

	for i := 1; i <= 2; i++ {
		status, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "", fingerprint(i))
		require.NoError(t, err)
		require.True(t, outcome.Sufficient, "request %d", i)
		require.Equal(t, int64(i), status.QueryCount)
	}

	// The (Q+1)-th request fails with no further increment.
	_, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "", fingerprint(3))
	require.NoError(t, err)
	require.False(t, outcome.Sufficient)

	count, err := st.QueryCount(context.Background(), testAccount)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestDuplicateFingerprintDoesNotIncrement(t *testing.T) {
	svc, mock, st := testService(t, defaultConfig())
	mock.SetAccount(testAccount, 0, nil, nil, true)

	_, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "", fingerprint(1))
	require.NoError(t, err)
	require.True(t, outcome.Sufficient)
	require.False(t, outcome.Duplicate)

	_, outcome, err = svc.CheckAndConsume(context.Background(), testAccount, "", "", fingerprint(1))
	require.NoError(t, err)
	require.True(t, outcome.Sufficient)
	require.True(t, outcome.Duplicate)

	count, err := st.QueryCount(context.Background(), testAccount)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestBookkeepingFailureDoesNotReverseAdmission(t *testing.T) {
	svc, mock, st := testService(t, defaultConfig())
	mock.SetAccount(testAccount, 0, nil, nil, true)
	st.FailWith = errors.New("disk full")

	status, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "", fingerprint(1))
	require.NoError(t, err)
	require.True(t, outcome.Sufficient)
	require.Error(t, outcome.BookkeepingErr)
	require.Zero(t, status.QueryCount)
}

func TestVerificationReadFailsOpen(t *testing.T) {
	svc, mock, _ := testService(t, defaultConfig())
	mock.SetAccount(testAccount, 0, nil, nil, false)
	mock.Fail["IsVerified"] = errors.New("rpc timeout")

	status, err := svc.Check(context.Background(), testAccount, "0xdead")
	require.NoError(t, err)
	// Fail-open: the account is treated as verified.
	require.Equal(t, int64(40), status.TotalQuota)
	require.True(t, status.Degraded)
}

func TestAllChainReadsFailedIsUngrounded(t *testing.T) {
	svc, mock, _ := testService(t, defaultConfig())
	for _, m := range []string{"TransactionCount", "NativeBalance", "StableTokenBalance"} {
		mock.Fail[m] = errors.New("node unreachable")
	}

	status, err := svc.Check(context.Background(), testAccount, "")
	require.NoError(t, err)
	require.True(t, status.Ungrounded)
}

func TestBypassRequiresMarkerAndPercentage(t *testing.T) {
	cfg := defaultConfig()
	cfg.TestQuotaBypassPercentage = 100
	cfg.TestSessionPrefix = "e2e-"

	svc, _, st := testService(t, cfg)

	// Marked session with zero quota: admitted via bypass, counter
	// untouched.
	status, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "e2e-session-1", fingerprint(1))
	require.NoError(t, err)
	require.True(t, outcome.Sufficient)
	require.True(t, outcome.Bypassed)
	require.Zero(t, status.QueryCount)

	count, err := st.QueryCount(context.Background(), testAccount)
	require.NoError(t, err)
	require.Zero(t, count)

	// Unmarked production session never bypasses.
	_, outcome, err = svc.CheckAndConsume(context.Background(), testAccount, "", "prod-session", fingerprint(2))
	require.NoError(t, err)
	require.False(t, outcome.Sufficient)
}

func TestBypassDisabledByDefault(t *testing.T) {
	svc, _, _ := testService(t, defaultConfig())
	_, outcome, err := svc.CheckAndConsume(context.Background(), testAccount, "", "e2e-session-1", fingerprint(1))
	require.NoError(t, err)
	require.False(t, outcome.Sufficient)
	require.False(t, outcome.Bypassed)
}

func TestBypassPercentageIsStable(t *testing.T) {
	cfg := defaultConfig()
	cfg.TestQuotaBypassPercentage = 50
	cfg.TestSessionPrefix = "e2e-"
	svc, _, _ := testService(t, cfg)

	// The same session ID always lands on the same side of the hash.
	for i := 0; i < 5; i++ {
		first := svc.bypassForSession("e2e-stable-session")
		require.Equal(t, first, svc.bypassForSession("e2e-stable-session"))
	}
}
