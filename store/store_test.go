package store

import (
	"context"
	"sync"
	"testing"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestConsumeQuotaIncrementsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	count, err := s.QueryCount(ctx, testAccount)
	require.NoError(t, err)
	require.Zero(t, count)

	fp := crypto.RequestFingerprint("phone_number", testAccount, "blinded-1")
	count, err = s.ConsumeQuota(ctx, testAccount, fp)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	exists, err := s.RequestExists(ctx, fp)
	require.NoError(t, err)
	require.True(t, exists)

	// Replay: no increment, duplicate error.
	_, err = s.ConsumeQuota(ctx, testAccount, fp)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	count, err = s.QueryCount(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestConsumeQuotaDistinctFingerprints(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for i, blinded := range []string{"a", "b", "c"} {
		fp := crypto.RequestFingerprint("phone_number", testAccount, blinded)
		count, err := s.ConsumeQuota(ctx, testAccount, fp)
		require.NoError(t, err)
		require.Equal(t, int64(i+1), count)
	}
}

func TestConsumeQuotaConcurrentSameAccount(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fp := crypto.RequestFingerprint("phone_number", testAccount, "blinded", []byte{byte(i)})
			_, err := s.ConsumeQuota(ctx, testAccount, fp)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := s.QueryCount(ctx, testAccount)
	require.NoError(t, err)
	require.Equal(t, int64(n), count)
}

func TestRequestExistsUnknownFingerprint(t *testing.T) {
	s := NewInMemoryStore()
	exists, err := s.RequestExists(context.Background(), crypto.Fingerprint("deadbeef"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 5432, User: "odis", Password: "pw", Database: "quota"}
	require.Equal(t,
		"host=db port=5432 user=odis password=pw dbname=quota sslmode=disable",
		cfg.ConnectionString())

	cfg.SSLMode = "require"
	require.Contains(t, cfg.ConnectionString(), "sslmode=require")
}
