package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/celo-org/celo-monorepo-sub009/crypto"
	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
)

// PostgresStore implements RequestStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore connects, configures the pool and runs migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		address VARCHAR(42) PRIMARY KEY,
		performed_query_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS seen_requests (
		fingerprint VARCHAR(64) PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_seen_requests_created ON seen_requests(created_at);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// QueryCount returns the account's performed-query count.
func (s *PostgresStore) QueryCount(ctx context.Context, account common.Address) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT performed_query_count FROM accounts WHERE address = $1`,
		account.Hex(),
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading query count: %w", err)
	}
	return count, nil
}

// RequestExists reports whether the fingerprint was already admitted.
func (s *PostgresStore) RequestExists(ctx context.Context, fp crypto.Fingerprint) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM seen_requests WHERE fingerprint = $1)`,
		string(fp),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return exists, nil
}

// ConsumeQuota records the fingerprint and increments the counter in
// one transaction. The fingerprint insert runs first: its conflict
// detection makes replays abort before touching the counter, and the
// account upsert row-locks per account so concurrent increments
// serialize.
func (s *PostgresStore) ConsumeQuota(ctx context.Context, account common.Address, fp crypto.Fingerprint) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO seen_requests (fingerprint) VALUES ($1) ON CONFLICT (fingerprint) DO NOTHING`,
		string(fp),
	)
	if err != nil {
		return 0, fmt.Errorf("recording fingerprint: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("recording fingerprint: %w", err)
	} else if n == 0 {
		return 0, ErrDuplicateRequest
	}

	var count int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (address, performed_query_count) VALUES ($1, 1)
		ON CONFLICT (address) DO UPDATE SET performed_query_count = accounts.performed_query_count + 1
		RETURNING performed_query_count`,
		account.Hex(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing query count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing consume: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
