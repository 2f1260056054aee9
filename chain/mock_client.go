package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MockReader is an in-memory Reader for tests. Per-account state is set
// directly on the maps via the setters; any read can be forced to fail
// through Fail.
type MockReader struct {
	mu sync.Mutex

	txCounts  map[common.Address]uint64
	native    map[common.Address]*big.Int
	stable    map[common.Address]*big.Int
	verified  map[common.Address]bool
	wallets   map[common.Address]common.Address
	deks      map[common.Address][]byte
	blockNum  uint64
	callCount int

	// Fail maps a method name ("TransactionCount", "NativeBalance",
	// "StableTokenBalance", "IsVerified", "WalletAddress",
	// "DataEncryptionKey", "BlockNumber") to the error its calls return.
	Fail map[string]error
}

// NewMockReader creates an empty mock chain at block height 1.
func NewMockReader() *MockReader {
	return &MockReader{
		txCounts: make(map[common.Address]uint64),
		native:   make(map[common.Address]*big.Int),
		stable:   make(map[common.Address]*big.Int),
		verified: make(map[common.Address]bool),
		wallets:  make(map[common.Address]common.Address),
		deks:     make(map[common.Address][]byte),
		blockNum: 1,
		Fail:     make(map[string]error),
	}
}

// SetAccount configures an account's quota-relevant state in one call.
func (m *MockReader) SetAccount(addr common.Address, txCount uint64, native, stable *big.Int, verified bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCounts[addr] = txCount
	if native != nil {
		m.native[addr] = native
	}
	if stable != nil {
		m.stable[addr] = stable
	}
	m.verified[addr] = verified
}

// SetWallet registers a wallet mapping for an account.
func (m *MockReader) SetWallet(account, wallet common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[account] = wallet
}

// SetDEK registers a data encryption key for an account.
func (m *MockReader) SetDEK(account common.Address, dek []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deks[account] = dek
}

// SetBlockNumber sets the reported chain height.
func (m *MockReader) SetBlockNumber(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockNum = n
}

// Calls returns how many reads the mock served, failures included.
func (m *MockReader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *MockReader) fail(method string) error {
	m.callCount++
	return m.Fail[method]
}

func (m *MockReader) TransactionCount(ctx context.Context, address common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("TransactionCount"); err != nil {
		return 0, err
	}
	return m.txCounts[address], nil
}

func (m *MockReader) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("NativeBalance"); err != nil {
		return nil, err
	}
	if b, ok := m.native[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *MockReader) StableTokenBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("StableTokenBalance"); err != nil {
		return nil, err
	}
	if b, ok := m.stable[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *MockReader) IsVerified(ctx context.Context, account common.Address, identifierHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("IsVerified"); err != nil {
		return false, err
	}
	return m.verified[account], nil
}

func (m *MockReader) WalletAddress(ctx context.Context, account common.Address) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("WalletAddress"); err != nil {
		return common.Address{}, err
	}
	return m.wallets[account], nil
}

func (m *MockReader) DataEncryptionKey(ctx context.Context, account common.Address) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DataEncryptionKey"); err != nil {
		return nil, err
	}
	return m.deks[account], nil
}

func (m *MockReader) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("BlockNumber"); err != nil {
		return 0, err
	}
	return m.blockNum, nil
}
