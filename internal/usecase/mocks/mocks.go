package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// Snapshotter lets MockTransactionManager capture and restore repository
// state, so mocked transactions roll back like real ones.
type Snapshotter interface {
	Snapshot() (restore func())
}

// MockBalanceRepository is an in-memory implementation of BalanceRepository.
type MockBalanceRepository struct {
	mu       sync.RWMutex
	balances map[string]*domain.Balance

	CreateFunc            func(ctx context.Context, tx usecase.Transaction, balance *domain.Balance) error
	GetByIDFunc           func(ctx context.Context, id string) (*domain.Balance, error)
	GetByIDsForUpdateFunc func(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Balance, error)
	UpdateAmountsFunc     func(ctx context.Context, tx usecase.Transaction, id string, amount, reservedAmount decimal.Decimal) error
}

func NewMockBalanceRepository() *MockBalanceRepository {
	return &MockBalanceRepository{
		balances: make(map[string]*domain.Balance),
	}
}

func (m *MockBalanceRepository) Create(ctx context.Context, tx usecase.Transaction, balance *domain.Balance) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, balance)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[balance.ID]; ok {
		return nil
	}
	b := *balance
	m.balances[b.ID] = &b
	return nil
}

func (m *MockBalanceRepository) GetByID(ctx context.Context, id string) (*domain.Balance, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, domain.ErrUnknownBalance
}

func (m *MockBalanceRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Balance, error) {
	if m.GetByIDsForUpdateFunc != nil {
		return m.GetByIDsForUpdateFunc(ctx, tx, ids)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var balances []*domain.Balance
	for _, id := range ids {
		if b, ok := m.balances[id]; ok {
			cp := *b
			balances = append(balances, &cp)
		}
	}
	return balances, nil
}

func (m *MockBalanceRepository) UpdateAmounts(ctx context.Context, tx usecase.Transaction, id string, amount, reservedAmount decimal.Decimal) error {
	if m.UpdateAmountsFunc != nil {
		return m.UpdateAmountsFunc(ctx, tx, id, amount, reservedAmount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	if !ok {
		return domain.ErrUnknownBalance
	}
	b.Amount = amount
	b.ReservedAmount = reservedAmount
	return nil
}

func (m *MockBalanceRepository) SumByKind(ctx context.Context, assetCode string, assetScale uint32, kind domain.BalanceKind) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, b := range m.balances {
		if b.AssetCode == assetCode && b.AssetScale == assetScale && b.Kind == kind {
			sum = sum.Add(b.Amount)
		}
	}
	return sum, nil
}

func (m *MockBalanceRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make(map[string]*domain.Balance, len(m.balances))
	for id, b := range m.balances {
		cp := *b
		snapshot[id] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.balances = snapshot
		m.mu.Unlock()
	}
}

// MockAccountRepository is an in-memory implementation of AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account

	CreateFunc               func(ctx context.Context, tx usecase.Transaction, account *domain.Account) error
	GetByIDFunc              func(ctx context.Context, id string) (*domain.Account, error)
	GetByIDForUpdateFunc     func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error)
	GetByIncomingTokenFunc   func(ctx context.Context, token string) (*domain.Account, error)
	GetWithSuperAccountsFunc func(ctx context.Context, id string) (*domain.AccountChain, error)
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return domain.ErrDuplicateAccountID
	}
	cp := *account
	m.accounts[cp.ID] = &cp
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, ok := m.accounts[id]; ok {
		cp := *acc
		return &cp, nil
	}
	return nil, domain.ErrUnknownAccount
}

// GetByIDForUpdate reads the stored account directly, bypassing GetByIDFunc,
// so an overridden plain read cannot leak into locked reads.
func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Account, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, ok := m.accounts[id]; ok {
		cp := *acc
		return &cp, nil
	}
	return nil, domain.ErrUnknownAccount
}

func (m *MockAccountRepository) Update(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return domain.ErrUnknownAccount
	}
	cp := *account
	m.accounts[cp.ID] = &cp
	return nil
}

func (m *MockAccountRepository) GetByIncomingToken(ctx context.Context, token string) (*domain.Account, error) {
	if m.GetByIncomingTokenFunc != nil {
		return m.GetByIncomingTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, acc := range m.accounts {
		for _, t := range acc.IncomingTokens {
			if t == token {
				cp := *acc
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrUnknownAccount
}

func (m *MockAccountRepository) TokenExists(ctx context.Context, tokens []string, excludeAccountID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, acc := range m.accounts {
		if acc.ID == excludeAccountID {
			continue
		}
		for _, t := range acc.IncomingTokens {
			for _, candidate := range tokens {
				if t == candidate {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (m *MockAccountRepository) GetByStaticAddress(ctx context.Context, destination string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, acc := range m.accounts {
		if domain.MatchesDestinationAddress(acc.StaticILPAddress, destination) {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, domain.ErrUnknownAccount
}

func (m *MockAccountRepository) GetWithSuperAccounts(ctx context.Context, id string) (*domain.AccountChain, error) {
	if m.GetWithSuperAccountsFunc != nil {
		return m.GetWithSuperAccountsFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrUnknownAccount
	}
	chain := &domain.AccountChain{Account: *acc}
	for super := acc.SuperAccountID; super != nil; {
		parent, ok := m.accounts[*super]
		if !ok {
			return nil, domain.ErrUnknownAccount
		}
		cp := *parent
		chain.SuperAccounts = append(chain.SuperAccounts, &cp)
		super = parent.SuperAccountID
	}
	return chain, nil
}

func (m *MockAccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accounts []*domain.Account
	for _, acc := range m.accounts {
		cp := *acc
		accounts = append(accounts, &cp)
	}
	return accounts, nil
}

func (m *MockAccountRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make(map[string]*domain.Account, len(m.accounts))
	for id, acc := range m.accounts {
		cp := *acc
		snapshot[id] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.accounts = snapshot
		m.mu.Unlock()
	}
}

// MockAssetRepository is an in-memory implementation of AssetRepository.
type MockAssetRepository struct {
	mu     sync.RWMutex
	assets map[string]*domain.Asset
}

func NewMockAssetRepository() *MockAssetRepository {
	return &MockAssetRepository{
		assets: make(map[string]*domain.Asset),
	}
}

func assetKey(code string, scale uint32) string {
	return fmt.Sprintf("%s/%d", code, scale)
}

func (m *MockAssetRepository) Create(ctx context.Context, tx usecase.Transaction, asset *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assetKey(asset.Code, asset.Scale)
	if _, ok := m.assets[key]; ok {
		return nil
	}
	cp := *asset
	m.assets[key] = &cp
	return nil
}

func (m *MockAssetRepository) Get(ctx context.Context, code string, scale uint32) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.assets[assetKey(code, scale)]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrUnknownLiquidityAccount
}

func (m *MockAssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var assets []*domain.Asset
	for _, a := range m.assets {
		cp := *a
		assets = append(assets, &cp)
	}
	return assets, nil
}

func (m *MockAssetRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make(map[string]*domain.Asset, len(m.assets))
	for k, a := range m.assets {
		cp := *a
		snapshot[k] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.assets = snapshot
		m.mu.Unlock()
	}
}

// MockPendingTransferRepository is an in-memory implementation of
// PendingTransferRepository.
type MockPendingTransferRepository struct {
	mu       sync.RWMutex
	pendings map[string]*domain.PendingTransfer

	CreateFunc func(ctx context.Context, tx usecase.Transaction, transfer *domain.PendingTransfer) error
}

func NewMockPendingTransferRepository() *MockPendingTransferRepository {
	return &MockPendingTransferRepository{
		pendings: make(map[string]*domain.PendingTransfer),
	}
}

func (m *MockPendingTransferRepository) Create(ctx context.Context, tx usecase.Transaction, transfer *domain.PendingTransfer) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, transfer)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *transfer
	m.pendings[cp.ID] = &cp
	return nil
}

func (m *MockPendingTransferRepository) GetByID(ctx context.Context, id string) (*domain.PendingTransfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.pendings[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, domain.ErrUnknownTransfer
}

func (m *MockPendingTransferRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PendingTransfer, error) {
	return m.GetByID(ctx, id)
}

func (m *MockPendingTransferRepository) UpdateState(ctx context.Context, tx usecase.Transaction, id string, state domain.PendingTransferState, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.pendings[id]
	if !ok {
		return domain.ErrUnknownTransfer
	}
	t.State = state
	t.UpdatedAt = updatedAt
	return nil
}

func (m *MockPendingTransferRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make(map[string]*domain.PendingTransfer, len(m.pendings))
	for id, t := range m.pendings {
		cp := *t
		snapshot[id] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.pendings = snapshot
		m.mu.Unlock()
	}
}

// MockDepositRepository is an in-memory implementation of DepositRepository.
type MockDepositRepository struct {
	mu       sync.RWMutex
	deposits map[string]*domain.Deposit
}

func NewMockDepositRepository() *MockDepositRepository {
	return &MockDepositRepository{
		deposits: make(map[string]*domain.Deposit),
	}
}

func (m *MockDepositRepository) Create(ctx context.Context, tx usecase.Transaction, deposit *domain.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[deposit.ID]; ok {
		return domain.ErrDepositExists
	}
	cp := *deposit
	m.deposits[cp.ID] = &cp
	return nil
}

func (m *MockDepositRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make(map[string]*domain.Deposit, len(m.deposits))
	for id, d := range m.deposits {
		cp := *d
		snapshot[id] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.deposits = snapshot
		m.mu.Unlock()
	}
}

// MockWithdrawalRepository is an in-memory implementation of
// WithdrawalRepository.
type MockWithdrawalRepository struct {
	mu          sync.RWMutex
	withdrawals map[string]*domain.Withdrawal
}

func NewMockWithdrawalRepository() *MockWithdrawalRepository {
	return &MockWithdrawalRepository{
		withdrawals: make(map[string]*domain.Withdrawal),
	}
}

func (m *MockWithdrawalRepository) Create(ctx context.Context, tx usecase.Transaction, withdrawal *domain.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.withdrawals[withdrawal.ID]; ok {
		return domain.ErrWithdrawalExists
	}
	cp := *withdrawal
	m.withdrawals[cp.ID] = &cp
	return nil
}

func (m *MockWithdrawalRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make(map[string]*domain.Withdrawal, len(m.withdrawals))
	for id, w := range m.withdrawals {
		cp := *w
		snapshot[id] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.withdrawals = snapshot
		m.mu.Unlock()
	}
}

// MockTransferLogRepository is an in-memory implementation of
// TransferLogRepository.
type MockTransferLogRepository struct {
	mu      sync.RWMutex
	records []*domain.TransferRecord
}

func NewMockTransferLogRepository() *MockTransferLogRepository {
	return &MockTransferLogRepository{}
}

func (m *MockTransferLogRepository) Create(ctx context.Context, tx usecase.Transaction, record *domain.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records = append(m.records, &cp)
	return nil
}

func (m *MockTransferLogRepository) ListByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.TransferRecord
	for _, r := range m.records {
		if r.SourceBalanceID == balanceID || r.DestinationBalanceID == balanceID {
			cp := *r
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Records returns a copy of everything journaled so far.
func (m *MockTransferLogRepository) Records() []*domain.TransferRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.TransferRecord, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (m *MockTransferLogRepository) Snapshot() func() {
	m.mu.RLock()
	snapshot := make([]*domain.TransferRecord, len(m.records))
	for i, r := range m.records {
		cp := *r
		snapshot[i] = &cp
	}
	m.mu.RUnlock()
	return func() {
		m.mu.Lock()
		m.records = snapshot
		m.mu.Unlock()
	}
}

// MockTransactionManager snapshots the registered stores on Begin and
// restores them when the transaction rolls back without committing.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)

	stores []Snapshotter
}

func NewMockTransactionManager(stores ...Snapshotter) *MockTransactionManager {
	return &MockTransactionManager{stores: stores}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	restores := make([]func(), 0, len(m.stores))
	for _, s := range m.stores {
		restores = append(restores, s.Snapshot())
	}
	return &MockTransaction{restores: restores}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error

	restores  []func()
	committed bool
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	m.committed = true
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	if m.committed {
		return nil
	}
	// Restore in reverse, mirroring nested snapshot order.
	for i := len(m.restores) - 1; i >= 0; i-- {
		m.restores[i]()
	}
	m.restores = nil
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%d", m.counter)
}

// MockCache is an in-memory implementation of Cache. TTLs are ignored.
type MockCache struct {
	mu   sync.RWMutex
	data map[string][]byte

	GetFunc func(ctx context.Context, key string) ([]byte, error)
}

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte)}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
