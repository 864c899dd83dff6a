package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
)

// BalanceRepository defines data access for ledger balances.
type BalanceRepository interface {
	// Create inserts a balance. Creation is idempotent for deterministic
	// ids: inserting an id that already exists is a no-op.
	Create(ctx context.Context, tx Transaction, balance *domain.Balance) error
	GetByID(ctx context.Context, id string) (*domain.Balance, error)
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Balance, error)
	UpdateAmounts(ctx context.Context, tx Transaction, id string, amount, reservedAmount decimal.Decimal) error
	// SumByKind totals the amounts of all balances of one kind for an asset.
	SumByKind(ctx context.Context, assetCode string, assetScale uint32, kind domain.BalanceKind) (decimal.Decimal, error)
}

// AssetRepository defines data access for the per-asset ledger registry.
type AssetRepository interface {
	// Create inserts an asset; inserting an existing (code, scale) is a no-op.
	Create(ctx context.Context, tx Transaction, asset *domain.Asset) error
	// Get returns domain.ErrUnknownLiquidityAccount for an unregistered asset.
	Get(ctx context.Context, code string, scale uint32) (*domain.Asset, error)
	List(ctx context.Context) ([]*domain.Asset, error)
}

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByIDForUpdate reads the account within tx and locks its row until
	// the transaction ends.
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Account, error)
	Update(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByIncomingToken(ctx context.Context, token string) (*domain.Account, error)
	// TokenExists reports whether any of the tokens is already registered to
	// an account other than excludeAccountID.
	TokenExists(ctx context.Context, tokens []string, excludeAccountID string) (bool, error)
	// GetByStaticAddress finds the account whose static ILP address is the
	// destination or an address-prefix of it.
	GetByStaticAddress(ctx context.Context, destination string) (*domain.Account, error)
	// GetWithSuperAccounts materializes the account's ancestor chain.
	GetWithSuperAccounts(ctx context.Context, id string) (*domain.AccountChain, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// PendingTransferRepository defines data access for two-phase transfers.
type PendingTransferRepository interface {
	Create(ctx context.Context, tx Transaction, transfer *domain.PendingTransfer) error
	GetByID(ctx context.Context, id string) (*domain.PendingTransfer, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.PendingTransfer, error)
	UpdateState(ctx context.Context, tx Transaction, id string, state domain.PendingTransferState, updatedAt time.Time) error
}

// DepositRepository stores deposit idempotency records.
type DepositRepository interface {
	// Create returns domain.ErrDepositExists if the id was used before.
	Create(ctx context.Context, tx Transaction, deposit *domain.Deposit) error
}

// WithdrawalRepository stores withdrawal idempotency records.
type WithdrawalRepository interface {
	// Create returns domain.ErrWithdrawalExists if the id was used before.
	Create(ctx context.Context, tx Transaction, withdrawal *domain.Withdrawal) error
}

// TransferLogRepository journals applied elementary transfers.
type TransferLogRepository interface {
	Create(ctx context.Context, tx Transaction, record *domain.TransferRecord) error
	ListByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier retries an operation on transient store failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage for the HTTP layer.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}
