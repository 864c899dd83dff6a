package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/infrastructure/metrics"
)

// PeerAddress statically routes an ILP address prefix to a peer's account.
type PeerAddress struct {
	AccountID  string
	ILPAddress string
}

// AccountConfig carries the node-level addressing configuration.
type AccountConfig struct {
	// ILPAddress is this node's own address; child accounts are reachable
	// at "<ILPAddress>.<accountID>".
	ILPAddress    string
	PeerAddresses []PeerAddress
	// BalanceSecret keys the derivation of per-asset balance ids.
	BalanceSecret []byte
}

// AccountUseCase handles the account hierarchy and the per-asset ledgers.
type AccountUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	balanceRepo BalanceRepository
	assetRepo   AssetRepository
	transfers   *TransferUseCase
	idGen       IDGenerator
	cache       Cache
	metrics     *metrics.Metrics
	config      AccountConfig
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	balanceRepo BalanceRepository,
	assetRepo AssetRepository,
	transfers *TransferUseCase,
	idGen IDGenerator,
	cache Cache,
	m *metrics.Metrics,
	config AccountConfig,
) *AccountUseCase {
	return &AccountUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		balanceRepo: balanceRepo,
		assetRepo:   assetRepo,
		transfers:   transfers,
		idGen:       idGen,
		cache:       cache,
		metrics:     m,
		config:      config,
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	// ID is the caller-supplied account id; empty generates one.
	ID               string
	AssetCode        string
	AssetScale       uint32
	Disabled         bool
	MaxPacketAmount  *uint64
	SuperAccountID   *string
	IncomingTokens   []string
	Outgoing         *domain.HTTPOutgoing
	StaticILPAddress string
}

// CreateAccount creates an account, lazily bootstrapping its asset's
// liquidity and settlement balances and, for a sub-account, the credit and
// debt balances on both ends of the new parent/child edge.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	now := time.Now().UTC()

	account := &domain.Account{
		ID:               input.ID,
		AssetCode:        input.AssetCode,
		AssetScale:       input.AssetScale,
		Disabled:         input.Disabled,
		MaxPacketAmount:  input.MaxPacketAmount,
		SuperAccountID:   input.SuperAccountID,
		IncomingTokens:   input.IncomingTokens,
		Outgoing:         input.Outgoing,
		StaticILPAddress: input.StaticILPAddress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if account.ID == "" {
		account.ID = uc.idGen.Generate()
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	if len(account.IncomingTokens) > 0 {
		exists, err := uc.accountRepo.TokenExists(ctx, account.IncomingTokens, account.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateIncomingToken
		}
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if account.SuperAccountID != nil {
		// Lock the super's row so concurrent first sub-account creations
		// cannot both observe missing pooled balances and write two pairs,
		// the second overwriting the first.
		super, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, *account.SuperAccountID)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownAccount) {
				return nil, domain.ErrUnknownSuperAccount
			}
			return nil, err
		}
		if super.AssetCode != account.AssetCode || super.AssetScale != account.AssetScale {
			return nil, domain.ErrInvalidAsset
		}

		if err := uc.ensureSuperBalances(ctx, tx, super, now); err != nil {
			return nil, err
		}

		creditID, err := uc.createBalance(ctx, tx, account.AssetCode, account.AssetScale, domain.BalanceKindCredit)
		if err != nil {
			return nil, err
		}
		debtID, err := uc.createBalance(ctx, tx, account.AssetCode, account.AssetScale, domain.BalanceKindDebt)
		if err != nil {
			return nil, err
		}
		account.CreditBalanceID = &creditID
		account.DebtBalanceID = &debtID
	}

	if err := uc.ensureAssetLedger(ctx, tx, account.AssetCode, account.AssetScale); err != nil {
		return nil, err
	}

	balanceID, err := uc.createBalance(ctx, tx, account.AssetCode, account.AssetScale, domain.BalanceKindAccount)
	if err != nil {
		return nil, err
	}
	account.BalanceID = balanceID

	if err := uc.accountRepo.Create(ctx, tx, account); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsCreated.Inc()
	}

	return account, nil
}

// ensureSuperBalances creates the pooled credit-extended and lent balances
// the first time an account gains a sub-account.
func (uc *AccountUseCase) ensureSuperBalances(ctx context.Context, tx Transaction, super *domain.Account, now time.Time) error {
	if super.CreditExtendedBalanceID != nil && super.LentBalanceID != nil {
		return nil
	}

	extendedID, err := uc.createBalance(ctx, tx, super.AssetCode, super.AssetScale, domain.BalanceKindCreditExtended)
	if err != nil {
		return err
	}
	lentID, err := uc.createBalance(ctx, tx, super.AssetCode, super.AssetScale, domain.BalanceKindLent)
	if err != nil {
		return err
	}

	super.CreditExtendedBalanceID = &extendedID
	super.LentBalanceID = &lentID
	super.UpdatedAt = now

	return uc.accountRepo.Update(ctx, tx, super)
}

func (uc *AccountUseCase) createBalance(ctx context.Context, tx Transaction, assetCode string, assetScale uint32, kind domain.BalanceKind) (string, error) {
	balance := &domain.Balance{
		ID:             uc.idGen.Generate(),
		AssetCode:      assetCode,
		AssetScale:     assetScale,
		Kind:           kind,
		Amount:         decimal.Zero,
		ReservedAmount: decimal.Zero,
	}
	if err := uc.balanceRepo.Create(ctx, tx, balance); err != nil {
		return "", err
	}
	return balance.ID, nil
}

// ensureAssetLedger lazily creates the liquidity and settlement balances for
// an asset. Balance ids are derived deterministically, so concurrent first
// uses converge on the same rows and the inserts are no-ops after the first.
func (uc *AccountUseCase) ensureAssetLedger(ctx context.Context, tx Transaction, assetCode string, assetScale uint32) error {
	asset := &domain.Asset{
		Code:                assetCode,
		Scale:               assetScale,
		LiquidityBalanceID:  domain.LiquidityBalanceID(assetCode, assetScale, uc.config.BalanceSecret),
		SettlementBalanceID: domain.SettlementBalanceID(assetCode, assetScale, uc.config.BalanceSecret),
	}

	liquidity := &domain.Balance{
		ID:             asset.LiquidityBalanceID,
		AssetCode:      assetCode,
		AssetScale:     assetScale,
		Kind:           domain.BalanceKindLiquidity,
		Amount:         decimal.Zero,
		ReservedAmount: decimal.Zero,
	}
	if err := uc.balanceRepo.Create(ctx, tx, liquidity); err != nil {
		return err
	}

	settlement := &domain.Balance{
		ID:             asset.SettlementBalanceID,
		AssetCode:      assetCode,
		AssetScale:     assetScale,
		Kind:           domain.BalanceKindSettlement,
		Amount:         decimal.Zero,
		ReservedAmount: decimal.Zero,
	}
	if err := uc.balanceRepo.Create(ctx, tx, settlement); err != nil {
		return err
	}

	return uc.assetRepo.Create(ctx, tx, asset)
}

// UpdateAccountInput represents input for updating an account. Nil fields
// are left unchanged; IncomingTokens replaces the whole token set.
type UpdateAccountInput struct {
	ID               string
	Disabled         *bool
	MaxPacketAmount  *uint64
	IncomingTokens   *[]string
	Outgoing         *domain.HTTPOutgoing
	StaticILPAddress *string
}

// UpdateAccount updates an account's mutable settings.
func (uc *AccountUseCase) UpdateAccount(ctx context.Context, input UpdateAccountInput) (*domain.Account, error) {
	account, err := uc.accountRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	oldTokens := account.IncomingTokens

	if input.Disabled != nil {
		account.Disabled = *input.Disabled
	}
	if input.MaxPacketAmount != nil {
		account.MaxPacketAmount = input.MaxPacketAmount
	}
	if input.IncomingTokens != nil {
		account.IncomingTokens = *input.IncomingTokens
	}
	if input.Outgoing != nil {
		account.Outgoing = input.Outgoing
	}
	if input.StaticILPAddress != nil {
		account.StaticILPAddress = *input.StaticILPAddress
	}
	account.UpdatedAt = time.Now().UTC()

	if err := account.Validate(); err != nil {
		return nil, err
	}

	if len(account.IncomingTokens) > 0 {
		exists, err := uc.accountRepo.TokenExists(ctx, account.IncomingTokens, account.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateIncomingToken
		}
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.accountRepo.Update(ctx, tx, account); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Stale token cache entries would keep resolving to the old record.
	uc.invalidateTokens(ctx, oldTokens)
	uc.invalidateTokens(ctx, account.IncomingTokens)

	return account, nil
}

// GetAccount retrieves an account by ID.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, id)
}

// GetAccountWithSuperAccounts retrieves an account with its ancestor chain.
func (uc *AccountUseCase) GetAccountWithSuperAccounts(ctx context.Context, id string) (*domain.AccountChain, error) {
	return uc.accountRepo.GetWithSuperAccounts(ctx, id)
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// ListAccounts lists accounts with pagination.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	if input.Limit > 100 {
		input.Limit = 100
	}
	return uc.accountRepo.List(ctx, input.Limit, input.Offset)
}

// GetAccountByToken resolves an account from one of its incoming auth
// tokens, consulting the cache first.
func (uc *AccountUseCase) GetAccountByToken(ctx context.Context, token string) (*domain.Account, error) {
	key := tokenCacheKey(token)

	if uc.cache != nil {
		if data, err := uc.cache.Get(ctx, key); err == nil && data != nil {
			var account domain.Account
			if err := json.Unmarshal(data, &account); err == nil {
				return &account, nil
			}
		}
	}

	account, err := uc.accountRepo.GetByIncomingToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if data, err := json.Marshal(account); err == nil {
			_ = uc.cache.Set(ctx, key, data, AccountCacheTTL)
		}
	}

	return account, nil
}

func (uc *AccountUseCase) invalidateTokens(ctx context.Context, tokens []string) {
	if uc.cache == nil {
		return
	}
	for _, token := range tokens {
		_ = uc.cache.Delete(ctx, tokenCacheKey(token))
	}
}

func tokenCacheKey(token string) string {
	return "account:token:" + token
}

// GetAccountByDestinationAddress resolves the account an ILP destination
// address routes to: a configured peer address, our own address space, or a
// static per-account address, each with address-prefix matching.
func (uc *AccountUseCase) GetAccountByDestinationAddress(ctx context.Context, destination string) (*domain.Account, error) {
	for _, peer := range uc.config.PeerAddresses {
		if domain.MatchesDestinationAddress(peer.ILPAddress, destination) {
			return uc.accountRepo.GetByID(ctx, peer.AccountID)
		}
	}

	if uc.config.ILPAddress != "" {
		prefix := uc.config.ILPAddress + "."
		if strings.HasPrefix(destination, prefix) {
			// The first segment after our own address is the account id;
			// anything further addresses inside that account.
			id := strings.SplitN(destination[len(prefix):], ".", 2)[0]
			if id != "" {
				account, err := uc.accountRepo.GetByID(ctx, id)
				if err == nil {
					return account, nil
				}
				if !errors.Is(err, domain.ErrUnknownAccount) {
					return nil, err
				}
			}
		}
	}

	return uc.accountRepo.GetByStaticAddress(ctx, destination)
}

// GetAddress returns the ILP address packets for this account should carry:
// the account's static address, a configured peer address, or an address
// under our own.
func (uc *AccountUseCase) GetAddress(ctx context.Context, accountID string) (string, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	if account.StaticILPAddress != "" {
		return account.StaticILPAddress, nil
	}
	for _, peer := range uc.config.PeerAddresses {
		if peer.AccountID == accountID {
			return peer.ILPAddress, nil
		}
	}

	return uc.config.ILPAddress + "." + accountID, nil
}

// GetAccountBalance returns the account's ledger balance.
func (uc *AccountUseCase) GetAccountBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return uc.balanceRepo.GetByID(ctx, account.BalanceID)
}

// GetLiquidityBalance returns an asset's liquidity balance.
func (uc *AccountUseCase) GetLiquidityBalance(ctx context.Context, assetCode string, assetScale uint32) (*domain.Balance, error) {
	id := domain.LiquidityBalanceID(assetCode, assetScale, uc.config.BalanceSecret)
	balance, err := uc.balanceRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownBalance) {
			return nil, domain.ErrUnknownLiquidityAccount
		}
		return nil, err
	}
	return balance, nil
}

// GetSettlementBalance returns an asset's settlement balance.
func (uc *AccountUseCase) GetSettlementBalance(ctx context.Context, assetCode string, assetScale uint32) (*domain.Balance, error) {
	id := domain.SettlementBalanceID(assetCode, assetScale, uc.config.BalanceSecret)
	balance, err := uc.balanceRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownBalance) {
			return nil, domain.ErrUnknownLiquidityAccount
		}
		return nil, err
	}
	return balance, nil
}

// DepositLiquidityInput represents input for an asset liquidity deposit.
type DepositLiquidityInput struct {
	DepositID  string
	AssetCode  string
	AssetScale uint32
	Amount     decimal.Decimal
}

// DepositLiquidity adds funds to an asset's liquidity balance, mirrored
// into its settlement balance. The asset ledger is created on first use.
func (uc *AccountUseCase) DepositLiquidity(ctx context.Context, input DepositLiquidityInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	if err := uc.ensureAssetLedger(ctx, tx, input.AssetCode, input.AssetScale); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return uc.transfers.Deposit(ctx, DepositInput{
		DepositID:           input.DepositID,
		BalanceID:           domain.LiquidityBalanceID(input.AssetCode, input.AssetScale, uc.config.BalanceSecret),
		SettlementBalanceID: domain.SettlementBalanceID(input.AssetCode, input.AssetScale, uc.config.BalanceSecret),
		Amount:              input.Amount,
	})
}

// WithdrawLiquidityInput represents input for an asset liquidity withdrawal.
type WithdrawLiquidityInput struct {
	WithdrawalID string
	AssetCode    string
	AssetScale   uint32
	Amount       decimal.Decimal
}

// WithdrawLiquidity removes funds from an asset's liquidity balance,
// mirrored out of its settlement balance.
func (uc *AccountUseCase) WithdrawLiquidity(ctx context.Context, input WithdrawLiquidityInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	if _, err := uc.assetRepo.Get(ctx, input.AssetCode, input.AssetScale); err != nil {
		return err
	}

	return uc.transfers.Withdraw(ctx, WithdrawInput{
		WithdrawalID:        input.WithdrawalID,
		BalanceID:           domain.LiquidityBalanceID(input.AssetCode, input.AssetScale, uc.config.BalanceSecret),
		SettlementBalanceID: domain.SettlementBalanceID(input.AssetCode, input.AssetScale, uc.config.BalanceSecret),
		Amount:              input.Amount,
	})
}

// AccountDepositInput represents input for depositing into an account.
type AccountDepositInput struct {
	DepositID string
	AccountID string
	Amount    decimal.Decimal
}

// Deposit credits an account's balance, mirrored into the asset's
// settlement balance.
func (uc *AccountUseCase) Deposit(ctx context.Context, input AccountDepositInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	account, err := uc.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		return err
	}

	return uc.transfers.Deposit(ctx, DepositInput{
		DepositID:           input.DepositID,
		BalanceID:           account.BalanceID,
		SettlementBalanceID: domain.SettlementBalanceID(account.AssetCode, account.AssetScale, uc.config.BalanceSecret),
		Amount:              input.Amount,
	})
}

// AccountWithdrawInput represents input for withdrawing from an account.
type AccountWithdrawInput struct {
	WithdrawalID string
	AccountID    string
	Amount       decimal.Decimal
}

// Withdraw debits an account's balance, mirrored out of the asset's
// settlement balance.
func (uc *AccountUseCase) Withdraw(ctx context.Context, input AccountWithdrawInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	account, err := uc.accountRepo.GetByID(ctx, input.AccountID)
	if err != nil {
		return err
	}

	return uc.transfers.Withdraw(ctx, WithdrawInput{
		WithdrawalID:        input.WithdrawalID,
		BalanceID:           account.BalanceID,
		SettlementBalanceID: domain.SettlementBalanceID(account.AssetCode, account.AssetScale, uc.config.BalanceSecret),
		Amount:              input.Amount,
	})
}

// AccountTransferInput represents input for a two-phase transfer between
// two accounts.
type AccountTransferInput struct {
	SourceAccountID      string
	DestinationAccountID string
	SourceAmount         decimal.Decimal
	DestinationAmount    *decimal.Decimal
}

// TransferFunds stages a two-phase transfer between two accounts' balances.
func (uc *AccountUseCase) TransferFunds(ctx context.Context, input AccountTransferInput) (*domain.PendingTransfer, error) {
	if input.SourceAccountID == input.DestinationAccountID {
		return nil, domain.ErrSameAccounts
	}

	source, err := uc.accountRepo.GetByID(ctx, input.SourceAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAccount) {
			return nil, domain.ErrUnknownSourceAccount
		}
		return nil, err
	}
	destination, err := uc.accountRepo.GetByID(ctx, input.DestinationAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAccount) {
			return nil, domain.ErrUnknownDestinationAccount
		}
		return nil, err
	}

	return uc.transfers.TransferFunds(ctx, TransferFundsInput{
		SourceBalanceID:      source.BalanceID,
		DestinationBalanceID: destination.BalanceID,
		SourceAmount:         input.SourceAmount,
		DestinationAmount:    input.DestinationAmount,
	})
}
