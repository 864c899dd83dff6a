package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/infrastructure/metrics"
)

// TransferUseCase is the ledger transfer engine. It applies atomic batches
// of elementary transfers, deposits and withdrawals, and drives the
// two-phase transfer lifecycle.
type TransferUseCase struct {
	txManager       TransactionManager
	balanceRepo     BalanceRepository
	pendingRepo     PendingTransferRepository
	depositRepo     DepositRepository
	withdrawalRepo  WithdrawalRepository
	transferLogRepo TransferLogRepository
	idGen           IDGenerator
	retrier         Retrier
	metrics         *metrics.Metrics
	balanceSecret   []byte
}

// NewTransferUseCase creates a new TransferUseCase.
func NewTransferUseCase(
	txManager TransactionManager,
	balanceRepo BalanceRepository,
	pendingRepo PendingTransferRepository,
	depositRepo DepositRepository,
	withdrawalRepo WithdrawalRepository,
	transferLogRepo TransferLogRepository,
	idGen IDGenerator,
	retrier Retrier,
	m *metrics.Metrics,
	balanceSecret []byte,
) *TransferUseCase {
	return &TransferUseCase{
		txManager:       txManager,
		balanceRepo:     balanceRepo,
		pendingRepo:     pendingRepo,
		depositRepo:     depositRepo,
		withdrawalRepo:  withdrawalRepo,
		transferLogRepo: transferLogRepo,
		idGen:           idGen,
		retrier:         retrier,
		metrics:         m,
		balanceSecret:   balanceSecret,
	}
}

func (uc *TransferUseCase) run(ctx context.Context, op func() error) error {
	if uc.retrier == nil {
		return op()
	}
	return uc.retrier.Retry(ctx, op)
}

func (uc *TransferUseCase) countError(err error) {
	if uc.metrics == nil || err == nil {
		return
	}
	uc.metrics.TransferErrors.WithLabelValues(errorType(err)).Inc()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, domain.ErrUnknownBalance):
		return "unknown_balance"
	case errors.Is(err, domain.ErrTransferAlreadyCommitted),
		errors.Is(err, domain.ErrTransferAlreadyRejected):
		return "already_finalized"
	default:
		return "other"
	}
}

// CreateTransfers applies a batch of elementary transfers atomically.
// Either every transfer in the batch takes effect or none does; on failure
// the returned error is a *domain.BatchError naming the first transfer that
// could not apply.
func (uc *TransferUseCase) CreateTransfers(ctx context.Context, transfers []domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	// Validate inputs before starting a transaction.
	for i := range transfers {
		if err := transfers[i].Validate(); err != nil {
			uc.countError(err)
			return &domain.BatchError{Index: i, Err: err}
		}
	}

	err := uc.run(ctx, func() error {
		return uc.createTransfers(ctx, transfers)
	})
	if err != nil {
		uc.countError(err)
		return err
	}

	if uc.metrics != nil {
		uc.metrics.TransfersCreated.Add(float64(len(transfers)))
	}

	return nil
}

func (uc *TransferUseCase) createTransfers(ctx context.Context, transfers []domain.Transfer) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	start := time.Now()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	ids := collectBalanceIDs(transfers)
	balances, err := uc.lockBalances(txCtx, tx, ids)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range transfers {
		if err := applyTransfer(balances, &transfers[i]); err != nil {
			return &domain.BatchError{Index: i, Err: err}
		}
	}

	if err := uc.flushBalances(txCtx, tx, balances, ids); err != nil {
		return err
	}

	for i := range transfers {
		record := &domain.TransferRecord{
			ID:                   uc.idGen.Generate(),
			SourceBalanceID:      transfers[i].SourceBalanceID,
			DestinationBalanceID: transfers[i].DestinationBalanceID,
			Amount:               transfers[i].Amount,
			CreatedAt:            now,
		}
		if err := uc.transferLogRepo.Create(txCtx, tx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.TransferDuration.Observe(time.Since(start).Seconds())
	}

	return nil
}

// applyTransfer moves amount between two in-memory balances, honoring the
// normal side of each balance kind. A debit-normal balance grows when
// debited and shrinks when credited; every balance stays non-negative.
func applyTransfer(balances map[string]*domain.Balance, t *domain.Transfer) error {
	src, ok := balances[t.SourceBalanceID]
	if !ok {
		return domain.ErrUnknownBalance
	}
	dst, ok := balances[t.DestinationBalanceID]
	if !ok {
		return domain.ErrUnknownBalance
	}

	if src.Kind.DebitNormal() {
		src.Amount = src.Amount.Add(t.Amount)
	} else {
		if !src.CanDebit(t.Amount) {
			return domain.ErrInsufficientBalance
		}
		src.Amount = src.Amount.Sub(t.Amount)
	}

	if dst.Kind.DebitNormal() {
		if !dst.CanDebit(t.Amount) {
			return domain.ErrInsufficientBalance
		}
		dst.Amount = dst.Amount.Sub(t.Amount)
	} else {
		dst.Amount = dst.Amount.Add(t.Amount)
	}

	return nil
}

// DepositInput represents input for a deposit.
type DepositInput struct {
	// DepositID is the caller-supplied idempotency key. Empty skips
	// replay detection.
	DepositID string
	BalanceID string
	// SettlementBalanceID, when set, receives a mirrored credit in the
	// same transaction.
	SettlementBalanceID string
	Amount              decimal.Decimal
}

// Deposit credits a balance from outside the ledger. Reusing a deposit id
// returns domain.ErrDepositExists and changes nothing.
func (uc *TransferUseCase) Deposit(ctx context.Context, input DepositInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	return uc.run(ctx, func() error {
		return uc.deposit(ctx, input)
	})
}

func (uc *TransferUseCase) deposit(ctx context.Context, input DepositInput) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	now := time.Now().UTC()

	if input.DepositID != "" {
		record := &domain.Deposit{
			ID:        input.DepositID,
			BalanceID: input.BalanceID,
			Amount:    input.Amount,
			CreatedAt: now,
		}
		if err := uc.depositRepo.Create(txCtx, tx, record); err != nil {
			return err
		}
	}

	ids := []string{input.BalanceID}
	if input.SettlementBalanceID != "" {
		ids = append(ids, input.SettlementBalanceID)
	}

	balances, err := uc.lockBalances(txCtx, tx, ids)
	if err != nil {
		return err
	}

	for _, id := range ids {
		b, ok := balances[id]
		if !ok {
			return domain.ErrUnknownBalance
		}
		b.Amount = b.Amount.Add(input.Amount)
	}

	if err := uc.flushBalances(txCtx, tx, balances, ids); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.Deposits.WithLabelValues(string(balances[input.BalanceID].Kind)).Inc()
	}

	return nil
}

// WithdrawInput represents input for a withdrawal.
type WithdrawInput struct {
	// WithdrawalID is the caller-supplied idempotency key. Empty skips
	// replay detection.
	WithdrawalID string
	BalanceID    string
	// SettlementBalanceID, when set, is debited in lockstep.
	SettlementBalanceID string
	Amount              decimal.Decimal
}

// Withdraw debits a balance toward outside the ledger. Reusing a withdrawal
// id returns domain.ErrWithdrawalExists and changes nothing.
func (uc *TransferUseCase) Withdraw(ctx context.Context, input WithdrawInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	return uc.run(ctx, func() error {
		return uc.withdraw(ctx, input)
	})
}

func (uc *TransferUseCase) withdraw(ctx context.Context, input WithdrawInput) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	now := time.Now().UTC()

	if input.WithdrawalID != "" {
		record := &domain.Withdrawal{
			ID:        input.WithdrawalID,
			BalanceID: input.BalanceID,
			Amount:    input.Amount,
			CreatedAt: now,
		}
		if err := uc.withdrawalRepo.Create(txCtx, tx, record); err != nil {
			return err
		}
	}

	ids := []string{input.BalanceID}
	if input.SettlementBalanceID != "" {
		ids = append(ids, input.SettlementBalanceID)
	}

	balances, err := uc.lockBalances(txCtx, tx, ids)
	if err != nil {
		return err
	}

	for _, id := range ids {
		b, ok := balances[id]
		if !ok {
			return domain.ErrUnknownBalance
		}
		if !b.CanDebit(input.Amount) {
			if b.Kind == domain.BalanceKindLiquidity {
				return domain.ErrInsufficientLiquidity
			}
			return domain.ErrInsufficientBalance
		}
		b.Amount = b.Amount.Sub(input.Amount)
	}

	if err := uc.flushBalances(txCtx, tx, balances, ids); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.Withdrawals.WithLabelValues(string(balances[input.BalanceID].Kind)).Inc()
	}

	return nil
}

// TransferFundsInput represents input for starting a two-phase transfer.
type TransferFundsInput struct {
	SourceBalanceID      string
	DestinationBalanceID string
	SourceAmount         decimal.Decimal
	// DestinationAmount is required for cross-asset transfers; for
	// same-asset transfers it must be absent or equal to SourceAmount.
	DestinationAmount *decimal.Decimal
}

// TransferFunds stages a two-phase transfer, reserving the source amount
// (and, cross-asset, the destination liquidity) until CommitTransfer or
// RollbackTransfer finalizes it.
func (uc *TransferUseCase) TransferFunds(ctx context.Context, input TransferFundsInput) (*domain.PendingTransfer, error) {
	if input.SourceBalanceID == input.DestinationBalanceID {
		return nil, domain.ErrSameAccounts
	}
	if input.SourceAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidSourceAmount
	}
	if input.DestinationAmount != nil && input.DestinationAmount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrInvalidDestinationAmount
	}

	// Load both balances outside the lock to learn the assets involved.
	src, err := uc.balanceRepo.GetByID(ctx, input.SourceBalanceID)
	if err != nil {
		return nil, err
	}
	dst, err := uc.balanceRepo.GetByID(ctx, input.DestinationBalanceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pending := &domain.PendingTransfer{
		ID:                   uc.idGen.Generate(),
		SourceBalanceID:      input.SourceBalanceID,
		DestinationBalanceID: input.DestinationBalanceID,
		SourceAmount:         input.SourceAmount,
		State:                domain.PendingTransferStatePending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if src.AssetCode == dst.AssetCode && src.AssetScale == dst.AssetScale {
		if input.DestinationAmount != nil && !input.DestinationAmount.Equal(input.SourceAmount) {
			return nil, domain.ErrInvalidDestinationAmount
		}
		pending.DestinationAmount = input.SourceAmount
	} else {
		// Cross-asset: the rate is fixed by the caller, so the
		// destination amount is mandatory.
		if input.DestinationAmount == nil {
			return nil, domain.ErrInvalidDestinationAmount
		}
		pending.DestinationAmount = *input.DestinationAmount

		srcLiq := domain.LiquidityBalanceID(src.AssetCode, src.AssetScale, uc.balanceSecret)
		dstLiq := domain.LiquidityBalanceID(dst.AssetCode, dst.AssetScale, uc.balanceSecret)
		pending.SourceLiquidityID = &srcLiq
		pending.DestinationLiquidityID = &dstLiq
	}

	err = uc.run(ctx, func() error {
		return uc.reserve(ctx, pending)
	})
	if err != nil {
		uc.countError(err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PendingTransfersCreated.Inc()
	}

	return pending, nil
}

func (uc *TransferUseCase) reserve(ctx context.Context, pending *domain.PendingTransfer) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	ids := pendingBalanceIDs(pending)
	balances, err := uc.lockBalances(txCtx, tx, ids)
	if err != nil {
		return err
	}

	src, ok := balances[pending.SourceBalanceID]
	if !ok {
		return domain.ErrUnknownBalance
	}
	if _, ok := balances[pending.DestinationBalanceID]; !ok {
		return domain.ErrUnknownBalance
	}

	if !src.CanDebit(pending.SourceAmount) {
		return domain.ErrInsufficientBalance
	}
	src.ReservedAmount = src.ReservedAmount.Add(pending.SourceAmount)

	if pending.CrossAsset() {
		// Source liquidity only receives funds at commit, but it must
		// exist; a missing liquidity balance means the asset ledger was
		// never created.
		if _, ok := balances[*pending.SourceLiquidityID]; !ok {
			return domain.ErrUnknownBalance
		}
		dstLiq, ok := balances[*pending.DestinationLiquidityID]
		if !ok {
			return domain.ErrUnknownBalance
		}
		if !dstLiq.CanDebit(pending.DestinationAmount) {
			return domain.ErrInsufficientLiquidity
		}
		dstLiq.ReservedAmount = dstLiq.ReservedAmount.Add(pending.DestinationAmount)
	}

	if err := uc.flushBalances(txCtx, tx, balances, ids); err != nil {
		return err
	}

	if err := uc.pendingRepo.Create(txCtx, tx, pending); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// CommitTransfer finalizes a pending transfer, applying its reserved
// movement. Exactly one of commit and rollback succeeds per transfer; a
// repeat returns domain.ErrTransferAlreadyCommitted or
// domain.ErrTransferAlreadyRejected.
func (uc *TransferUseCase) CommitTransfer(ctx context.Context, id string) error {
	err := uc.run(ctx, func() error {
		return uc.finalize(ctx, id, true)
	})
	if err != nil {
		uc.countError(err)
		return err
	}

	if uc.metrics != nil {
		uc.metrics.PendingTransfersCommitted.Inc()
	}

	return nil
}

// RollbackTransfer finalizes a pending transfer by releasing its
// reservations without moving funds.
func (uc *TransferUseCase) RollbackTransfer(ctx context.Context, id string) error {
	err := uc.run(ctx, func() error {
		return uc.finalize(ctx, id, false)
	})
	if err != nil {
		uc.countError(err)
		return err
	}

	if uc.metrics != nil {
		uc.metrics.PendingTransfersRolledBack.Inc()
	}

	return nil
}

func (uc *TransferUseCase) finalize(ctx context.Context, id string, commit bool) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	// The row lock serializes racing commit/rollback callers; the loser
	// observes the terminal state.
	pending, err := uc.pendingRepo.GetByIDForUpdate(txCtx, tx, id)
	if err != nil {
		return err
	}
	if err := pending.FinalizedError(); err != nil {
		return err
	}

	ids := pendingBalanceIDs(pending)
	balances, err := uc.lockBalances(txCtx, tx, ids)
	if err != nil {
		return err
	}
	for _, bid := range ids {
		if _, ok := balances[bid]; !ok {
			return domain.ErrUnknownBalance
		}
	}

	src := balances[pending.SourceBalanceID]
	dst := balances[pending.DestinationBalanceID]

	now := time.Now().UTC()
	state := domain.PendingTransferStateRejected

	if commit {
		state = domain.PendingTransferStateCommitted

		src.ReservedAmount = src.ReservedAmount.Sub(pending.SourceAmount)
		src.Amount = src.Amount.Sub(pending.SourceAmount)

		if pending.CrossAsset() {
			srcLiq := balances[*pending.SourceLiquidityID]
			dstLiq := balances[*pending.DestinationLiquidityID]

			srcLiq.Amount = srcLiq.Amount.Add(pending.SourceAmount)
			dstLiq.ReservedAmount = dstLiq.ReservedAmount.Sub(pending.DestinationAmount)
			dstLiq.Amount = dstLiq.Amount.Sub(pending.DestinationAmount)
			dst.Amount = dst.Amount.Add(pending.DestinationAmount)
		} else {
			dst.Amount = dst.Amount.Add(pending.SourceAmount)
		}

		if err := uc.journalCommit(txCtx, tx, pending, now); err != nil {
			return err
		}
	} else {
		src.ReservedAmount = src.ReservedAmount.Sub(pending.SourceAmount)
		if pending.CrossAsset() {
			dstLiq := balances[*pending.DestinationLiquidityID]
			dstLiq.ReservedAmount = dstLiq.ReservedAmount.Sub(pending.DestinationAmount)
		}
	}

	if err := uc.flushBalances(txCtx, tx, balances, ids); err != nil {
		return err
	}

	if err := uc.pendingRepo.UpdateState(txCtx, tx, pending.ID, state, now); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

func (uc *TransferUseCase) journalCommit(ctx context.Context, tx Transaction, pending *domain.PendingTransfer, now time.Time) error {
	var records []*domain.TransferRecord
	if pending.CrossAsset() {
		records = []*domain.TransferRecord{
			{
				SourceBalanceID:      pending.SourceBalanceID,
				DestinationBalanceID: *pending.SourceLiquidityID,
				Amount:               pending.SourceAmount,
			},
			{
				SourceBalanceID:      *pending.DestinationLiquidityID,
				DestinationBalanceID: pending.DestinationBalanceID,
				Amount:               pending.DestinationAmount,
			},
		}
	} else {
		records = []*domain.TransferRecord{
			{
				SourceBalanceID:      pending.SourceBalanceID,
				DestinationBalanceID: pending.DestinationBalanceID,
				Amount:               pending.SourceAmount,
			},
		}
	}

	for _, r := range records {
		r.ID = uc.idGen.Generate()
		r.PendingTransferID = &pending.ID
		r.CreatedAt = now
		if err := uc.transferLogRepo.Create(ctx, tx, r); err != nil {
			return err
		}
	}

	return nil
}

// GetTransfer retrieves a pending transfer by ID.
func (uc *TransferUseCase) GetTransfer(ctx context.Context, id string) (*domain.PendingTransfer, error) {
	return uc.pendingRepo.GetByID(ctx, id)
}

// ListTransfersByBalance lists journaled transfers touching a balance.
func (uc *TransferUseCase) ListTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return uc.transferLogRepo.ListByBalance(ctx, balanceID, limit, offset)
}

// lockBalances locks balances in sorted id order (DEADLOCK PREVENTION) and
// returns them keyed by id. Missing ids are not an error here; callers
// decide what a missing balance means.
func (uc *TransferUseCase) lockBalances(ctx context.Context, tx Transaction, ids []string) (map[string]*domain.Balance, error) {
	unique := uniqueSorted(ids)

	balances, err := uc.balanceRepo.GetByIDsForUpdate(ctx, tx, unique)
	if err != nil {
		return nil, err
	}

	m := make(map[string]*domain.Balance, len(balances))
	for _, b := range balances {
		m[b.ID] = b
	}

	return m, nil
}

func (uc *TransferUseCase) flushBalances(ctx context.Context, tx Transaction, balances map[string]*domain.Balance, ids []string) error {
	for _, id := range uniqueSorted(ids) {
		b, ok := balances[id]
		if !ok {
			continue
		}
		if err := uc.balanceRepo.UpdateAmounts(ctx, tx, b.ID, b.Amount, b.ReservedAmount); err != nil {
			return err
		}
	}
	return nil
}

func collectBalanceIDs(transfers []domain.Transfer) []string {
	ids := make([]string, 0, len(transfers)*2)
	for i := range transfers {
		ids = append(ids, transfers[i].SourceBalanceID, transfers[i].DestinationBalanceID)
	}
	return ids
}

func pendingBalanceIDs(pending *domain.PendingTransfer) []string {
	ids := []string{pending.SourceBalanceID, pending.DestinationBalanceID}
	if pending.CrossAsset() {
		ids = append(ids, *pending.SourceLiquidityID, *pending.DestinationLiquidityID)
	}
	return ids
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
