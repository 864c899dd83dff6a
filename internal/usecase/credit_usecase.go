package usecase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/infrastructure/metrics"
)

// CreditUseCase manages credit lines along parent/child account edges.
// Every operation walks the chain from the sub-account up to the granting
// account and applies one batch of elementary transfers covering every hop,
// so a partial application is impossible.
type CreditUseCase struct {
	accountRepo AccountRepository
	transfers   *TransferUseCase
	metrics     *metrics.Metrics
}

// NewCreditUseCase creates a new CreditUseCase.
func NewCreditUseCase(accountRepo AccountRepository, transfers *TransferUseCase, m *metrics.Metrics) *CreditUseCase {
	return &CreditUseCase{
		accountRepo: accountRepo,
		transfers:   transfers,
		metrics:     m,
	}
}

// CreditInput identifies one credit operation along the chain between an
// account and one of its descendants.
type CreditInput struct {
	AccountID    string
	SubAccountID string
	Amount       decimal.Decimal
}

// hop is one parent/child edge on the path from the sub-account up to the
// granting account.
type hop struct {
	child *domain.Account
	super *domain.Account
}

func (uc *CreditUseCase) resolveChain(ctx context.Context, accountID, subAccountID string) ([]hop, error) {
	chain, err := uc.accountRepo.GetWithSuperAccounts(ctx, subAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAccount) {
			return nil, domain.ErrUnknownSubAccount
		}
		return nil, err
	}

	// Existence of the sub-account is checked before the identity check so
	// a request naming one unknown id twice reports the unknown account.
	if accountID == subAccountID {
		return nil, domain.ErrSameAccounts
	}

	if !chain.HasSuperAccount(accountID) {
		if _, err := uc.accountRepo.GetByID(ctx, accountID); err != nil {
			return nil, err
		}
		return nil, domain.ErrUnrelatedSubAccount
	}

	accounts := append([]*domain.Account{&chain.Account}, chain.SuperAccounts...)

	var hops []hop
	for i := 0; accounts[i].ID != accountID; i++ {
		hops = append(hops, hop{child: accounts[i], super: accounts[i+1]})
	}

	return hops, nil
}

// Per-hop transfer builders. A missing structural balance is not a caller
// error; it means the hierarchy is corrupt, reported as UnknownBalanceError.

// increaseCredit moves amount from the super's pooled credit-extended
// balance to the child's credit balance. Both sides grow.
func increaseCredit(h hop, amount decimal.Decimal) (domain.Transfer, error) {
	if h.super.CreditExtendedBalanceID == nil || h.child.CreditBalanceID == nil {
		return domain.Transfer{}, missingBalance(h)
	}
	return domain.Transfer{
		SourceBalanceID:      *h.super.CreditExtendedBalanceID,
		DestinationBalanceID: *h.child.CreditBalanceID,
		Amount:               amount,
	}, nil
}

// decreaseCredit is the reverse of increaseCredit; it fails when the child
// has less credit than amount.
func decreaseCredit(h hop, amount decimal.Decimal) (domain.Transfer, error) {
	if h.super.CreditExtendedBalanceID == nil || h.child.CreditBalanceID == nil {
		return domain.Transfer{}, missingBalance(h)
	}
	return domain.Transfer{
		SourceBalanceID:      *h.child.CreditBalanceID,
		DestinationBalanceID: *h.super.CreditExtendedBalanceID,
		Amount:               amount,
	}, nil
}

// increaseDebt moves amount from the super's pooled lent balance to the
// child's debt balance. Both sides grow.
func increaseDebt(h hop, amount decimal.Decimal) (domain.Transfer, error) {
	if h.super.LentBalanceID == nil || h.child.DebtBalanceID == nil {
		return domain.Transfer{}, missingBalance(h)
	}
	return domain.Transfer{
		SourceBalanceID:      *h.super.LentBalanceID,
		DestinationBalanceID: *h.child.DebtBalanceID,
		Amount:               amount,
	}, nil
}

// decreaseDebt is the reverse of increaseDebt; it fails when the child owes
// less than amount.
func decreaseDebt(h hop, amount decimal.Decimal) (domain.Transfer, error) {
	if h.super.LentBalanceID == nil || h.child.DebtBalanceID == nil {
		return domain.Transfer{}, missingBalance(h)
	}
	return domain.Transfer{
		SourceBalanceID:      *h.child.DebtBalanceID,
		DestinationBalanceID: *h.super.LentBalanceID,
		Amount:               amount,
	}, nil
}

func missingBalance(h hop) error {
	if h.child.CreditBalanceID == nil || h.child.DebtBalanceID == nil {
		return &domain.UnknownBalanceError{AccountID: h.child.ID}
	}
	return &domain.UnknownBalanceError{AccountID: h.super.ID}
}

// ExtendCreditInput represents input for extending credit.
type ExtendCreditInput struct {
	CreditInput
	// AutoApply immediately utilizes the extended credit: funds move and
	// debt is recorded, with no intermediate credit to draw down later.
	AutoApply bool
}

// ExtendCredit makes amount available to the sub-account from every
// ancestor on the path down from the account.
func (uc *CreditUseCase) ExtendCredit(ctx context.Context, input ExtendCreditInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	hops, err := uc.resolveChain(ctx, input.AccountID, input.SubAccountID)
	if err != nil {
		return err
	}

	var batch []domain.Transfer
	for _, h := range hops {
		var t domain.Transfer
		var err error
		if input.AutoApply {
			t, err = increaseDebt(h, input.Amount)
		} else {
			t, err = increaseCredit(h, input.Amount)
		}
		if err != nil {
			return err
		}
		batch = append(batch, t)
	}

	withFunds := false
	if input.AutoApply {
		batch = append(batch, domain.Transfer{
			SourceBalanceID:      hops[len(hops)-1].super.BalanceID,
			DestinationBalanceID: hops[0].child.BalanceID,
			Amount:               input.Amount,
		})
		withFunds = true
	}

	if err := uc.submit(ctx, batch, withFunds, nil); err != nil {
		return err
	}

	uc.count("extend")
	return nil
}

// UtilizeCredit draws amount of previously extended credit: real funds move
// from the account to the sub-account and every hop converts credit into
// debt.
func (uc *CreditUseCase) UtilizeCredit(ctx context.Context, input CreditInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	hops, err := uc.resolveChain(ctx, input.AccountID, input.SubAccountID)
	if err != nil {
		return err
	}

	var batch []domain.Transfer
	for _, h := range hops {
		dec, err := decreaseCredit(h, input.Amount)
		if err != nil {
			return err
		}
		inc, err := increaseDebt(h, input.Amount)
		if err != nil {
			return err
		}
		batch = append(batch, dec, inc)
	}
	batch = append(batch, domain.Transfer{
		SourceBalanceID:      hops[len(hops)-1].super.BalanceID,
		DestinationBalanceID: hops[0].child.BalanceID,
		Amount:               input.Amount,
	})

	if err := uc.submit(ctx, batch, true, domain.ErrInsufficientCredit); err != nil {
		return err
	}

	uc.count("utilize")
	return nil
}

// RevokeCredit withdraws amount of unutilized credit from the sub-account
// on every hop.
func (uc *CreditUseCase) RevokeCredit(ctx context.Context, input CreditInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	hops, err := uc.resolveChain(ctx, input.AccountID, input.SubAccountID)
	if err != nil {
		return err
	}

	var batch []domain.Transfer
	for _, h := range hops {
		t, err := decreaseCredit(h, input.Amount)
		if err != nil {
			return err
		}
		batch = append(batch, t)
	}

	if err := uc.submit(ctx, batch, false, domain.ErrInsufficientCredit); err != nil {
		return err
	}

	uc.count("revoke")
	return nil
}

// SettleDebtInput represents input for settling debt.
type SettleDebtInput struct {
	CreditInput
	// Revolve restores the settled amount as available credit. Nil
	// defaults to true.
	Revolve *bool
}

// SettleDebt pays amount of the sub-account's debt back up the chain: funds
// move from the sub-account to the account and every hop reduces debt,
// restoring credit unless revolving is disabled.
func (uc *CreditUseCase) SettleDebt(ctx context.Context, input SettleDebtInput) error {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}

	hops, err := uc.resolveChain(ctx, input.AccountID, input.SubAccountID)
	if err != nil {
		return err
	}

	revolve := input.Revolve == nil || *input.Revolve

	var batch []domain.Transfer
	for _, h := range hops {
		dec, err := decreaseDebt(h, input.Amount)
		if err != nil {
			return err
		}
		batch = append(batch, dec)
		if revolve {
			inc, err := increaseCredit(h, input.Amount)
			if err != nil {
				return err
			}
			batch = append(batch, inc)
		}
	}
	batch = append(batch, domain.Transfer{
		SourceBalanceID:      hops[0].child.BalanceID,
		DestinationBalanceID: hops[len(hops)-1].super.BalanceID,
		Amount:               input.Amount,
	})

	if err := uc.submit(ctx, batch, true, domain.ErrInsufficientDebt); err != nil {
		return err
	}

	uc.count("settle_debt")
	return nil
}

// submit runs the batch and translates the failure index back into the
// caller's vocabulary: the trailing funds transfer maps to
// ErrInsufficientBalance, a failed hop transfer to hopErr. Anything else
// escapes as-is; it indicates corrupt hierarchy state, not caller error.
func (uc *CreditUseCase) submit(ctx context.Context, batch []domain.Transfer, withFunds bool, hopErr error) error {
	err := uc.transfers.CreateTransfers(ctx, batch)
	if err == nil {
		return nil
	}

	var batchErr *domain.BatchError
	if !errors.As(err, &batchErr) {
		return err
	}

	if withFunds && batchErr.Index == len(batch)-1 {
		if errors.Is(batchErr.Err, domain.ErrInsufficientBalance) {
			return domain.ErrInsufficientBalance
		}
		return err
	}
	if hopErr != nil && errors.Is(batchErr.Err, domain.ErrInsufficientBalance) {
		return hopErr
	}

	return err
}

func (uc *CreditUseCase) count(operation string) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.CreditOperations.WithLabelValues(operation).Inc()
}
