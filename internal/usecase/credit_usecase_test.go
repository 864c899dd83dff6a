package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// creditEnv builds parent -> child (and optionally deeper) hierarchies and
// funds the root.
func creditEnv(t *testing.T, rootFunds int64, depth int) (*env, []string) {
	t.Helper()
	e := newEnv()

	ids := []string{"acc-0"}
	createAccount(t, e, usecase.CreateAccountInput{ID: "acc-0"})
	for i := 1; i <= depth; i++ {
		parent := ids[i-1]
		id := "acc-" + string(rune('0'+i))
		createAccount(t, e, usecase.CreateAccountInput{ID: id, SuperAccountID: &parent})
		ids = append(ids, id)
	}

	if rootFunds > 0 {
		err := e.accountUC.Deposit(context.Background(), usecase.AccountDepositInput{
			AccountID: "acc-0", Amount: decimal.NewFromInt(rootFunds),
		})
		if err != nil {
			t.Fatalf("fund root: %v", err)
		}
	}

	return e, ids
}

func (e *env) creditState(t *testing.T, accountID string) (credit, debt int64) {
	t.Helper()
	account, err := e.accountUC.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get %s: %v", accountID, err)
	}
	if account.CreditBalanceID == nil || account.DebtBalanceID == nil {
		t.Fatalf("%s has no credit balances", accountID)
	}
	return e.balance(t, *account.CreditBalanceID).Amount.IntPart(),
		e.balance(t, *account.DebtBalanceID).Amount.IntPart()
}

func (e *env) pooledState(t *testing.T, accountID string) (extended, lent int64) {
	t.Helper()
	account, err := e.accountUC.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get %s: %v", accountID, err)
	}
	if account.CreditExtendedBalanceID == nil || account.LentBalanceID == nil {
		t.Fatalf("%s has no pooled balances", accountID)
	}
	return e.balance(t, *account.CreditExtendedBalanceID).Amount.IntPart(),
		e.balance(t, *account.LentBalanceID).Amount.IntPart()
}

func (e *env) accountAmount(t *testing.T, accountID string) int64 {
	t.Helper()
	b, err := e.accountUC.GetAccountBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("balance of %s: %v", accountID, err)
	}
	return b.Amount.IntPart()
}

func TestCreditUseCase_ExtendUtilizeSettle(t *testing.T) {
	e, _ := creditEnv(t, 1000, 1)
	ctx := context.Background()
	line := usecase.CreditInput{
		AccountID:    "acc-0",
		SubAccountID: "acc-1",
	}

	extend := usecase.ExtendCreditInput{CreditInput: line}
	extend.Amount = decimal.NewFromInt(100)
	if err := e.credit.ExtendCredit(ctx, extend); err != nil {
		t.Fatalf("extend: %v", err)
	}

	credit, debt := e.creditState(t, "acc-1")
	extended, lent := e.pooledState(t, "acc-0")
	if credit != 100 || debt != 0 || extended != 100 || lent != 0 {
		t.Fatalf("after extend: credit=%d debt=%d extended=%d lent=%d", credit, debt, extended, lent)
	}
	// Extending credit moves no real funds.
	if got := e.accountAmount(t, "acc-0"); got != 1000 {
		t.Fatalf("root funds = %d, want 1000", got)
	}

	utilize := line
	utilize.Amount = decimal.NewFromInt(40)
	if err := e.credit.UtilizeCredit(ctx, utilize); err != nil {
		t.Fatalf("utilize: %v", err)
	}

	credit, debt = e.creditState(t, "acc-1")
	extended, lent = e.pooledState(t, "acc-0")
	if credit != 60 || debt != 40 || extended != 60 || lent != 40 {
		t.Fatalf("after utilize: credit=%d debt=%d extended=%d lent=%d", credit, debt, extended, lent)
	}
	if got := e.accountAmount(t, "acc-0"); got != 960 {
		t.Fatalf("root funds = %d, want 960", got)
	}
	if got := e.accountAmount(t, "acc-1"); got != 40 {
		t.Fatalf("child funds = %d, want 40", got)
	}

	settle := usecase.SettleDebtInput{CreditInput: line}
	settle.Amount = decimal.NewFromInt(30)
	if err := e.credit.SettleDebt(ctx, settle); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Revolving settlement restores the credit line.
	credit, debt = e.creditState(t, "acc-1")
	extended, lent = e.pooledState(t, "acc-0")
	if credit != 90 || debt != 10 || extended != 90 || lent != 10 {
		t.Fatalf("after settle: credit=%d debt=%d extended=%d lent=%d", credit, debt, extended, lent)
	}
	if got := e.accountAmount(t, "acc-0"); got != 990 {
		t.Fatalf("root funds = %d, want 990", got)
	}
	if got := e.accountAmount(t, "acc-1"); got != 10 {
		t.Fatalf("child funds = %d, want 10", got)
	}
}

func TestCreditUseCase_SettleDebt_NoRevolve(t *testing.T) {
	e, _ := creditEnv(t, 1000, 1)
	ctx := context.Background()
	line := usecase.CreditInput{AccountID: "acc-0", SubAccountID: "acc-1"}

	extend := usecase.ExtendCreditInput{CreditInput: line}
	extend.Amount = decimal.NewFromInt(100)
	if err := e.credit.ExtendCredit(ctx, extend); err != nil {
		t.Fatalf("extend: %v", err)
	}
	utilize := line
	utilize.Amount = decimal.NewFromInt(40)
	if err := e.credit.UtilizeCredit(ctx, utilize); err != nil {
		t.Fatalf("utilize: %v", err)
	}

	noRevolve := false
	settle := usecase.SettleDebtInput{CreditInput: line, Revolve: &noRevolve}
	settle.Amount = decimal.NewFromInt(30)
	if err := e.credit.SettleDebt(ctx, settle); err != nil {
		t.Fatalf("settle: %v", err)
	}

	credit, debt := e.creditState(t, "acc-1")
	if credit != 60 || debt != 10 {
		t.Fatalf("after non-revolving settle: credit=%d debt=%d, want 60/10", credit, debt)
	}
}

func TestCreditUseCase_ExtendAutoApply(t *testing.T) {
	e, _ := creditEnv(t, 1000, 1)
	ctx := context.Background()

	extend := usecase.ExtendCreditInput{
		CreditInput: usecase.CreditInput{AccountID: "acc-0", SubAccountID: "acc-1"},
		AutoApply:   true,
	}
	extend.Amount = decimal.NewFromInt(50)
	if err := e.credit.ExtendCredit(ctx, extend); err != nil {
		t.Fatalf("extend auto-apply: %v", err)
	}

	// Auto-apply skips the credit stage entirely.
	credit, debt := e.creditState(t, "acc-1")
	if credit != 0 || debt != 50 {
		t.Fatalf("after auto-apply: credit=%d debt=%d, want 0/50", credit, debt)
	}
	if got := e.accountAmount(t, "acc-1"); got != 50 {
		t.Fatalf("child funds = %d, want 50", got)
	}

	// Insufficient root funds fail the whole operation atomically.
	extend.Amount = decimal.NewFromInt(951)
	err := e.credit.ExtendCredit(ctx, extend)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, debt := e.creditState(t, "acc-1"); debt != 50 {
		t.Fatalf("failed auto-apply must not change debt, got %d", debt)
	}
}

func TestCreditUseCase_MultiLevelChain(t *testing.T) {
	e, _ := creditEnv(t, 1000, 2)
	ctx := context.Background()
	line := usecase.CreditInput{AccountID: "acc-0", SubAccountID: "acc-2"}

	extend := usecase.ExtendCreditInput{CreditInput: line}
	extend.Amount = decimal.NewFromInt(100)
	if err := e.credit.ExtendCredit(ctx, extend); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// Every edge on the path carries the credit.
	for _, id := range []string{"acc-1", "acc-2"} {
		credit, _ := e.creditState(t, id)
		if credit != 100 {
			t.Errorf("%s credit = %d, want 100", id, credit)
		}
	}
	for _, id := range []string{"acc-0", "acc-1"} {
		extended, _ := e.pooledState(t, id)
		if extended != 100 {
			t.Errorf("%s extended = %d, want 100", id, extended)
		}
	}

	utilize := line
	utilize.Amount = decimal.NewFromInt(70)
	if err := e.credit.UtilizeCredit(ctx, utilize); err != nil {
		t.Fatalf("utilize: %v", err)
	}

	// Funds flow directly from the granting account to the sub-account;
	// the intermediate account only records credit and debt.
	if got := e.accountAmount(t, "acc-0"); got != 930 {
		t.Errorf("acc-0 funds = %d, want 930", got)
	}
	if got := e.accountAmount(t, "acc-1"); got != 0 {
		t.Errorf("acc-1 funds = %d, want 0", got)
	}
	if got := e.accountAmount(t, "acc-2"); got != 70 {
		t.Errorf("acc-2 funds = %d, want 70", got)
	}
	for _, id := range []string{"acc-1", "acc-2"} {
		credit, debt := e.creditState(t, id)
		if credit != 30 || debt != 70 {
			t.Errorf("%s credit=%d debt=%d, want 30/70", id, credit, debt)
		}
	}
}

func TestCreditUseCase_RevokeCredit(t *testing.T) {
	e, _ := creditEnv(t, 0, 1)
	ctx := context.Background()
	line := usecase.CreditInput{AccountID: "acc-0", SubAccountID: "acc-1"}

	extend := usecase.ExtendCreditInput{CreditInput: line}
	extend.Amount = decimal.NewFromInt(100)
	if err := e.credit.ExtendCredit(ctx, extend); err != nil {
		t.Fatalf("extend: %v", err)
	}

	revoke := line
	revoke.Amount = decimal.NewFromInt(60)
	if err := e.credit.RevokeCredit(ctx, revoke); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	credit, _ := e.creditState(t, "acc-1")
	if credit != 40 {
		t.Fatalf("credit = %d, want 40", credit)
	}

	revoke.Amount = decimal.NewFromInt(41)
	if err := e.credit.RevokeCredit(ctx, revoke); !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
}

func TestCreditUseCase_InsufficiencyErrors(t *testing.T) {
	e, _ := creditEnv(t, 10, 1)
	ctx := context.Background()
	line := usecase.CreditInput{AccountID: "acc-0", SubAccountID: "acc-1"}

	extend := usecase.ExtendCreditInput{CreditInput: line}
	extend.Amount = decimal.NewFromInt(100)
	if err := e.credit.ExtendCredit(ctx, extend); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// More credit than extended.
	utilize := line
	utilize.Amount = decimal.NewFromInt(101)
	if err := e.credit.UtilizeCredit(ctx, utilize); !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	// Credit suffices but the granting account cannot fund it.
	utilize.Amount = decimal.NewFromInt(50)
	if err := e.credit.UtilizeCredit(ctx, utilize); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Nothing was utilized, so there is no debt to settle.
	settle := usecase.SettleDebtInput{CreditInput: line}
	settle.Amount = decimal.NewFromInt(1)
	if err := e.credit.SettleDebt(ctx, settle); !errors.Is(err, domain.ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt, got %v", err)
	}
}

func TestCreditUseCase_Preconditions(t *testing.T) {
	e, _ := creditEnv(t, 0, 1)
	createAccount(t, e, usecase.CreateAccountInput{ID: "stranger"})
	ctx := context.Background()

	tests := []struct {
		name      string
		input     usecase.CreditInput
		errorType error
	}{
		{
			name:      "same accounts",
			input:     usecase.CreditInput{AccountID: "acc-1", SubAccountID: "acc-1"},
			errorType: domain.ErrSameAccounts,
		},
		{
			name:      "unknown sub-account",
			input:     usecase.CreditInput{AccountID: "acc-0", SubAccountID: "missing"},
			errorType: domain.ErrUnknownSubAccount,
		},
		{
			name:      "same unknown id reports unknown sub-account",
			input:     usecase.CreditInput{AccountID: "missing", SubAccountID: "missing"},
			errorType: domain.ErrUnknownSubAccount,
		},
		{
			name:      "unrelated accounts",
			input:     usecase.CreditInput{AccountID: "stranger", SubAccountID: "acc-1"},
			errorType: domain.ErrUnrelatedSubAccount,
		},
		{
			name:      "unknown account",
			input:     usecase.CreditInput{AccountID: "missing", SubAccountID: "acc-1"},
			errorType: domain.ErrUnknownAccount,
		},
		{
			name:      "descendant cannot grant upward",
			input:     usecase.CreditInput{AccountID: "acc-1", SubAccountID: "acc-0"},
			errorType: domain.ErrUnrelatedSubAccount,
		},
		{
			name:      "non-positive amount",
			input:     usecase.CreditInput{AccountID: "acc-0", SubAccountID: "acc-1"},
			errorType: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			if !errors.Is(tt.errorType, domain.ErrInvalidAmount) {
				input.Amount = decimal.NewFromInt(10)
			}

			extend := usecase.ExtendCreditInput{CreditInput: input}
			if err := e.credit.ExtendCredit(ctx, extend); !errors.Is(err, tt.errorType) {
				t.Errorf("extend: expected %v, got %v", tt.errorType, err)
			}
			if err := e.credit.UtilizeCredit(ctx, input); !errors.Is(err, tt.errorType) {
				t.Errorf("utilize: expected %v, got %v", tt.errorType, err)
			}
			if err := e.credit.RevokeCredit(ctx, input); !errors.Is(err, tt.errorType) {
				t.Errorf("revoke: expected %v, got %v", tt.errorType, err)
			}
			settle := usecase.SettleDebtInput{CreditInput: input}
			if err := e.credit.SettleDebt(ctx, settle); !errors.Is(err, tt.errorType) {
				t.Errorf("settle: expected %v, got %v", tt.errorType, err)
			}
		})
	}
}
