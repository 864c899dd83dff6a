package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

type creditServiceStub struct {
	extendFn  func(ctx context.Context, input usecase.ExtendCreditInput) error
	utilizeFn func(ctx context.Context, input usecase.CreditInput) error
	revokeFn  func(ctx context.Context, input usecase.CreditInput) error
	settleFn  func(ctx context.Context, input usecase.SettleDebtInput) error
}

func (s *creditServiceStub) ExtendCredit(ctx context.Context, input usecase.ExtendCreditInput) error {
	return s.extendFn(ctx, input)
}

func (s *creditServiceStub) UtilizeCredit(ctx context.Context, input usecase.CreditInput) error {
	return s.utilizeFn(ctx, input)
}

func (s *creditServiceStub) RevokeCredit(ctx context.Context, input usecase.CreditInput) error {
	return s.revokeFn(ctx, input)
}

func (s *creditServiceStub) SettleDebt(ctx context.Context, input usecase.SettleDebtInput) error {
	return s.settleFn(ctx, input)
}

func TestCreditHandler_Extend(t *testing.T) {
	var captured usecase.ExtendCreditInput
	h := NewCreditHandler(&creditServiceStub{
		extendFn: func(ctx context.Context, input usecase.ExtendCreditInput) error {
			captured = input
			return nil
		},
	})

	body := []byte(`{"account_id":"parent","sub_account_id":"child","amount":"100","auto_apply":true}`)
	req := httptest.NewRequest(http.MethodPost, "/credit/extend", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Extend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.AccountID != "parent" || captured.SubAccountID != "child" || !captured.AutoApply {
		t.Fatalf("unexpected input: %+v", captured)
	}
	if !captured.Amount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected amount 100, got %s", captured.Amount)
	}
}

func TestCreditHandler_Utilize_InsufficientCredit(t *testing.T) {
	h := NewCreditHandler(&creditServiceStub{
		utilizeFn: func(ctx context.Context, input usecase.CreditInput) error {
			return domain.ErrInsufficientCredit
		},
	})

	body := []byte(`{"account_id":"parent","sub_account_id":"child","amount":"100"}`)
	req := httptest.NewRequest(http.MethodPost, "/credit/utilize", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Utilize(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCreditHandler_Revoke_UnrelatedSubAccount(t *testing.T) {
	h := NewCreditHandler(&creditServiceStub{
		revokeFn: func(ctx context.Context, input usecase.CreditInput) error {
			return domain.ErrUnrelatedSubAccount
		},
	})

	body := []byte(`{"account_id":"parent","sub_account_id":"stranger","amount":"50"}`)
	req := httptest.NewRequest(http.MethodPost, "/credit/revoke", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Revoke(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreditHandler_Settle(t *testing.T) {
	var captured usecase.SettleDebtInput
	h := NewCreditHandler(&creditServiceStub{
		settleFn: func(ctx context.Context, input usecase.SettleDebtInput) error {
			captured = input
			return nil
		},
	})

	body := []byte(`{"account_id":"parent","sub_account_id":"child","amount":"30","revolve":false}`)
	req := httptest.NewRequest(http.MethodPost, "/credit/settle", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Settle(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Revolve == nil || *captured.Revolve {
		t.Fatalf("expected revolve false, got %+v", captured.Revolve)
	}
}

func TestCreditHandler_Settle_InsufficientDebt(t *testing.T) {
	h := NewCreditHandler(&creditServiceStub{
		settleFn: func(ctx context.Context, input usecase.SettleDebtInput) error {
			return domain.ErrInsufficientDebt
		},
	})

	body := []byte(`{"account_id":"parent","sub_account_id":"child","amount":"9999"}`)
	req := httptest.NewRequest(http.MethodPost, "/credit/settle", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Settle(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
