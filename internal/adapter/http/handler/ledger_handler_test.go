package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
	"github.com/iho/ilpledger/internal/usecase"
)

type reconciliationServiceStub struct {
	reconcileFn func(ctx context.Context) ([]*usecase.AssetReconciliationResult, error)
}

func (s *reconciliationServiceStub) ReconcileAllAssets(ctx context.Context) ([]*usecase.AssetReconciliationResult, error) {
	return s.reconcileFn(ctx)
}

func TestLedgerHandler_CheckConsistency_Consistent(t *testing.T) {
	h := NewLedgerHandler(&reconciliationServiceStub{
		reconcileFn: func(ctx context.Context) ([]*usecase.AssetReconciliationResult, error) {
			return []*usecase.AssetReconciliationResult{
				{AssetCode: "USD", AssetScale: 2, Settlement: decimal.RequireFromString("100"), AccountsSum: decimal.RequireFromString("60"), Liquidity: decimal.RequireFromString("40"), IsReconciled: true},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/ledger/consistency", nil)
	rec := httptest.NewRecorder()
	h.CheckConsistency(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.ConsistencyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Consistent || resp.Status != "consistent" || len(resp.Assets) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestLedgerHandler_CheckConsistency_Inconsistent(t *testing.T) {
	h := NewLedgerHandler(&reconciliationServiceStub{
		reconcileFn: func(ctx context.Context) ([]*usecase.AssetReconciliationResult, error) {
			return []*usecase.AssetReconciliationResult{
				{AssetCode: "USD", AssetScale: 2, Difference: decimal.RequireFromString("3"), IsReconciled: false},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/ledger/consistency", nil)
	rec := httptest.NewRecorder()
	h.CheckConsistency(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.ConsistencyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Consistent {
		t.Fatal("expected inconsistent report")
	}
}

func TestLedgerHandler_CheckConsistency_Error(t *testing.T) {
	h := NewLedgerHandler(&reconciliationServiceStub{
		reconcileFn: func(ctx context.Context) ([]*usecase.AssetReconciliationResult, error) {
			return nil, errors.New("db down")
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/ledger/consistency", nil)
	rec := httptest.NewRecorder()
	h.CheckConsistency(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
