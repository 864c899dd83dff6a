package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

type transferServiceStub struct {
	transferFn func(ctx context.Context, input usecase.AccountTransferInput) (*domain.PendingTransfer, error)
	getFn      func(ctx context.Context, id string) (*domain.Account, error)
}

func (s *transferServiceStub) TransferFunds(ctx context.Context, input usecase.AccountTransferInput) (*domain.PendingTransfer, error) {
	return s.transferFn(ctx, input)
}

func (s *transferServiceStub) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.getFn(ctx, id)
}

type transferFinalizerStub struct {
	commitFn   func(ctx context.Context, id string) error
	rollbackFn func(ctx context.Context, id string) error
	getFn      func(ctx context.Context, id string) (*domain.PendingTransfer, error)
	listFn     func(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error)
}

func (s *transferFinalizerStub) CommitTransfer(ctx context.Context, id string) error {
	return s.commitFn(ctx, id)
}

func (s *transferFinalizerStub) RollbackTransfer(ctx context.Context, id string) error {
	return s.rollbackFn(ctx, id)
}

func (s *transferFinalizerStub) GetTransfer(ctx context.Context, id string) (*domain.PendingTransfer, error) {
	return s.getFn(ctx, id)
}

func (s *transferFinalizerStub) ListTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error) {
	return s.listFn(ctx, balanceID, limit, offset)
}

func TestTransferHandler_Create_Success(t *testing.T) {
	pending := &domain.PendingTransfer{
		ID:                "tr-1",
		SourceAmount:      decimal.RequireFromString("10"),
		DestinationAmount: decimal.RequireFromString("10"),
		State:             domain.PendingTransferStatePending,
	}

	var captured usecase.AccountTransferInput
	h := NewTransferHandler(&transferServiceStub{
		transferFn: func(ctx context.Context, input usecase.AccountTransferInput) (*domain.PendingTransfer, error) {
			captured = input
			return pending, nil
		},
	}, &transferFinalizerStub{})

	body := []byte(`{"source_account_id":"alice","destination_account_id":"bob","source_amount":"10"}`)
	req := httptest.NewRequest(http.MethodPost, "/transfers", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.SourceAccountID != "alice" || captured.DestinationAccountID != "bob" {
		t.Fatalf("unexpected input: %+v", captured)
	}
	if captured.DestinationAmount != nil {
		t.Fatalf("expected nil destination amount, got %s", captured.DestinationAmount)
	}

	var resp dto.TransferResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "tr-1" || resp.State != string(domain.PendingTransferStatePending) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTransferHandler_Create_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"same accounts", domain.ErrSameAccounts, http.StatusBadRequest},
		{"unknown source", domain.ErrUnknownSourceAccount, http.StatusBadRequest},
		{"insufficient balance", domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"insufficient liquidity", domain.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTransferHandler(&transferServiceStub{
				transferFn: func(ctx context.Context, input usecase.AccountTransferInput) (*domain.PendingTransfer, error) {
					return nil, tt.err
				},
			}, &transferFinalizerStub{})

			body := []byte(`{"source_account_id":"a","destination_account_id":"b","source_amount":"1"}`)
			req := httptest.NewRequest(http.MethodPost, "/transfers", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			h.Create(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTransferHandler_CommitAndRollback(t *testing.T) {
	var committed, rolledBack string
	h := NewTransferHandler(&transferServiceStub{}, &transferFinalizerStub{
		commitFn: func(ctx context.Context, id string) error {
			committed = id
			return nil
		},
		rollbackFn: func(ctx context.Context, id string) error {
			rolledBack = id
			return nil
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/transfers/tr-1/commit", nil), "id", "tr-1")
	rec := httptest.NewRecorder()
	h.Commit(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if committed != "tr-1" {
		t.Fatalf("expected commit of tr-1, got %q", committed)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["state"] != string(domain.PendingTransferStateCommitted) {
		t.Fatalf("expected committed state, got %q", resp["state"])
	}

	req = withURLParam(httptest.NewRequest(http.MethodPost, "/transfers/tr-2/rollback", nil), "id", "tr-2")
	rec = httptest.NewRecorder()
	h.Rollback(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rolledBack != "tr-2" {
		t.Fatalf("expected rollback of tr-2, got %q", rolledBack)
	}
}

func TestTransferHandler_Commit_AlreadyFinalized(t *testing.T) {
	h := NewTransferHandler(&transferServiceStub{}, &transferFinalizerStub{
		commitFn: func(ctx context.Context, id string) error {
			return domain.ErrTransferAlreadyRejected
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/transfers/tr-1/commit", nil), "id", "tr-1")
	rec := httptest.NewRecorder()
	h.Commit(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestTransferHandler_Get_Unknown(t *testing.T) {
	h := NewTransferHandler(&transferServiceStub{}, &transferFinalizerStub{
		getFn: func(ctx context.Context, id string) (*domain.PendingTransfer, error) {
			return nil, domain.ErrUnknownTransfer
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/transfers/nope", nil), "id", "nope")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTransferHandler_ListByAccount(t *testing.T) {
	var listedBalance string
	h := NewTransferHandler(&transferServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Account, error) {
			return &domain.Account{ID: id, BalanceID: "bal-1"}, nil
		},
	}, &transferFinalizerStub{
		listFn: func(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error) {
			listedBalance = balanceID
			return []*domain.TransferRecord{
				{ID: "rec-1", SourceBalanceID: "bal-1", DestinationBalanceID: "bal-2", Amount: decimal.RequireFromString("5")},
			}, nil
		},
	})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/accounts/acc-1/transfers", nil), "id", "acc-1")
	rec := httptest.NewRecorder()
	h.ListByAccount(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if listedBalance != "bal-1" {
		t.Fatalf("expected listing by bal-1, got %q", listedBalance)
	}

	var resp []dto.TransferRecordResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "rec-1" {
		t.Fatalf("unexpected records: %+v", resp)
	}
}
