package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// TransferService defines the two-phase transfer behavior needed by
// TransferHandler. Creation is account-level; finalization works on the
// pending transfer directly.
type TransferService interface {
	TransferFunds(ctx context.Context, input usecase.AccountTransferInput) (*domain.PendingTransfer, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
}

// TransferFinalizer finalizes and inspects pending transfers.
type TransferFinalizer interface {
	CommitTransfer(ctx context.Context, id string) error
	RollbackTransfer(ctx context.Context, id string) error
	GetTransfer(ctx context.Context, id string) (*domain.PendingTransfer, error)
	ListTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error)
}

// TransferHandler handles transfer-related HTTP requests.
type TransferHandler struct {
	accountUC  TransferService
	transferUC TransferFinalizer
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(accountUC TransferService, transferUC TransferFinalizer) *TransferHandler {
	return &TransferHandler{
		accountUC:  accountUC,
		transferUC: transferUC,
	}
}

// Create stages a two-phase transfer between two accounts.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	transfer, err := h.accountUC.TransferFunds(r.Context(), req.ToUseCaseInput())
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to create transfer", err.Error())

		return
	}

	writeJSON(w, http.StatusCreated, dto.TransferFromDomain(transfer))
}

// Get retrieves a pending transfer by ID.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transfer ID", "")
		return
	}

	transfer, err := h.transferUC.GetTransfer(r.Context(), id)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get transfer", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.TransferFromDomain(transfer))
}

// Commit applies a pending transfer.
func (h *TransferHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.transferUC.CommitTransfer, domain.PendingTransferStateCommitted)
}

// Rollback releases a pending transfer's reservations.
func (h *TransferHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.transferUC.RollbackTransfer, domain.PendingTransferStateRejected)
}

func (h *TransferHandler) finalize(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, state domain.PendingTransferState) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transfer ID", "")
		return
	}

	if err := op(r.Context(), id); err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to finalize transfer", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    id,
		"state": string(state),
	})
}

// ListByAccount lists the journal entries touching an account's balance.
func (h *TransferHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "missing account ID", "")
		return
	}

	account, err := h.accountUC.GetAccount(r.Context(), accountID)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get account", err.Error())

		return
	}

	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	records, err := h.transferUC.ListTransfersByBalance(r.Context(), account.BalanceID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transfers", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.TransferRecordsFromDomain(records))
}
