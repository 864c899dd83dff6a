package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
	"github.com/iho/ilpledger/internal/usecase"
)

// CreditService defines the behavior needed by CreditHandler.
type CreditService interface {
	ExtendCredit(ctx context.Context, input usecase.ExtendCreditInput) error
	UtilizeCredit(ctx context.Context, input usecase.CreditInput) error
	RevokeCredit(ctx context.Context, input usecase.CreditInput) error
	SettleDebt(ctx context.Context, input usecase.SettleDebtInput) error
}

// CreditHandler handles credit-line HTTP requests.
type CreditHandler struct {
	creditUC CreditService
}

// NewCreditHandler creates a new CreditHandler.
func NewCreditHandler(creditUC CreditService) *CreditHandler {
	return &CreditHandler{creditUC: creditUC}
}

// Extend makes credit available to a sub-account down the chain.
func (h *CreditHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req dto.ExtendCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.run(w, r, "failed to extend credit", func(ctx context.Context) error {
		return h.creditUC.ExtendCredit(ctx, req.ToUseCaseInput())
	})
}

// Utilize draws down extended credit, moving funds and recording debt.
func (h *CreditHandler) Utilize(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.run(w, r, "failed to utilize credit", func(ctx context.Context) error {
		return h.creditUC.UtilizeCredit(ctx, req.ToUseCaseInput())
	})
}

// Revoke withdraws unutilized credit.
func (h *CreditHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.run(w, r, "failed to revoke credit", func(ctx context.Context) error {
		return h.creditUC.RevokeCredit(ctx, req.ToUseCaseInput())
	})
}

// Settle pays down a sub-account's debt up the chain.
func (h *CreditHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req dto.SettleDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.run(w, r, "failed to settle debt", func(ctx context.Context) error {
		return h.creditUC.SettleDebt(ctx, req.ToUseCaseInput())
	})
}

func (h *CreditHandler) run(w http.ResponseWriter, r *http.Request, message string, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		status := mapDomainError(err)
		writeError(w, status, message, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
