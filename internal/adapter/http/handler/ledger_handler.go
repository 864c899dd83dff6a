package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
	"github.com/iho/ilpledger/internal/usecase"
)

// ReconciliationService defines the behavior needed by LedgerHandler.
type ReconciliationService interface {
	ReconcileAllAssets(ctx context.Context) ([]*usecase.AssetReconciliationResult, error)
}

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	reconciliationUC ReconciliationService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(reconciliationUC ReconciliationService) *LedgerHandler {
	return &LedgerHandler{reconciliationUC: reconciliationUC}
}

// CheckConsistency verifies per-asset conservation: each settlement balance
// equals the sum of account balances plus liquidity.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	results, err := h.reconciliationUC.ReconcileAllAssets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check consistency", err.Error())
		return
	}

	resp := dto.ConsistencyFromResults(results, time.Now().UTC())
	status := http.StatusOK
	if !resp.Consistent {
		status = http.StatusConflict
	}

	writeJSON(w, status, resp)
}
