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

// LiquidityService defines the behavior needed by LiquidityHandler.
type LiquidityService interface {
	DepositLiquidity(ctx context.Context, input usecase.DepositLiquidityInput) error
	WithdrawLiquidity(ctx context.Context, input usecase.WithdrawLiquidityInput) error
	GetLiquidityBalance(ctx context.Context, assetCode string, assetScale uint32) (*domain.Balance, error)
	GetSettlementBalance(ctx context.Context, assetCode string, assetScale uint32) (*domain.Balance, error)
}

// LiquidityHandler handles per-asset liquidity HTTP requests.
type LiquidityHandler struct {
	accountUC LiquidityService
}

// NewLiquidityHandler creates a new LiquidityHandler.
func NewLiquidityHandler(accountUC LiquidityService) *LiquidityHandler {
	return &LiquidityHandler{accountUC: accountUC}
}

func assetParams(r *http.Request) (string, uint32, error) {
	code := chi.URLParam(r, "code")
	scale, err := parseScale(chi.URLParam(r, "scale"))
	return code, scale, err
}

// Deposit adds funds to an asset's liquidity balance.
func (h *LiquidityHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	code, scale, err := assetParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset scale", err.Error())
		return
	}

	var req dto.LiquidityDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.accountUC.DepositLiquidity(r.Context(), req.ToUseCaseInput(code, scale)); err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to deposit liquidity", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Withdraw removes funds from an asset's liquidity balance.
func (h *LiquidityHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	code, scale, err := assetParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset scale", err.Error())
		return
	}

	var req dto.LiquidityWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.accountUC.WithdrawLiquidity(r.Context(), req.ToUseCaseInput(code, scale)); err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to withdraw liquidity", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLiquidity retrieves an asset's liquidity balance.
func (h *LiquidityHandler) GetLiquidity(w http.ResponseWriter, r *http.Request) {
	h.getBalance(w, r, h.accountUC.GetLiquidityBalance)
}

// GetSettlement retrieves an asset's settlement balance.
func (h *LiquidityHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	h.getBalance(w, r, h.accountUC.GetSettlementBalance)
}

func (h *LiquidityHandler) getBalance(w http.ResponseWriter, r *http.Request, get func(context.Context, string, uint32) (*domain.Balance, error)) {
	code, scale, err := assetParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset scale", err.Error())
		return
	}

	balance, err := get(r.Context(), code, scale)
	if err != nil {
		status := mapDomainError(err)
		writeError(w, status, "failed to get balance", err.Error())

		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(balance))
}
