package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
	"github.com/iho/ilpledger/internal/domain"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// mapDomainError maps domain errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownAccount),
		errors.Is(err, domain.ErrUnknownTransfer),
		errors.Is(err, domain.ErrUnknownBalance),
		errors.Is(err, domain.ErrUnknownLiquidityAccount),
		errors.Is(err, domain.ErrUnknownSubAccount):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateAccountID),
		errors.Is(err, domain.ErrDuplicateIncomingToken),
		errors.Is(err, domain.ErrTransferAlreadyCommitted),
		errors.Is(err, domain.ErrTransferAlreadyRejected),
		errors.Is(err, domain.ErrDepositExists),
		errors.Is(err, domain.ErrWithdrawalExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrInsufficientCredit),
		errors.Is(err, domain.ErrInsufficientDebt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSameAccounts),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidSourceAmount),
		errors.Is(err, domain.ErrInvalidDestinationAmount),
		errors.Is(err, domain.ErrInvalidAsset),
		errors.Is(err, domain.ErrInvalidSuperAccount),
		errors.Is(err, domain.ErrUnknownSuperAccount),
		errors.Is(err, domain.ErrUnknownSourceAccount),
		errors.Is(err, domain.ErrUnknownDestinationAccount),
		errors.Is(err, domain.ErrUnrelatedSubAccount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}

// parseScale parses an asset scale URL parameter.
func parseScale(raw string) (uint32, error) {
	scale, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(scale), nil
}
