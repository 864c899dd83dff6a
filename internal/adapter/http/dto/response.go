package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID               string        `json:"id"`
	AssetCode        string        `json:"asset_code"`
	AssetScale       uint32        `json:"asset_scale"`
	Disabled         bool          `json:"disabled"`
	MaxPacketAmount  *uint64       `json:"max_packet_amount,omitempty"`
	SuperAccountID   *string       `json:"super_account_id,omitempty"`
	Outgoing         *HTTPOutgoing `json:"outgoing,omitempty"`
	StaticILPAddress string        `json:"static_ilp_address,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// AccountFromDomain converts a domain account to a response. Incoming
// tokens are secrets and are never echoed back.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	resp := &AccountResponse{
		ID:               a.ID,
		AssetCode:        a.AssetCode,
		AssetScale:       a.AssetScale,
		Disabled:         a.Disabled,
		MaxPacketAmount:  a.MaxPacketAmount,
		SuperAccountID:   a.SuperAccountID,
		StaticILPAddress: a.StaticILPAddress,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.Outgoing != nil {
		resp.Outgoing = &HTTPOutgoing{
			AuthToken: a.Outgoing.AuthToken,
			Endpoint:  a.Outgoing.Endpoint,
		}
	}

	return resp
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse wraps a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
}

// BalanceResponse represents a ledger balance in API responses.
type BalanceResponse struct {
	ID             string          `json:"id"`
	AssetCode      string          `json:"asset_code"`
	AssetScale     uint32          `json:"asset_scale"`
	Kind           string          `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	ReservedAmount decimal.Decimal `json:"reserved_amount"`
	Available      decimal.Decimal `json:"available"`
}

// BalanceFromDomain converts a domain balance to a response.
func BalanceFromDomain(b *domain.Balance) *BalanceResponse {
	return &BalanceResponse{
		ID:             b.ID,
		AssetCode:      b.AssetCode,
		AssetScale:     b.AssetScale,
		Kind:           string(b.Kind),
		Amount:         b.Amount,
		ReservedAmount: b.ReservedAmount,
		Available:      b.Available(),
	}
}

// TransferResponse represents a two-phase transfer in API responses.
type TransferResponse struct {
	ID                   string          `json:"id"`
	SourceBalanceID      string          `json:"source_balance_id"`
	DestinationBalanceID string          `json:"destination_balance_id"`
	SourceAmount         decimal.Decimal `json:"source_amount"`
	DestinationAmount    decimal.Decimal `json:"destination_amount"`
	CrossAsset           bool            `json:"cross_asset"`
	State                string          `json:"state"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// TransferFromDomain converts a domain pending transfer to a response.
func TransferFromDomain(t *domain.PendingTransfer) *TransferResponse {
	return &TransferResponse{
		ID:                   t.ID,
		SourceBalanceID:      t.SourceBalanceID,
		DestinationBalanceID: t.DestinationBalanceID,
		SourceAmount:         t.SourceAmount,
		DestinationAmount:    t.DestinationAmount,
		CrossAsset:           t.CrossAsset(),
		State:                string(t.State),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// TransferRecordResponse represents a journal entry in API responses.
type TransferRecordResponse struct {
	ID                   string          `json:"id"`
	SourceBalanceID      string          `json:"source_balance_id"`
	DestinationBalanceID string          `json:"destination_balance_id"`
	Amount               decimal.Decimal `json:"amount"`
	PendingTransferID    *string         `json:"pending_transfer_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// TransferRecordsFromDomain converts journal entries to responses.
func TransferRecordsFromDomain(records []*domain.TransferRecord) []*TransferRecordResponse {
	result := make([]*TransferRecordResponse, len(records))
	for i, rec := range records {
		result[i] = &TransferRecordResponse{
			ID:                   rec.ID,
			SourceBalanceID:      rec.SourceBalanceID,
			DestinationBalanceID: rec.DestinationBalanceID,
			Amount:               rec.Amount,
			PendingTransferID:    rec.PendingTransferID,
			CreatedAt:            rec.CreatedAt,
		}
	}
	return result
}

// AssetReconciliationResponse is one asset's conservation check result.
type AssetReconciliationResponse struct {
	AssetCode    string          `json:"asset_code"`
	AssetScale   uint32          `json:"asset_scale"`
	Settlement   decimal.Decimal `json:"settlement"`
	AccountsSum  decimal.Decimal `json:"accounts_sum"`
	Liquidity    decimal.Decimal `json:"liquidity"`
	Difference   decimal.Decimal `json:"difference"`
	IsReconciled bool            `json:"is_reconciled"`
}

// ConsistencyResponse is the ledger-wide conservation report.
type ConsistencyResponse struct {
	Status     string                         `json:"status"`
	Consistent bool                           `json:"consistent"`
	Assets     []*AssetReconciliationResponse `json:"assets"`
	CheckedAt  time.Time                      `json:"checked_at"`
}

// ConsistencyFromResults builds the report response.
func ConsistencyFromResults(results []*usecase.AssetReconciliationResult, checkedAt time.Time) *ConsistencyResponse {
	resp := &ConsistencyResponse{
		Status:     "consistent",
		Consistent: true,
		Assets:     make([]*AssetReconciliationResponse, len(results)),
		CheckedAt:  checkedAt,
	}
	for i, res := range results {
		resp.Assets[i] = &AssetReconciliationResponse{
			AssetCode:    res.AssetCode,
			AssetScale:   res.AssetScale,
			Settlement:   res.Settlement,
			AccountsSum:  res.AccountsSum,
			Liquidity:    res.Liquidity,
			Difference:   res.Difference,
			IsReconciled: res.IsReconciled,
		}
		if !res.IsReconciled {
			resp.Status = "inconsistent"
			resp.Consistent = false
		}
	}

	return resp
}

// AddressResponse is an account's resolved ILP address.
type AddressResponse struct {
	AccountID  string `json:"account_id"`
	ILPAddress string `json:"ilp_address"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
