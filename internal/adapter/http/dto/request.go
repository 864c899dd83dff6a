package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// HTTPOutgoing configures the peer endpoint for an account's outgoing
// packets.
type HTTPOutgoing struct {
	AuthToken string `json:"auth_token"`
	Endpoint  string `json:"endpoint"`
}

func (o *HTTPOutgoing) toDomain() *domain.HTTPOutgoing {
	if o == nil {
		return nil
	}
	return &domain.HTTPOutgoing{
		AuthToken: o.AuthToken,
		Endpoint:  o.Endpoint,
	}
}

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	ID               string        `json:"id,omitempty"`
	AssetCode        string        `json:"asset_code"`
	AssetScale       uint32        `json:"asset_scale"`
	Disabled         bool          `json:"disabled,omitempty"`
	MaxPacketAmount  *uint64       `json:"max_packet_amount,omitempty"`
	SuperAccountID   *string       `json:"super_account_id,omitempty"`
	IncomingTokens   []string      `json:"incoming_tokens,omitempty"`
	Outgoing         *HTTPOutgoing `json:"outgoing,omitempty"`
	StaticILPAddress string        `json:"static_ilp_address,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput() usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		ID:               r.ID,
		AssetCode:        r.AssetCode,
		AssetScale:       r.AssetScale,
		Disabled:         r.Disabled,
		MaxPacketAmount:  r.MaxPacketAmount,
		SuperAccountID:   r.SuperAccountID,
		IncomingTokens:   r.IncomingTokens,
		Outgoing:         r.Outgoing.toDomain(),
		StaticILPAddress: r.StaticILPAddress,
	}
}

// UpdateAccountRequest represents a partial account update. Absent fields
// are left unchanged.
type UpdateAccountRequest struct {
	Disabled         *bool         `json:"disabled,omitempty"`
	MaxPacketAmount  *uint64       `json:"max_packet_amount,omitempty"`
	IncomingTokens   *[]string     `json:"incoming_tokens,omitempty"`
	Outgoing         *HTTPOutgoing `json:"outgoing,omitempty"`
	StaticILPAddress *string       `json:"static_ilp_address,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateAccountRequest) ToUseCaseInput(id string) usecase.UpdateAccountInput {
	return usecase.UpdateAccountInput{
		ID:               id,
		Disabled:         r.Disabled,
		MaxPacketAmount:  r.MaxPacketAmount,
		IncomingTokens:   r.IncomingTokens,
		Outgoing:         r.Outgoing.toDomain(),
		StaticILPAddress: r.StaticILPAddress,
	}
}

// DepositRequest represents an account-level deposit.
type DepositRequest struct {
	DepositID string          `json:"deposit_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *DepositRequest) ToUseCaseInput(accountID string) usecase.AccountDepositInput {
	return usecase.AccountDepositInput{
		DepositID: r.DepositID,
		AccountID: accountID,
		Amount:    r.Amount,
	}
}

// WithdrawRequest represents an account-level withdrawal.
type WithdrawRequest struct {
	WithdrawalID string          `json:"withdrawal_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *WithdrawRequest) ToUseCaseInput(accountID string) usecase.AccountWithdrawInput {
	return usecase.AccountWithdrawInput{
		WithdrawalID: r.WithdrawalID,
		AccountID:    accountID,
		Amount:       r.Amount,
	}
}

// LiquidityDepositRequest represents an asset liquidity deposit.
type LiquidityDepositRequest struct {
	DepositID string          `json:"deposit_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *LiquidityDepositRequest) ToUseCaseInput(assetCode string, assetScale uint32) usecase.DepositLiquidityInput {
	return usecase.DepositLiquidityInput{
		DepositID:  r.DepositID,
		AssetCode:  assetCode,
		AssetScale: assetScale,
		Amount:     r.Amount,
	}
}

// LiquidityWithdrawRequest represents an asset liquidity withdrawal.
type LiquidityWithdrawRequest struct {
	WithdrawalID string          `json:"withdrawal_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *LiquidityWithdrawRequest) ToUseCaseInput(assetCode string, assetScale uint32) usecase.WithdrawLiquidityInput {
	return usecase.WithdrawLiquidityInput{
		WithdrawalID: r.WithdrawalID,
		AssetCode:    assetCode,
		AssetScale:   assetScale,
		Amount:       r.Amount,
	}
}

// CreateTransferRequest represents a request to stage a two-phase transfer
// between two accounts.
type CreateTransferRequest struct {
	SourceAccountID      string           `json:"source_account_id"`
	DestinationAccountID string           `json:"destination_account_id"`
	SourceAmount         decimal.Decimal  `json:"source_amount"`
	DestinationAmount    *decimal.Decimal `json:"destination_amount,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransferRequest) ToUseCaseInput() usecase.AccountTransferInput {
	return usecase.AccountTransferInput{
		SourceAccountID:      r.SourceAccountID,
		DestinationAccountID: r.DestinationAccountID,
		SourceAmount:         r.SourceAmount,
		DestinationAmount:    r.DestinationAmount,
	}
}

// CreditRequest is the shared body of the credit operations.
type CreditRequest struct {
	AccountID    string          `json:"account_id"`
	SubAccountID string          `json:"sub_account_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *CreditRequest) ToUseCaseInput() usecase.CreditInput {
	return usecase.CreditInput{
		AccountID:    r.AccountID,
		SubAccountID: r.SubAccountID,
		Amount:       r.Amount,
	}
}

// ExtendCreditRequest represents a credit extension.
type ExtendCreditRequest struct {
	CreditRequest
	AutoApply bool `json:"auto_apply,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ExtendCreditRequest) ToUseCaseInput() usecase.ExtendCreditInput {
	return usecase.ExtendCreditInput{
		CreditInput: r.CreditRequest.ToUseCaseInput(),
		AutoApply:   r.AutoApply,
	}
}

// SettleDebtRequest represents a debt settlement.
type SettleDebtRequest struct {
	CreditRequest
	Revolve *bool `json:"revolve,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *SettleDebtRequest) ToUseCaseInput() usecase.SettleDebtInput {
	return usecase.SettleDebtInput{
		CreditInput: r.CreditRequest.ToUseCaseInput(),
		Revolve:     r.Revolve,
	}
}
