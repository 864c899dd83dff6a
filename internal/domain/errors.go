package domain

import (
	"errors"
	"fmt"
)

var (
	// Account errors
	ErrUnknownAccount          = errors.New("account not found")
	ErrDuplicateAccountID      = errors.New("account id already exists")
	ErrDuplicateIncomingToken  = errors.New("incoming token already in use")
	ErrUnknownSuperAccount     = errors.New("super-account not found")
	ErrInvalidSuperAccount     = errors.New("account cannot be its own super-account")
	ErrInvalidAsset            = errors.New("asset must match super-account asset")
	ErrUnknownLiquidityAccount = errors.New("asset has no liquidity balance")

	// Transfer errors
	ErrUnknownBalance            = errors.New("balance not found")
	ErrUnknownSourceAccount      = errors.New("source account not found")
	ErrUnknownDestinationAccount = errors.New("destination account not found")
	ErrSameAccounts              = errors.New("source and destination are the same")
	ErrInvalidSourceAmount       = errors.New("source amount must be positive")
	ErrInvalidDestinationAmount  = errors.New("invalid destination amount")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientLiquidity     = errors.New("insufficient liquidity")
	ErrUnknownTransfer           = errors.New("transfer not found")
	ErrTransferAlreadyCommitted  = errors.New("transfer already committed")
	ErrTransferAlreadyRejected   = errors.New("transfer already rejected")

	// Deposit/withdraw errors
	ErrInvalidAmount = errors.New("amount must be positive")

	// Idempotency errors
	ErrDepositExists    = errors.New("deposit already exists")
	ErrWithdrawalExists = errors.New("withdrawal already exists")

	// Credit errors
	ErrUnknownSubAccount   = errors.New("sub-account not found")
	ErrUnrelatedSubAccount = errors.New("account is not an ancestor of sub-account")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrInsufficientDebt    = errors.New("insufficient debt")
)

// BatchError reports the first elementary transfer in a batch that could
// not be applied. No transfer in the batch took effect.
type BatchError struct {
	Err   error
	Index int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("transfer %d failed: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// UnknownBalanceError indicates an account is missing a balance it is
// structurally required to have. It is not a domain condition callers can
// recover from; it means the hierarchy is corrupt.
type UnknownBalanceError struct {
	AccountID string
}

func (e *UnknownBalanceError) Error() string {
	return fmt.Sprintf("account %s is missing an expected balance", e.AccountID)
}
