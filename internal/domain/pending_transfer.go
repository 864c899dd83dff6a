package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingTransferState is the lifecycle state of a two-phase transfer.
// Pending is the only non-terminal state.
type PendingTransferState string

const (
	PendingTransferStatePending   PendingTransferState = "pending"
	PendingTransferStateCommitted PendingTransferState = "committed"
	PendingTransferStateRejected  PendingTransferState = "rejected"
)

// PendingTransfer is a staged two-phase fund movement. The source amount is
// reserved at creation; commit applies the debits and credits, rollback
// releases the reservation. For cross-asset transfers the movement is two
// coupled legs routed through each asset's liquidity balance, finalized or
// reversed together.
type PendingTransfer struct {
	ID                     string
	SourceBalanceID        string
	DestinationBalanceID   string
	SourceAmount           decimal.Decimal
	DestinationAmount      decimal.Decimal
	SourceLiquidityID      *string
	DestinationLiquidityID *string
	State                  PendingTransferState
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CrossAsset reports whether the transfer is routed through liquidity
// balances of two different assets.
func (t *PendingTransfer) CrossAsset() bool {
	return t.SourceLiquidityID != nil && t.DestinationLiquidityID != nil
}

// Finalized reports whether the transfer reached a terminal state.
func (t *PendingTransfer) Finalized() bool {
	return t.State != PendingTransferStatePending
}

// FinalizedError returns the "already" error for a terminal state, or nil
// while the transfer is still pending.
func (t *PendingTransfer) FinalizedError() error {
	switch t.State {
	case PendingTransferStateCommitted:
		return ErrTransferAlreadyCommitted
	case PendingTransferStateRejected:
		return ErrTransferAlreadyRejected
	default:
		return nil
	}
}
