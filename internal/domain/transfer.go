package domain

import (
	"github.com/shopspring/decimal"
)

// Transfer is the elementary unit of ledger movement: debit one balance,
// credit another, by a positive amount. Transfers are always submitted as
// part of an ordered batch that applies all-or-nothing.
type Transfer struct {
	SourceBalanceID      string
	DestinationBalanceID string
	Amount               decimal.Decimal
}

// Validate validates a single elementary transfer.
func (t *Transfer) Validate() error {
	if t.SourceBalanceID == t.DestinationBalanceID {
		return ErrSameAccounts
	}
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidSourceAmount
	}
	return nil
}
