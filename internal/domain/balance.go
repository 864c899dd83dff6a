package domain

import (
	"github.com/shopspring/decimal"
)

// BalanceKind classifies what a ledger balance represents.
type BalanceKind string

const (
	BalanceKindAccount        BalanceKind = "account"
	BalanceKindLiquidity      BalanceKind = "liquidity"
	BalanceKindSettlement     BalanceKind = "settlement"
	BalanceKindCredit         BalanceKind = "credit"
	BalanceKindCreditExtended BalanceKind = "credit_extended"
	BalanceKindDebt           BalanceKind = "debt"
	BalanceKindLent           BalanceKind = "lent"
)

// DebitNormal reports whether a debit increases the balance. The pooled
// credit-extended and lent balances record totals owed to an account, so
// they grow when debited; all other kinds grow when credited and may never
// go negative.
func (k BalanceKind) DebitNormal() bool {
	return k == BalanceKindCreditExtended || k == BalanceKindLent
}

// Balance is a named non-negative amount in the ledger.
// ReservedAmount tracks funds held by pending two-phase transfers;
// Amount - ReservedAmount is what is available to spend.
type Balance struct {
	ID             string
	AssetCode      string
	AssetScale     uint32
	Kind           BalanceKind
	Amount         decimal.Decimal
	ReservedAmount decimal.Decimal
}

// Available returns the amount not held by pending transfers.
func (b *Balance) Available() decimal.Decimal {
	return b.Amount.Sub(b.ReservedAmount)
}

// CanDebit checks whether amount can be debited without going negative
// or dipping into reserved funds.
func (b *Balance) CanDebit(amount decimal.Decimal) bool {
	return b.Available().GreaterThanOrEqual(amount)
}
