package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deposit is the idempotency record of a deposit. The caller-supplied id is
// the primary key; inserting it twice is how a replay is detected.
type Deposit struct {
	ID        string
	BalanceID string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Withdrawal is the idempotency record of a withdrawal.
type Withdrawal struct {
	ID        string
	BalanceID string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// TransferRecord is a journal entry for one applied elementary transfer.
// Records are written in the same transaction that moves the funds.
type TransferRecord struct {
	ID                   string
	SourceBalanceID      string
	DestinationBalanceID string
	Amount               decimal.Decimal
	PendingTransferID    *string
	CreatedAt            time.Time
}
