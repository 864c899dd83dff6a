package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// TransferLogRepository implements usecase.TransferLogRepository.
type TransferLogRepository struct {
	pool *pgxpool.Pool
}

// NewTransferLogRepository creates a new TransferLogRepository.
func NewTransferLogRepository(pool *pgxpool.Pool) *TransferLogRepository {
	return &TransferLogRepository{pool: pool}
}

const createTransferRecord = `
INSERT INTO ledger_transfers (id, source_balance_id, destination_balance_id, amount, pending_transfer_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

// Create journals an applied elementary transfer. Called inside the same
// transaction that moved the funds.
func (r *TransferLogRepository) Create(ctx context.Context, tx usecase.Transaction, record *domain.TransferRecord) error {
	_, err := tx.(*Tx).PgxTx().Exec(ctx, createTransferRecord,
		record.ID,
		record.SourceBalanceID,
		record.DestinationBalanceID,
		decimalToNumeric(record.Amount),
		textOrNil(record.PendingTransferID),
		timeToPgTimestamptz(record.CreatedAt),
	)

	return err
}

const listTransferRecordsByBalance = `
SELECT id, source_balance_id, destination_balance_id, amount, pending_transfer_id, created_at
FROM ledger_transfers
WHERE source_balance_id = $1 OR destination_balance_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`

// ListByBalance returns the journal entries touching a balance, newest first.
func (r *TransferLogRepository) ListByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error) {
	rows, err := r.pool.Query(ctx, listTransferRecordsByBalance, balanceID, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.TransferRecord, 0, limit)
	for rows.Next() {
		record, err := scanTransferRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func scanTransferRecord(row pgx.Row) (*domain.TransferRecord, error) {
	var (
		record          domain.TransferRecord
		amount          pgtype.Numeric
		pendingTransfer pgtype.Text
		createdAt       pgtype.Timestamptz
	)

	err := row.Scan(
		&record.ID,
		&record.SourceBalanceID,
		&record.DestinationBalanceID,
		&amount,
		&pendingTransfer,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	record.Amount = numericToDecimal(amount)
	record.PendingTransferID = textPtr(pendingTransfer)
	record.CreatedAt = createdAt.Time

	return &record, nil
}
