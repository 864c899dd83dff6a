package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// PendingTransferRepository implements usecase.PendingTransferRepository.
type PendingTransferRepository struct {
	pool *pgxpool.Pool
}

// NewPendingTransferRepository creates a new PendingTransferRepository.
func NewPendingTransferRepository(pool *pgxpool.Pool) *PendingTransferRepository {
	return &PendingTransferRepository{pool: pool}
}

const pendingTransferColumns = `
id, source_balance_id, destination_balance_id, source_amount, destination_amount,
source_liquidity_id, destination_liquidity_id, state, created_at, updated_at
`

const createPendingTransfer = `
INSERT INTO pending_transfers (` + pendingTransferColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Create stages a two-phase transfer.
func (r *PendingTransferRepository) Create(ctx context.Context, tx usecase.Transaction, transfer *domain.PendingTransfer) error {
	_, err := tx.(*Tx).PgxTx().Exec(ctx, createPendingTransfer,
		transfer.ID,
		transfer.SourceBalanceID,
		transfer.DestinationBalanceID,
		decimalToNumeric(transfer.SourceAmount),
		decimalToNumeric(transfer.DestinationAmount),
		textOrNil(transfer.SourceLiquidityID),
		textOrNil(transfer.DestinationLiquidityID),
		string(transfer.State),
		timeToPgTimestamptz(transfer.CreatedAt),
		timeToPgTimestamptz(transfer.UpdatedAt),
	)

	return err
}

const getPendingTransfer = `
SELECT ` + pendingTransferColumns + ` FROM pending_transfers WHERE id = $1
`

// GetByID retrieves a pending transfer without locking it.
func (r *PendingTransferRepository) GetByID(ctx context.Context, id string) (*domain.PendingTransfer, error) {
	return scanPendingTransfer(r.pool.QueryRow(ctx, getPendingTransfer, id))
}

const getPendingTransferForUpdate = getPendingTransfer + ` FOR UPDATE`

// GetByIDForUpdate retrieves a pending transfer under a row lock. Racing
// finalizers serialize on the lock, so only the first one sees pending state.
func (r *PendingTransferRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.PendingTransfer, error) {
	return scanPendingTransfer(tx.(*Tx).PgxTx().QueryRow(ctx, getPendingTransferForUpdate, id))
}

const updatePendingTransferState = `
UPDATE pending_transfers SET state = $2, updated_at = $3 WHERE id = $1
`

// UpdateState moves a pending transfer to a terminal state.
func (r *PendingTransferRepository) UpdateState(ctx context.Context, tx usecase.Transaction, id string, state domain.PendingTransferState, updatedAt time.Time) error {
	tag, err := tx.(*Tx).PgxTx().Exec(ctx, updatePendingTransferState,
		id, string(state), timeToPgTimestamptz(updatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownTransfer
	}

	return nil
}

func scanPendingTransfer(row pgx.Row) (*domain.PendingTransfer, error) {
	var (
		transfer          domain.PendingTransfer
		sourceAmount      pgtype.Numeric
		destinationAmount pgtype.Numeric
		sourceLiquidity   pgtype.Text
		destLiquidity     pgtype.Text
		state             string
		createdAt         pgtype.Timestamptz
		updatedAt         pgtype.Timestamptz
	)

	err := row.Scan(
		&transfer.ID,
		&transfer.SourceBalanceID,
		&transfer.DestinationBalanceID,
		&sourceAmount,
		&destinationAmount,
		&sourceLiquidity,
		&destLiquidity,
		&state,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownTransfer
		}

		return nil, err
	}

	transfer.SourceAmount = numericToDecimal(sourceAmount)
	transfer.DestinationAmount = numericToDecimal(destinationAmount)
	transfer.SourceLiquidityID = textPtr(sourceLiquidity)
	transfer.DestinationLiquidityID = textPtr(destLiquidity)
	transfer.State = domain.PendingTransferState(state)
	transfer.CreatedAt = createdAt.Time
	transfer.UpdatedAt = updatedAt.Time

	return &transfer, nil
}
