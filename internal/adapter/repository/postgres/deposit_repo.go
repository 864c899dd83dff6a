package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// DepositRepository implements usecase.DepositRepository.
type DepositRepository struct {
	pool *pgxpool.Pool
}

// NewDepositRepository creates a new DepositRepository.
func NewDepositRepository(pool *pgxpool.Pool) *DepositRepository {
	return &DepositRepository{pool: pool}
}

const createDeposit = `
INSERT INTO deposits (id, balance_id, amount, created_at)
VALUES ($1, $2, $3, $4)
`

// Create records a deposit. The caller-supplied id is the primary key, so a
// replayed deposit fails with domain.ErrDepositExists.
func (r *DepositRepository) Create(ctx context.Context, tx usecase.Transaction, deposit *domain.Deposit) error {
	_, err := tx.(*Tx).PgxTx().Exec(ctx, createDeposit,
		deposit.ID,
		deposit.BalanceID,
		decimalToNumeric(deposit.Amount),
		timeToPgTimestamptz(deposit.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDepositExists
	}

	return err
}
