package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// WithdrawalRepository implements usecase.WithdrawalRepository.
type WithdrawalRepository struct {
	pool *pgxpool.Pool
}

// NewWithdrawalRepository creates a new WithdrawalRepository.
func NewWithdrawalRepository(pool *pgxpool.Pool) *WithdrawalRepository {
	return &WithdrawalRepository{pool: pool}
}

const createWithdrawal = `
INSERT INTO withdrawals (id, balance_id, amount, created_at)
VALUES ($1, $2, $3, $4)
`

// Create records a withdrawal. A replayed id fails with
// domain.ErrWithdrawalExists.
func (r *WithdrawalRepository) Create(ctx context.Context, tx usecase.Transaction, withdrawal *domain.Withdrawal) error {
	_, err := tx.(*Tx).PgxTx().Exec(ctx, createWithdrawal,
		withdrawal.ID,
		withdrawal.BalanceID,
		decimalToNumeric(withdrawal.Amount),
		timeToPgTimestamptz(withdrawal.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrWithdrawalExists
	}

	return err
}
