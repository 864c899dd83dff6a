package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// BalanceRepository implements usecase.BalanceRepository.
type BalanceRepository struct {
	pool *pgxpool.Pool
}

// NewBalanceRepository creates a new BalanceRepository.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

const createBalance = `
INSERT INTO balances (id, asset_code, asset_scale, kind, amount, reserved_amount)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`

// Create inserts a balance. Re-inserting an existing id is a no-op, which
// makes lazy creation with derived ids safe under concurrency.
func (r *BalanceRepository) Create(ctx context.Context, tx usecase.Transaction, balance *domain.Balance) error {
	pgxTx := tx.(*Tx).PgxTx()

	_, err := pgxTx.Exec(ctx, createBalance,
		balance.ID,
		balance.AssetCode,
		int32(balance.AssetScale),
		string(balance.Kind),
		decimalToNumeric(balance.Amount),
		decimalToNumeric(balance.ReservedAmount),
	)

	return err
}

const getBalance = `
SELECT id, asset_code, asset_scale, kind, amount, reserved_amount
FROM balances
WHERE id = $1
`

// GetByID retrieves a balance by ID.
func (r *BalanceRepository) GetByID(ctx context.Context, id string) (*domain.Balance, error) {
	balance, err := scanBalance(r.pool.QueryRow(ctx, getBalance, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownBalance
		}

		return nil, err
	}

	return balance, nil
}

const getBalancesForUpdate = `
SELECT id, asset_code, asset_scale, kind, amount, reserved_amount
FROM balances
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE
`

// GetByIDsForUpdate locks and retrieves balances. The caller passes ids in
// sorted order; the query locks rows in the same order to keep concurrent
// batches deadlock-free. Missing ids are simply absent from the result.
func (r *BalanceRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Balance, error) {
	pgxTx := tx.(*Tx).PgxTx()

	rows, err := pgxTx.Query(ctx, getBalancesForUpdate, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]*domain.Balance, 0, len(ids))
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}

	return balances, rows.Err()
}

const updateBalanceAmounts = `
UPDATE balances
SET amount = $2, reserved_amount = $3
WHERE id = $1
`

// UpdateAmounts writes both amounts of a balance.
func (r *BalanceRepository) UpdateAmounts(ctx context.Context, tx usecase.Transaction, id string, amount, reservedAmount decimal.Decimal) error {
	pgxTx := tx.(*Tx).PgxTx()

	tag, err := pgxTx.Exec(ctx, updateBalanceAmounts, id, decimalToNumeric(amount), decimalToNumeric(reservedAmount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownBalance
	}

	return nil
}

const sumBalancesByKind = `
SELECT COALESCE(SUM(amount), 0)
FROM balances
WHERE asset_code = $1 AND asset_scale = $2 AND kind = $3
`

// SumByKind totals the amounts of all balances of one kind for an asset.
func (r *BalanceRepository) SumByKind(ctx context.Context, assetCode string, assetScale uint32, kind domain.BalanceKind) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := r.pool.QueryRow(ctx, sumBalancesByKind, assetCode, int32(assetScale), string(kind)).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(sum), nil
}

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	var (
		balance  domain.Balance
		scale    int32
		kind     string
		amount   pgtype.Numeric
		reserved pgtype.Numeric
	)
	err := row.Scan(&balance.ID, &balance.AssetCode, &scale, &kind, &amount, &reserved)
	if err != nil {
		return nil, err
	}

	balance.AssetScale = uint32(scale)
	balance.Kind = domain.BalanceKind(kind)
	balance.Amount = numericToDecimal(amount)
	balance.ReservedAmount = numericToDecimal(reserved)

	return &balance, nil
}
