package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

// AssetRepository implements usecase.AssetRepository.
type AssetRepository struct {
	pool *pgxpool.Pool
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{pool: pool}
}

const createAsset = `
INSERT INTO assets (code, scale, liquidity_balance_id, settlement_balance_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code, scale) DO NOTHING
`

// Create registers an asset. Re-registering an existing (code, scale) is a
// no-op, so concurrent first uses of an asset both succeed.
func (r *AssetRepository) Create(ctx context.Context, tx usecase.Transaction, asset *domain.Asset) error {
	_, err := tx.(*Tx).PgxTx().Exec(ctx, createAsset,
		asset.Code,
		int32(asset.Scale),
		asset.LiquidityBalanceID,
		asset.SettlementBalanceID,
	)

	return err
}

const getAsset = `
SELECT code, scale, liquidity_balance_id, settlement_balance_id
FROM assets
WHERE code = $1 AND scale = $2
`

// Get retrieves a registered asset.
func (r *AssetRepository) Get(ctx context.Context, code string, scale uint32) (*domain.Asset, error) {
	asset, err := scanAsset(r.pool.QueryRow(ctx, getAsset, code, int32(scale)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownLiquidityAccount
		}

		return nil, err
	}

	return asset, nil
}

const listAssets = `
SELECT code, scale, liquidity_balance_id, settlement_balance_id
FROM assets
ORDER BY code, scale
`

// List returns all registered assets.
func (r *AssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	rows, err := r.pool.Query(ctx, listAssets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var (
		asset domain.Asset
		scale int32
	)

	err := row.Scan(&asset.Code, &scale, &asset.LiquidityBalanceID, &asset.SettlementBalanceID)
	if err != nil {
		return nil, err
	}
	asset.Scale = uint32(scale)

	return &asset, nil
}
