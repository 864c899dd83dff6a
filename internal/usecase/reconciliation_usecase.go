package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/domain"
)

// ReconciliationUseCase verifies per-asset conservation: every unit on an
// account or liquidity balance entered through the settlement balance, so
// for each asset
//
//	settlement = sum(account balances) + liquidity
//
// must hold at all times.
type ReconciliationUseCase struct {
	balanceRepo BalanceRepository
	assetRepo   AssetRepository
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(balanceRepo BalanceRepository, assetRepo AssetRepository) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		balanceRepo: balanceRepo,
		assetRepo:   assetRepo,
	}
}

// AssetReconciliationResult represents the conservation check of one asset.
type AssetReconciliationResult struct {
	AssetCode    string
	AssetScale   uint32
	Settlement   decimal.Decimal
	AccountsSum  decimal.Decimal
	Liquidity    decimal.Decimal
	Difference   decimal.Decimal
	IsReconciled bool
	CheckedAt    time.Time
}

// ReconcileAsset checks conservation for a single asset.
func (uc *ReconciliationUseCase) ReconcileAsset(ctx context.Context, assetCode string, assetScale uint32) (*AssetReconciliationResult, error) {
	settlement, err := uc.balanceRepo.SumByKind(ctx, assetCode, assetScale, domain.BalanceKindSettlement)
	if err != nil {
		return nil, err
	}
	accounts, err := uc.balanceRepo.SumByKind(ctx, assetCode, assetScale, domain.BalanceKindAccount)
	if err != nil {
		return nil, err
	}
	liquidity, err := uc.balanceRepo.SumByKind(ctx, assetCode, assetScale, domain.BalanceKindLiquidity)
	if err != nil {
		return nil, err
	}

	difference := settlement.Sub(accounts.Add(liquidity))

	return &AssetReconciliationResult{
		AssetCode:    assetCode,
		AssetScale:   assetScale,
		Settlement:   settlement,
		AccountsSum:  accounts,
		Liquidity:    liquidity,
		Difference:   difference,
		IsReconciled: difference.IsZero(),
		CheckedAt:    time.Now().UTC(),
	}, nil
}

// ReconcileAllAssets checks conservation for every registered asset.
func (uc *ReconciliationUseCase) ReconcileAllAssets(ctx context.Context) ([]*AssetReconciliationResult, error) {
	assets, err := uc.assetRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*AssetReconciliationResult, 0, len(assets))
	for _, asset := range assets {
		result, err := uc.ReconcileAsset(ctx, asset.Code, asset.Scale)
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile asset %s/%d: %w", asset.Code, asset.Scale, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalAssets      int
	ReconciledAssets int
	Discrepancies    []*AssetReconciliationResult
	CheckedAt        time.Time
}

// GenerateReconciliationReport checks every asset and collects discrepancies.
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllAssets(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		TotalAssets:   len(results),
		Discrepancies: make([]*AssetReconciliationResult, 0),
		CheckedAt:     time.Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledAssets++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	return report, nil
}
