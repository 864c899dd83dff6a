package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/adapter/http/handler"
	apimiddleware "github.com/iho/ilpledger/internal/adapter/http/middleware"
	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/usecase"
)

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RateLimiterBlocksExcessRequests(t *testing.T) {
	rl := apimiddleware.NewRateLimiter(1, 1, nil)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.RateLimiter = rl
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "1.2.3.4:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "1.2.3.4:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec2.Code)
	}
}

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	body := `{"asset_code":"USD","asset_scale":2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Router)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	seen := map[string]bool{}
	if err := chi.Walk(chiRoutes, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		seen[method+" "+route] = true
		return nil
	}); err != nil {
		t.Fatalf("walk failed: %v", err)
	}

	expected := []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/accounts/",
		"GET /api/v1/accounts/",
		"GET /api/v1/accounts/{id}",
		"PUT /api/v1/accounts/{id}",
		"GET /api/v1/accounts/{id}/balance",
		"POST /api/v1/accounts/{id}/deposit",
		"POST /api/v1/accounts/{id}/withdraw",
		"GET /api/v1/accounts/{id}/transfers",
		"GET /api/v1/assets/{code}/{scale}/liquidity",
		"POST /api/v1/assets/{code}/{scale}/liquidity/deposit",
		"POST /api/v1/transfers/",
		"POST /api/v1/transfers/{id}/commit",
		"POST /api/v1/transfers/{id}/rollback",
		"POST /api/v1/credit/extend",
		"POST /api/v1/credit/settle",
		"GET /api/v1/ledger/consistency",
	}

	for _, route := range expected {
		if !seen[route] {
			t.Fatalf("expected route %s to be registered", route)
		}
	}
}

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	cfg := RouterConfig{
		AccountHandler:   handler.NewAccountHandler(stubAccountService{}),
		TransferHandler:  handler.NewTransferHandler(stubTransferService{}, stubTransferFinalizer{}),
		LiquidityHandler: handler.NewLiquidityHandler(stubLiquidityService{}),
		CreditHandler:    handler.NewCreditHandler(stubCreditService{}),
		LedgerHandler:    handler.NewLedgerHandler(stubReconciliationService{}),
		HealthHandler:    &handler.HealthHandler{},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

type stubAccountService struct{}

func (stubAccountService) CreateAccount(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error) {
	return &domain.Account{ID: "acc"}, nil
}

func (stubAccountService) UpdateAccount(ctx context.Context, input usecase.UpdateAccountInput) (*domain.Account, error) {
	return &domain.Account{ID: input.ID}, nil
}

func (stubAccountService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return &domain.Account{ID: id}, nil
}

func (stubAccountService) ListAccounts(ctx context.Context, input usecase.ListAccountsInput) ([]*domain.Account, error) {
	return []*domain.Account{}, nil
}

func (stubAccountService) GetAccountBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	return &domain.Balance{ID: "bal"}, nil
}

func (stubAccountService) GetAddress(ctx context.Context, accountID string) (string, error) {
	return "test.ledger." + accountID, nil
}

func (stubAccountService) Deposit(ctx context.Context, input usecase.AccountDepositInput) error {
	return nil
}

func (stubAccountService) Withdraw(ctx context.Context, input usecase.AccountWithdrawInput) error {
	return nil
}

type stubTransferService struct{}

func (stubTransferService) TransferFunds(ctx context.Context, input usecase.AccountTransferInput) (*domain.PendingTransfer, error) {
	return &domain.PendingTransfer{ID: "transfer"}, nil
}

func (stubTransferService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return &domain.Account{ID: id, BalanceID: "bal"}, nil
}

type stubTransferFinalizer struct{}

func (stubTransferFinalizer) CommitTransfer(ctx context.Context, id string) error {
	return nil
}

func (stubTransferFinalizer) RollbackTransfer(ctx context.Context, id string) error {
	return nil
}

func (stubTransferFinalizer) GetTransfer(ctx context.Context, id string) (*domain.PendingTransfer, error) {
	return &domain.PendingTransfer{ID: id}, nil
}

func (stubTransferFinalizer) ListTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]*domain.TransferRecord, error) {
	return []*domain.TransferRecord{}, nil
}

type stubLiquidityService struct{}

func (stubLiquidityService) DepositLiquidity(ctx context.Context, input usecase.DepositLiquidityInput) error {
	return nil
}

func (stubLiquidityService) WithdrawLiquidity(ctx context.Context, input usecase.WithdrawLiquidityInput) error {
	return nil
}

func (stubLiquidityService) GetLiquidityBalance(ctx context.Context, assetCode string, assetScale uint32) (*domain.Balance, error) {
	return &domain.Balance{ID: "liq", Amount: decimal.Zero}, nil
}

func (stubLiquidityService) GetSettlementBalance(ctx context.Context, assetCode string, assetScale uint32) (*domain.Balance, error) {
	return &domain.Balance{ID: "set", Amount: decimal.Zero}, nil
}

type stubCreditService struct{}

func (stubCreditService) ExtendCredit(ctx context.Context, input usecase.ExtendCreditInput) error {
	return nil
}

func (stubCreditService) UtilizeCredit(ctx context.Context, input usecase.CreditInput) error {
	return nil
}

func (stubCreditService) RevokeCredit(ctx context.Context, input usecase.CreditInput) error {
	return nil
}

func (stubCreditService) SettleDebt(ctx context.Context, input usecase.SettleDebtInput) error {
	return nil
}

type stubReconciliationService struct{}

func (stubReconciliationService) ReconcileAllAssets(ctx context.Context) ([]*usecase.AssetReconciliationResult, error) {
	return []*usecase.AssetReconciliationResult{}, nil
}

type stubIdempotencyStore struct {
	checkCalled bool
}

func (s *stubIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	return nil
}
