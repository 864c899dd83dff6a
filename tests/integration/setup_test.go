package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	adaptershttp "github.com/iho/ilpledger/internal/adapter/http"
	"github.com/iho/ilpledger/internal/adapter/http/handler"
	"github.com/iho/ilpledger/internal/adapter/http/middleware"
	"github.com/iho/ilpledger/internal/adapter/repository/postgres"
	redisrepo "github.com/iho/ilpledger/internal/adapter/repository/redis"
	"github.com/iho/ilpledger/internal/domain"
	infraredis "github.com/iho/ilpledger/internal/infrastructure/redis"
	"github.com/iho/ilpledger/internal/usecase"
	"github.com/iho/ilpledger/tests/testutil"
)

const testBalanceSecret = "integration-test-secret"

type testEnv struct {
	db     *testutil.TestDB
	redis  *redis.Client
	router http.Handler

	accountUC        *usecase.AccountUseCase
	transferUC       *usecase.TransferUseCase
	creditUC         *usecase.CreditUseCase
	reconciliationUC *usecase.ReconciliationUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	testDB.TruncateAll(ctx)

	pool := testDB.Pool
	txManager := postgres.NewTxManager(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	balanceRepo := postgres.NewBalanceRepository(pool)
	assetRepo := postgres.NewAssetRepository(pool)
	pendingRepo := postgres.NewPendingTransferRepository(pool)
	depositRepo := postgres.NewDepositRepository(pool)
	withdrawalRepo := postgres.NewWithdrawalRepository(pool)
	transferLogRepo := postgres.NewTransferLogRepository(pool)
	idGen := postgres.NewULIDGenerator()
	retrier := postgres.NewRetrier()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	redisClient, err := infraredis.NewClient(ctx, redisURL)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	cache := redisrepo.NewCache(redisClient)
	idempotencyStore := redisrepo.NewIdempotencyStore(redisClient)

	transferUC := usecase.NewTransferUseCase(
		txManager,
		balanceRepo,
		pendingRepo,
		depositRepo,
		withdrawalRepo,
		transferLogRepo,
		idGen,
		retrier,
		nil,
		[]byte(testBalanceSecret),
	)
	accountUC := usecase.NewAccountUseCase(
		txManager,
		accountRepo,
		balanceRepo,
		assetRepo,
		transferUC,
		idGen,
		cache,
		nil,
		usecase.AccountConfig{
			ILPAddress:    "test.ledger",
			BalanceSecret: []byte(testBalanceSecret),
		},
	)
	creditUC := usecase.NewCreditUseCase(accountRepo, transferUC, nil)
	reconciliationUC := usecase.NewReconciliationUseCase(balanceRepo, assetRepo)

	router := adaptershttp.NewRouter(adaptershttp.RouterConfig{
		AccountHandler:   handler.NewAccountHandler(accountUC),
		TransferHandler:  handler.NewTransferHandler(accountUC, transferUC),
		LiquidityHandler: handler.NewLiquidityHandler(accountUC),
		CreditHandler:    handler.NewCreditHandler(creditUC),
		LedgerHandler:    handler.NewLedgerHandler(reconciliationUC),
		HealthHandler:    handler.NewHealthHandler(pool, redisClient),
		IdempotencyStore: idempotencyStore,
	})

	return &testEnv{
		db:               testDB,
		redis:            redisClient,
		router:           router,
		accountUC:        accountUC,
		transferUC:       transferUC,
		creditUC:         creditUC,
		reconciliationUC: reconciliationUC,
	}
}

func (e *testEnv) close() {
	e.redis.Close()
	e.db.Cleanup()
}

// createAccount makes an account through the use case layer.
func (e *testEnv) createAccount(t *testing.T, id, assetCode string, assetScale uint32, superAccountID *string) *domain.Account {
	t.Helper()

	account, err := e.accountUC.CreateAccount(context.Background(), usecase.CreateAccountInput{
		ID:             id,
		AssetCode:      assetCode,
		AssetScale:     assetScale,
		SuperAccountID: superAccountID,
	})
	if err != nil {
		t.Fatalf("failed to create account %s: %v", id, err)
	}
	return account
}

// fundAccount deposits amount into an account from outside the ledger.
func (e *testEnv) fundAccount(t *testing.T, accountID string, amount decimal.Decimal) {
	t.Helper()

	err := e.accountUC.Deposit(context.Background(), usecase.AccountDepositInput{
		DepositID: testutil.GenerateID(),
		AccountID: accountID,
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("failed to fund account %s: %v", accountID, err)
	}
}

// fundLiquidity deposits amount into an asset's liquidity pool.
func (e *testEnv) fundLiquidity(t *testing.T, assetCode string, assetScale uint32, amount decimal.Decimal) {
	t.Helper()

	err := e.accountUC.DepositLiquidity(context.Background(), usecase.DepositLiquidityInput{
		DepositID:  testutil.GenerateID(),
		AssetCode:  assetCode,
		AssetScale: assetScale,
		Amount:     amount,
	})
	if err != nil {
		t.Fatalf("failed to fund %s/%d liquidity: %v", assetCode, assetScale, err)
	}
}

// available returns an account's available balance.
func (e *testEnv) available(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()

	balance, err := e.accountUC.GetAccountBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("failed to get balance for %s: %v", accountID, err)
	}
	return balance.Available()
}

// liquidity returns an asset's available liquidity.
func (e *testEnv) liquidity(t *testing.T, assetCode string, assetScale uint32) decimal.Decimal {
	t.Helper()

	balance, err := e.accountUC.GetLiquidityBalance(context.Background(), assetCode, assetScale)
	if err != nil {
		t.Fatalf("failed to get %s/%d liquidity: %v", assetCode, assetScale, err)
	}
	return balance.Available()
}

// doJSON sends a JSON request through the router.
func (e *testEnv) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doJSONWithKey(t, method, path, payload, "")
}

// doJSONWithKey sends a JSON request with an idempotency key.
func (e *testEnv) doJSONWithKey(t *testing.T, method, path string, payload any, idempotencyKey string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(middleware.IdempotencyKeyHeader, idempotencyKey)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
