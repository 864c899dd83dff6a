package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpAdapter "github.com/iho/ilpledger/internal/adapter/http"
	"github.com/iho/ilpledger/internal/adapter/http/handler"
	"github.com/iho/ilpledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/ilpledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/ilpledger/internal/adapter/repository/redis"
	"github.com/iho/ilpledger/internal/infrastructure/config"
	"github.com/iho/ilpledger/internal/infrastructure/logger"
	"github.com/iho/ilpledger/internal/infrastructure/metrics"
	"github.com/iho/ilpledger/internal/infrastructure/postgres"
	"github.com/iho/ilpledger/internal/infrastructure/redis"
	"github.com/iho/ilpledger/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	peers, err := cfg.ParsePeerAddresses()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid peer addresses")
	}

	ctx := context.Background()

	// Run migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	balanceRepo := postgresRepo.NewBalanceRepository(pool)
	assetRepo := postgresRepo.NewAssetRepository(pool)
	pendingRepo := postgresRepo.NewPendingTransferRepository(pool)
	depositRepo := postgresRepo.NewDepositRepository(pool)
	withdrawalRepo := postgresRepo.NewWithdrawalRepository(pool)
	transferLogRepo := postgresRepo.NewTransferLogRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier()
	cache := redisRepo.NewCache(redisClient)
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)

	// Initialize use cases
	transferUC := usecase.NewTransferUseCase(
		txManager,
		balanceRepo,
		pendingRepo,
		depositRepo,
		withdrawalRepo,
		transferLogRepo,
		idGen,
		retrier,
		m,
		[]byte(cfg.BalanceHMACSecret),
	)
	accountUC := usecase.NewAccountUseCase(
		txManager,
		accountRepo,
		balanceRepo,
		assetRepo,
		transferUC,
		idGen,
		cache,
		m,
		usecase.AccountConfig{
			ILPAddress:    cfg.ILPAddress,
			PeerAddresses: toPeerAddresses(peers),
			BalanceSecret: []byte(cfg.BalanceHMACSecret),
		},
	)
	creditUC := usecase.NewCreditUseCase(accountRepo, transferUC, m)
	reconciliationUC := usecase.NewReconciliationUseCase(balanceRepo, assetRepo)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountUC)
	transferHandler := handler.NewTransferHandler(accountUC, transferUC)
	liquidityHandler := handler.NewLiquidityHandler(accountUC)
	creditHandler := handler.NewCreditHandler(creditUC)
	ledgerHandler := handler.NewLedgerHandler(reconciliationUC)
	healthHandler := handler.NewHealthHandler(pool, redisClient)

	routerCfg := httpAdapter.RouterConfig{
		AccountHandler:   accountHandler,
		TransferHandler:  transferHandler,
		LiquidityHandler: liquidityHandler,
		CreditHandler:    creditHandler,
		LedgerHandler:    ledgerHandler,
		HealthHandler:    healthHandler,
		Logging:          middleware.NewLoggingMiddleware(log),
		Metrics:          middleware.NewMetricsMiddleware(m),
		RateLimiter:      middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m),
		IdempotencyStore: idempotencyStore,
	}
	if cfg.AuthEnabled {
		routerCfg.Auth = middleware.NewTokenAuthMiddleware(accountUC, cfg.AdminToken, m)
	}

	router := httpAdapter.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("ilp_address", cfg.ILPAddress).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func toPeerAddresses(peers []config.PeerAddress) []usecase.PeerAddress {
	result := make([]usecase.PeerAddress, len(peers))
	for i, p := range peers {
		result[i] = usecase.PeerAddress{
			AccountID:  p.AccountID,
			ILPAddress: p.ILPAddress,
		}
	}
	return result
}
