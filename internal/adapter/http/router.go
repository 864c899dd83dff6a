package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iho/ilpledger/internal/adapter/http/handler"
	"github.com/iho/ilpledger/internal/adapter/http/middleware"
	"github.com/iho/ilpledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	AccountHandler   *handler.AccountHandler
	TransferHandler  *handler.TransferHandler
	LiquidityHandler *handler.LiquidityHandler
	CreditHandler    *handler.CreditHandler
	LedgerHandler    *handler.LedgerHandler
	HealthHandler    *handler.HealthHandler

	Logging     *middleware.LoggingMiddleware
	Metrics     *middleware.MetricsMiddleware
	RateLimiter *middleware.RateLimiter
	Auth        *middleware.TokenAuthMiddleware

	IdempotencyStore usecase.IdempotencyStore
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if cfg.Logging != nil {
		r.Use(cfg.Logging.Wrap)
	}
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health and metrics endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Wrap)
		}

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore)
			r.Use(idempotencyMiddleware.Wrap)
		}

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", cfg.AccountHandler.Create)
			r.Get("/", cfg.AccountHandler.List)
			r.Get("/{id}", cfg.AccountHandler.Get)
			r.Put("/{id}", cfg.AccountHandler.Update)
			r.Get("/{id}/balance", cfg.AccountHandler.GetBalance)
			r.Get("/{id}/address", cfg.AccountHandler.GetAddress)
			r.Post("/{id}/deposit", cfg.AccountHandler.Deposit)
			r.Post("/{id}/withdraw", cfg.AccountHandler.Withdraw)
			r.Get("/{id}/transfers", cfg.TransferHandler.ListByAccount)
		})

		// Asset liquidity
		r.Route("/assets/{code}/{scale}", func(r chi.Router) {
			r.Get("/liquidity", cfg.LiquidityHandler.GetLiquidity)
			r.Get("/settlement", cfg.LiquidityHandler.GetSettlement)
			r.Post("/liquidity/deposit", cfg.LiquidityHandler.Deposit)
			r.Post("/liquidity/withdraw", cfg.LiquidityHandler.Withdraw)
		})

		// Two-phase transfers
		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", cfg.TransferHandler.Create)
			r.Get("/{id}", cfg.TransferHandler.Get)
			r.Post("/{id}/commit", cfg.TransferHandler.Commit)
			r.Post("/{id}/rollback", cfg.TransferHandler.Rollback)
		})

		// Credit lines
		r.Route("/credit", func(r chi.Router) {
			r.Post("/extend", cfg.CreditHandler.Extend)
			r.Post("/utilize", cfg.CreditHandler.Utilize)
			r.Post("/revoke", cfg.CreditHandler.Revoke)
			r.Post("/settle", cfg.CreditHandler.Settle)
		})

		// Ledger-wide checks
		r.Get("/ledger/consistency", cfg.LedgerHandler.CheckConsistency)
	})

	return r
}
