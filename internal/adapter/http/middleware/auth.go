package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/iho/ilpledger/internal/domain"
	"github.com/iho/ilpledger/internal/infrastructure/metrics"
)

// ContextKey is the type for context keys.
type ContextKey string

// AccountContextKey is the context key for the authenticated account.
const AccountContextKey ContextKey = "account"

// AccountResolver resolves an incoming auth token to its account.
type AccountResolver interface {
	GetAccountByToken(ctx context.Context, token string) (*domain.Account, error)
}

// TokenAuthMiddleware authenticates requests by bearer token. A token is
// either the admin token or one of an account's incoming auth tokens.
type TokenAuthMiddleware struct {
	resolver   AccountResolver
	adminToken string
	metrics    *metrics.Metrics
}

// NewTokenAuthMiddleware creates a new TokenAuthMiddleware.
func NewTokenAuthMiddleware(resolver AccountResolver, adminToken string, m *metrics.Metrics) *TokenAuthMiddleware {
	return &TokenAuthMiddleware{
		resolver:   resolver,
		adminToken: adminToken,
		metrics:    m,
	}
}

// Wrap wraps an http.Handler with bearer token authentication.
func (m *TokenAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.count("missing")
			http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)

			return
		}

		if m.adminToken != "" && token == m.adminToken {
			m.count("admin")
			next.ServeHTTP(w, r)

			return
		}

		account, err := m.resolver.GetAccountByToken(r.Context(), token)
		if err != nil {
			m.count("rejected")
			http.Error(w, "invalid token", http.StatusUnauthorized)

			return
		}
		if account.Disabled {
			m.count("disabled")
			http.Error(w, "account disabled", http.StatusForbidden)

			return
		}

		m.count("ok")
		ctx := context.WithValue(r.Context(), AccountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *TokenAuthMiddleware) count(status string) {
	if m.metrics != nil {
		m.metrics.AuthAttempts.WithLabelValues(status).Inc()
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// AccountFromContext extracts the authenticated account from context.
func AccountFromContext(ctx context.Context) (*domain.Account, bool) {
	account, ok := ctx.Value(AccountContextKey).(*domain.Account)
	return account, ok
}
