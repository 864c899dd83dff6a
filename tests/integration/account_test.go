package integration

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/ilpledger/internal/adapter/http/dto"
)

func TestAccountLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := newTestEnv(t)
	defer env.close()

	t.Run("create and get account", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/v1/accounts/", dto.CreateAccountRequest{
			ID:             "alice",
			AssetCode:      "USD",
			AssetScale:     2,
			IncomingTokens: []string{"alice-secret"},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = env.doJSON(t, http.MethodGet, "/api/v1/accounts/alice", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("duplicate account id rejected", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/v1/accounts/", dto.CreateAccountRequest{
			ID:         "alice",
			AssetCode:  "USD",
			AssetScale: 2,
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("deposit and withdraw move the balance", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/v1/accounts/alice/deposit", dto.DepositRequest{
			DepositID: "dep-1",
			Amount:    decimal.RequireFromString("100"),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		if got := env.available(t, "alice"); !got.Equal(decimal.RequireFromString("100")) {
			t.Fatalf("expected available 100, got %s", got)
		}

		rec = env.doJSON(t, http.MethodPost, "/api/v1/accounts/alice/withdraw", dto.WithdrawRequest{
			WithdrawalID: "wd-1",
			Amount:       decimal.RequireFromString("30"),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		if got := env.available(t, "alice"); !got.Equal(decimal.RequireFromString("70")) {
			t.Fatalf("expected available 70, got %s", got)
		}
	})

	t.Run("repeated deposit id is rejected", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/v1/accounts/alice/deposit", dto.DepositRequest{
			DepositID: "dep-1",
			Amount:    decimal.RequireFromString("100"),
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}

		// Balance unchanged.
		if got := env.available(t, "alice"); !got.Equal(decimal.RequireFromString("70")) {
			t.Fatalf("expected available 70, got %s", got)
		}
	})

	t.Run("withdraw beyond balance rejected", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodPost, "/api/v1/accounts/alice/withdraw", dto.WithdrawRequest{
			WithdrawalID: "wd-big",
			Amount:       decimal.RequireFromString("1000"),
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("sub-account inherits the parent's asset", func(t *testing.T) {
		super := "alice"
		rec := env.doJSON(t, http.MethodPost, "/api/v1/accounts/", dto.CreateAccountRequest{
			ID:             "alice.shop",
			AssetCode:      "USD",
			AssetScale:     2,
			SuperAccountID: &super,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		// Mismatched asset is rejected.
		rec = env.doJSON(t, http.MethodPost, "/api/v1/accounts/", dto.CreateAccountRequest{
			ID:             "alice.eur",
			AssetCode:      "EUR",
			AssetScale:     2,
			SuperAccountID: &super,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("idempotency key replays the first response", func(t *testing.T) {
		payload := dto.CreateAccountRequest{
			ID:         "idem",
			AssetCode:  "USD",
			AssetScale: 2,
		}

		first := env.doJSONWithKey(t, http.MethodPost, "/api/v1/accounts/", payload, "create-idem")
		if first.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
		}

		// Same key replays the stored body instead of conflicting.
		second := env.doJSONWithKey(t, http.MethodPost, "/api/v1/accounts/", payload, "create-idem")
		if second.Header().Get("X-Idempotency-Replay") != "true" {
			t.Fatalf("expected replayed response, got %d: %s", second.Code, second.Body.String())
		}
	})

	t.Run("address resolution", func(t *testing.T) {
		rec := env.doJSON(t, http.MethodGet, "/api/v1/accounts/alice/address", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}
