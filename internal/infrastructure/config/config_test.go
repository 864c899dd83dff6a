package config_test

import (
	"testing"
	"time"

	"github.com/iho/ilpledger/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PEER_ADDRESSES", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}

	if cfg.ILPAddress != "test.ledger" {
		t.Fatalf("expected default ILP address, got %s", cfg.ILPAddress)
	}

	if cfg.BalanceHMACSecret == "" {
		t.Fatalf("expected balance HMAC secret default to be set")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("ILP_ADDRESS", "g.example")
	t.Setenv("BALANCE_HMAC_SECRET", "prod-secret")
	t.Setenv("ADMIN_TOKEN", "top-secret")
	t.Setenv("AUTH_ENABLED", "true")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}

	if cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom redis URL, got %s", cfg.RedisURL)
	}

	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected HTTP port override, got %s", cfg.HTTPPort)
	}

	if cfg.DatabaseTimeout != 45*time.Second {
		t.Fatalf("expected database timeout override, got %s", cfg.DatabaseTimeout)
	}

	if cfg.ILPAddress != "g.example" || cfg.BalanceHMACSecret != "prod-secret" {
		t.Fatalf("expected ledger settings to be set, got address=%s", cfg.ILPAddress)
	}

	if cfg.AdminToken != "top-secret" || !cfg.AuthEnabled {
		t.Fatalf("expected auth settings to be set, got token=%s enabled=%v", cfg.AdminToken, cfg.AuthEnabled)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestParsePeerAddresses(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"single", "alice=g.peers.alice", 1, false},
		{"multiple", "alice=g.peers.alice, bob=g.peers.bob", 2, false},
		{"missing address", "alice=", 0, true},
		{"missing separator", "alice", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{PeerAddresses: tt.value}

			peers, err := cfg.ParsePeerAddresses()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected parse error for %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(peers) != tt.want {
				t.Fatalf("expected %d peers, got %d", tt.want, len(peers))
			}
		})
	}

	cfg := &config.Config{PeerAddresses: "alice=g.peers.alice"}
	peers, err := cfg.ParsePeerAddresses()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peers[0].AccountID != "alice" || peers[0].ILPAddress != "g.peers.alice" {
		t.Fatalf("unexpected peer entry: %+v", peers[0])
	}
}
