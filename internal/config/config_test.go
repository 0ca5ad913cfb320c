package config

import (
	"testing"
	"time"
)

func TestLoadCollectsSecretsInOrder(t *testing.T) {
	t.Setenv("JWT_SECRET", "primary")
	t.Setenv("NEXTAUTH_SECRET", "secondary")
	t.Setenv("JWT_EXTRA_SECRETS", "old-1, primary ,old-2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"primary", "secondary", "old-1", "old-2"}
	if len(cfg.Auth.Secrets) != len(want) {
		t.Fatalf("secrets = %v, want %v", cfg.Auth.Secrets, want)
	}
	for i := range want {
		if cfg.Auth.Secrets[i] != want[i] {
			t.Fatalf("secrets[%d] = %q, want %q", i, cfg.Auth.Secrets[i], want[i])
		}
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("token ttl = %s, want 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Storage.Driver != "local" {
		t.Fatalf("storage driver = %q, want local", cfg.Storage.Driver)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("NEXTAUTH_SECRET", "")
	t.Setenv("JWT_EXTRA_SECRETS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "primary")
	t.Setenv("STORAGE_DRIVER", "ftp")

	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown storage driver to fail")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("splitList = %v", got)
	}
}
