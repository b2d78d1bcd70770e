// Copyright 2025 ChaosChain

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadRequiresStoreURLAndChainRPCURL(t *testing.T) {
	os.Unsetenv("STORE_URL")
	os.Unsetenv("CHAIN_RPC_URL")

	if _, err := Load(); err == nil {
		t.Error("expected error when STORE_URL and CHAIN_RPC_URL are unset")
	}

	os.Setenv("STORE_URL", "postgres://localhost/test")
	defer os.Unsetenv("STORE_URL")
	if _, err := Load(); err == nil {
		t.Error("expected error when CHAIN_RPC_URL is still unset")
	}

	os.Setenv("CHAIN_RPC_URL", "https://example.invalid")
	defer os.Unsetenv("CHAIN_RPC_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreURL != "postgres://localhost/test" {
		t.Errorf("store url = %s", cfg.StoreURL)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	os.Setenv("STORE_URL", "postgres://localhost/test")
	os.Setenv("CHAIN_RPC_URL", "https://example.invalid")
	defer os.Unsetenv("STORE_URL")
	defer os.Unsetenv("CHAIN_RPC_URL")
	os.Unsetenv("RECONCILE_STALENESS_MS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReconcileStaleness != 60*time.Second {
		t.Errorf("reconcile staleness default = %v, want 60s", cfg.ReconcileStaleness)
	}
	if cfg.RetryMaxAttempts != 5 {
		t.Errorf("retry max attempts default = %d, want 5", cfg.RetryMaxAttempts)
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	os.Setenv("STORE_URL", "postgres://localhost/test")
	os.Setenv("CHAIN_RPC_URL", "https://example.invalid")
	os.Setenv("RECONCILE_STALENESS_MS", "5000")
	defer os.Unsetenv("STORE_URL")
	defer os.Unsetenv("CHAIN_RPC_URL")
	defer os.Unsetenv("RECONCILE_STALENESS_MS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReconcileStaleness != 5*time.Second {
		t.Errorf("reconcile staleness = %v, want 5s", cfg.ReconcileStaleness)
	}
}
