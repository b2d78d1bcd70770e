// Copyright 2025 ChaosChain
//
// Configuration loading for the gateway: a flat struct populated from
// os.Getenv with typed helpers, no configuration framework despite
// viper riding along as an indirect dependency of unrelated tooling.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-driven gateway setting.
type Config struct {
	// Admission limits
	MaxWorkflowsTotal int
	MaxPerType        map[string]int

	// Step execution
	StepTimeout       time.Duration
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryCap          time.Duration

	// Reconciliation
	ReconcileStaleness time.Duration
	ReconcileSweep     time.Duration

	// External systems
	StoreURL        string
	ChainRPCURL     string
	StorageEndpoint string
	StorageBucket   string

	// Observability
	LogLevel    string
	ListenAddr  string
	MetricsAddr string

	// Firestore audit trail (optional, disabled by default)
	AuditEnabled    bool
	FirebaseProject string
}

// Default type-level per-type admission caps applied when MAX_PER_TYPE_*
// is not set for a given workflow type.
const defaultPerTypeCap = 100

// Load builds a Config from the process environment, applying defaults
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		MaxWorkflowsTotal: getEnvInt("MAX_WORKFLOWS_TOTAL", 1000),
		MaxPerType: map[string]int{
			"WorkSubmission":  getEnvInt("MAX_PER_TYPE_WORK_SUBMISSION", defaultPerTypeCap),
			"ScoreSubmission": getEnvInt("MAX_PER_TYPE_SCORE_SUBMISSION", defaultPerTypeCap),
			"CloseEpoch":      getEnvInt("MAX_PER_TYPE_CLOSE_EPOCH", defaultPerTypeCap),
		},
		StepTimeout:        getEnvDuration("STEP_TIMEOUT_MS", 30*time.Second, time.Millisecond),
		RetryMaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:  getEnvDuration("RETRY_INITIAL_MS", 1*time.Second, time.Millisecond),
		RetryCap:           getEnvDuration("RETRY_CAP_MS", 30*time.Second, time.Millisecond),
		ReconcileStaleness: getEnvDuration("RECONCILE_STALENESS_MS", 60*time.Second, time.Millisecond),
		ReconcileSweep:     getEnvDuration("RECONCILE_SWEEP_MS", 30*time.Second, time.Millisecond),
		StoreURL:           os.Getenv("STORE_URL"),
		ChainRPCURL:        os.Getenv("CHAIN_RPC_URL"),
		StorageEndpoint:    os.Getenv("STORAGE_ENDPOINT"),
		StorageBucket:      getEnvString("STORAGE_BUCKET", "chaoschain-evidence"),
		LogLevel:           getEnvString("LOG_LEVEL", "info"),
		ListenAddr:         getEnvString("LISTEN_ADDR", ":8080"),
		MetricsAddr:        getEnvString("METRICS_ADDR", ":9090"),
		AuditEnabled:       getEnvBool("FIRESTORE_AUDIT_ENABLED", false),
		FirebaseProject:    os.Getenv("FIREBASE_PROJECT_ID"),
	}

	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("STORE_URL is required")
	}
	if cfg.ChainRPCURL == "" {
		return nil, fmt.Errorf("CHAIN_RPC_URL is required")
	}

	return cfg, nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvDuration reads an integer environment variable expressed in unit
// (e.g. time.Millisecond) and converts it to a time.Duration.
func getEnvDuration(key string, fallback time.Duration, unit time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * unit
}
