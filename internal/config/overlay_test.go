// Copyright 2025 ChaosChain

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("CHAOSCHAIN_TEST_VAR", "resolved-value")
	defer os.Unsetenv("CHAOSCHAIN_TEST_VAR")

	got := substituteEnvVars("value: ${CHAOSCHAIN_TEST_VAR}")
	want := "value: resolved-value"
	if got != want {
		t.Errorf("substituteEnvVars = %q, want %q", got, want)
	}
}

func TestSubstituteEnvVarsUsesDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("CHAOSCHAIN_MISSING_VAR")
	got := substituteEnvVars("value: ${CHAOSCHAIN_MISSING_VAR:-fallback}")
	want := "value: fallback"
	if got != want {
		t.Errorf("substituteEnvVars = %q, want %q", got, want)
	}
}

func TestLoadOverlayAppliesToConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	yamlContent := `
admission:
  max_workflows_total: 42
step:
  timeout: 15s
reconcile:
  staleness: 90s
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write overlay file: %v", err)
	}

	overlay, err := LoadOverlay(path)
	if err != nil {
		t.Fatalf("load overlay: %v", err)
	}

	cfg := &Config{MaxPerType: map[string]int{}}
	overlay.Apply(cfg)

	if cfg.MaxWorkflowsTotal != 42 {
		t.Errorf("max workflows total = %d, want 42", cfg.MaxWorkflowsTotal)
	}
	if cfg.StepTimeout != 15*time.Second {
		t.Errorf("step timeout = %v, want 15s", cfg.StepTimeout)
	}
	if cfg.ReconcileStaleness != 90*time.Second {
		t.Errorf("reconcile staleness = %v, want 90s", cfg.ReconcileStaleness)
	}
}

func TestOverlayApplyNilIsNoOp(t *testing.T) {
	var overlay *Overlay
	cfg := &Config{MaxWorkflowsTotal: 7}
	overlay.Apply(cfg)
	if cfg.MaxWorkflowsTotal != 7 {
		t.Error("nil overlay Apply must not mutate cfg")
	}
}
