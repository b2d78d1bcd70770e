// Copyright 2025 ChaosChain

package workflow

import (
	"testing"

	"github.com/chaoschain/gateway/internal/guard"
)

func TestTryAdmitRejectsUnfrozenType(t *testing.T) {
	a := NewAdmission(10, nil)
	if err := a.TryAdmit(guard.WorkflowType("BatchAnchor")); err == nil {
		t.Error("expected rejection for a workflow type outside the frozen set")
	}
}

func TestTryAdmitEnforcesGlobalCap(t *testing.T) {
	a := NewAdmission(1, nil)
	if err := a.TryAdmit(guard.WorkSubmission); err != nil {
		t.Fatalf("first admission should succeed: %v", err)
	}
	if err := a.TryAdmit(guard.ScoreSubmission); err == nil {
		t.Error("expected second admission to be rejected by the global cap")
	}
}

func TestTryAdmitEnforcesPerTypeCap(t *testing.T) {
	a := NewAdmission(10, map[string]int{"WorkSubmission": 1})
	if err := a.TryAdmit(guard.WorkSubmission); err != nil {
		t.Fatalf("first admission should succeed: %v", err)
	}
	if err := a.TryAdmit(guard.WorkSubmission); err == nil {
		t.Error("expected second WorkSubmission admission to be rejected by the per-type cap")
	}
	// A different type under the same global budget should still be admitted.
	if err := a.TryAdmit(guard.CloseEpoch); err != nil {
		t.Errorf("unrelated type should not be blocked by WorkSubmission's cap: %v", err)
	}
}

func TestReleaseFreesSlotForReadmission(t *testing.T) {
	a := NewAdmission(1, nil)
	if err := a.TryAdmit(guard.WorkSubmission); err != nil {
		t.Fatalf("first admission: %v", err)
	}
	a.Release(guard.WorkSubmission)
	if err := a.TryAdmit(guard.ScoreSubmission); err != nil {
		t.Errorf("expected admission after release to succeed: %v", err)
	}
}

func TestReleaseBelowZeroIsNoOp(t *testing.T) {
	a := NewAdmission(1, nil)
	a.Release(guard.WorkSubmission) // never admitted; must not panic or go negative
	if err := a.TryAdmit(guard.WorkSubmission); err != nil {
		t.Errorf("unexpected rejection after no-op release: %v", err)
	}
}
