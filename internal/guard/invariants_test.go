// Copyright 2025 ChaosChain

package guard

import (
	"testing"
	"time"
)

func TestAssertReconciliationPerformed(t *testing.T) {
	now := time.Now()

	if err := AssertReconciliationPerformed(time.Time{}, now, "SubmitTx"); err == nil {
		t.Error("expected error for zero-value reconciliation timestamp")
	}

	stale := now.Add(-ReconciliationStaleness - time.Second)
	if err := AssertReconciliationPerformed(stale, now, "SubmitTx"); err == nil {
		t.Error("expected error for stale reconciliation timestamp")
	}

	fresh := now.Add(-ReconciliationStaleness / 2)
	if err := AssertReconciliationPerformed(fresh, now, "SubmitTx"); err != nil {
		t.Errorf("unexpected error for fresh reconciliation: %v", err)
	}
}

func TestAssertFrozenWorkflowType(t *testing.T) {
	for _, wt := range FrozenWorkflowTypes {
		if err := AssertFrozenWorkflowType(wt); err != nil {
			t.Errorf("expected %s to be a member of the frozen set: %v", wt, err)
		}
	}

	if err := AssertFrozenWorkflowType(WorkflowType("BatchAnchor")); err == nil {
		t.Error("expected error for a workflow type outside the frozen set")
	}
}
