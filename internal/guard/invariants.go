// Copyright 2025 ChaosChain
//
// Invariant assertions enforced before irreversible actions and around the
// frozen workflow-type set. These are internal bugs when they fire, not
// user-facing validation errors. The workflow engine's SubmitTx step
// classifies a violation (a stale reconciliation, a busy signer) as
// retryable, and admission reports a frozen-type violation as a
// rejection code.

package guard

import (
	"fmt"
	"time"
)

// InvariantViolation is returned when an internal invariant is violated.
type InvariantViolation struct {
	Invariant string
	Details   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation [%s]: %s", e.Invariant, e.Details)
}

// ReconciliationStaleness is the maximum age a reconciliation timestamp may
// have before it must be refreshed ahead of another irreversible action.
const ReconciliationStaleness = 60 * time.Second

// AssertReconciliationPerformed fails if ts is zero or older than
// ReconciliationStaleness relative to now. Called immediately before every
// on-chain submission and every re-submission following a stall.
func AssertReconciliationPerformed(ts time.Time, now time.Time, action string) error {
	if ts.IsZero() {
		return &InvariantViolation{
			Invariant: "RECONCILIATION_MISSING",
			Details:   fmt.Sprintf("no reconciliation recorded before %s", action),
		}
	}
	if now.Sub(ts) > ReconciliationStaleness {
		return &InvariantViolation{
			Invariant: "RECONCILIATION_STALE",
			Details:   fmt.Sprintf("reconciliation for %s is %s old, exceeds %s", action, now.Sub(ts), ReconciliationStaleness),
		}
	}
	return nil
}

// WorkflowType is the frozen, closed set of workflow kinds the engine
// knows how to drive. Adding a member is a spec change, not a runtime
// operation — see AssertFrozenWorkflowType.
type WorkflowType string

const (
	WorkSubmission  WorkflowType = "WorkSubmission"
	ScoreSubmission WorkflowType = "ScoreSubmission"
	CloseEpoch      WorkflowType = "CloseEpoch"
)

// FrozenWorkflowTypes enumerates the closed set in declaration order.
var FrozenWorkflowTypes = []WorkflowType{WorkSubmission, ScoreSubmission, CloseEpoch}

// AssertFrozenWorkflowType fails if t is not a member of the frozen set.
func AssertFrozenWorkflowType(t WorkflowType) error {
	for _, candidate := range FrozenWorkflowTypes {
		if candidate == t {
			return nil
		}
	}
	return &InvariantViolation{
		Invariant: "FROZEN_TYPE_VIOLATION",
		Details:   fmt.Sprintf("workflow type %q is not in the frozen set", t),
	}
}

// The following are no-op documentation markers. They compile to nothing
// and exist so that a reader (and a future refactor) can grep for the
// boundaries this engine deliberately does not cross. None of them
// allocate, block, or have any runtime effect.

// OrchestrationOnly marks a code path as transport/sequencing only — it
// must never interpret the business meaning of agent-produced content.
func OrchestrationOnly() {}

// EvidenceOnly marks a code path as handling opaque evidence bytes only —
// it must never parse or inspect contentBytes.
func EvidenceOnly() {}

// AssertNoFastPath marks a code path that must always go through
// reconciliation and the full step sequence, never a shortcut.
func AssertNoFastPath() {}

// AssertNoBatching marks a code path that must submit exactly one
// transaction per step invocation, never coalesce multiple workflows.
func AssertNoBatching() {}

// AssertNoOffchainInference marks a code path that must treat chain
// receipts as the only authority on transaction outcome.
func AssertNoOffchainInference() {}
