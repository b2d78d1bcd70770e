// Copyright 2025 ChaosChain
//
// Admission control: frozen-type validation and the global and per-type
// concurrency caps. Signer existence is checked by Engine.Submit, and
// per-signer concurrency is bounded by the nonce serializer. No implicit
// queueing beyond the persistent store — a rejected workflow is never
// created.

package workflow

import (
	"fmt"
	"sync"

	"github.com/chaoschain/gateway/internal/guard"
)

// AdmissionError is returned when a workflow is rejected before
// creation. These are user-visible and carry a stable error code.
type AdmissionError struct {
	Code    string
	Message string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected [%s]: %s", e.Code, e.Message)
}

// Admission tracks in-flight workflow counts to enforce the configured
// caps. Per-signer concurrency is effectively bounded to 1 by the nonce
// serializer already; admission here only enforces the explicit total
// and per-type caps.
type Admission struct {
	mu            sync.Mutex
	maxTotal      int
	maxPerType    map[string]int
	activeTotal   int
	activePerType map[string]int
}

// NewAdmission builds an Admission tracker from configured caps.
func NewAdmission(maxTotal int, maxPerType map[string]int) *Admission {
	return &Admission{
		maxTotal:      maxTotal,
		maxPerType:    maxPerType,
		activePerType: make(map[string]int),
	}
}

// TryAdmit validates t is a frozen type and that admitting one more
// workflow of type t would not exceed configured caps. It reserves the
// slot on success; callers must call Release when the workflow reaches a
// terminal state.
func (a *Admission) TryAdmit(t guard.WorkflowType) error {
	if err := guard.AssertFrozenWorkflowType(t); err != nil {
		return &AdmissionError{Code: "FROZEN_TYPE_VIOLATION", Message: err.Error()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.activeTotal >= a.maxTotal {
		return &AdmissionError{Code: "QUOTA_EXCEEDED", Message: "global workflow quota exceeded"}
	}
	if cap, ok := a.maxPerType[string(t)]; ok && a.activePerType[string(t)] >= cap {
		return &AdmissionError{Code: "QUOTA_EXCEEDED", Message: fmt.Sprintf("per-type quota exceeded for %s", t)}
	}

	a.activeTotal++
	a.activePerType[string(t)]++
	return nil
}

// Restore accounts for a workflow that is already in flight from a prior
// process lifetime, bypassing cap checks: resumeOnBoot calls this once per
// persisted non-terminal workflow so restart never under-counts
// concurrency that genuinely already exists.
func (a *Admission) Restore(t guard.WorkflowType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeTotal++
	a.activePerType[string(t)]++
}

// Release returns a previously admitted slot for t.
func (a *Admission) Release(t guard.WorkflowType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeTotal > 0 {
		a.activeTotal--
	}
	if a.activePerType[string(t)] > 0 {
		a.activePerType[string(t)]--
	}
}
