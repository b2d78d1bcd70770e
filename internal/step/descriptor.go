// Copyright 2025 ChaosChain
//
// Step descriptor table: a static table of {name, run, classify,
// timeout, retryPolicy} records standing in for dynamic callbacks or
// decorators — see internal/workflow for the three frozen workflow
// types' declared sequences built from these.

package step

import (
	"context"
	"encoding/json"
	"time"
)

// Classification is the error taxonomy outcome: RETRY, STALL, or FAIL.
type Classification string

const (
	Retry Classification = "RETRY"
	Stall Classification = "STALL"
	Fail  Classification = "FAIL"
)

// RunFunc performs a step's side-effecting work and returns an opaque
// output blob persisted alongside the step record.
type RunFunc func(ctx context.Context) (json.RawMessage, error)

// ClassifyFunc maps an error returned by Run to a retry decision.
type ClassifyFunc func(err error) Classification

// Descriptor is one entry in a workflow type's fixed step sequence.
type Descriptor struct {
	Name     string
	Run      RunFunc
	Classify ClassifyFunc
	Timeout  time.Duration
	Retry    RetryPolicy

	// AlwaysRerun marks a step whose prior SUCCEEDED record must never
	// short-circuit a resumed run — reconciliation must be fresh before
	// every irreversible action, not merely performed once, ever.
	AlwaysRerun bool
}

// IdempotencyKey derives a deterministic key combining workflow id and
// step name so a resumed step's idempotency check and the store's
// unique constraint agree on the same value.
func IdempotencyKey(workflowID, stepName string) string {
	return workflowID + ":" + stepName
}
