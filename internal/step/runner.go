// Copyright 2025 ChaosChain
//
// Step execution loop: an attempt-timeout-classify-retry shape that
// drives an arbitrary Descriptor to completion, stall, or failure.

package step

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chaoschain/gateway/internal/logging"
	"github.com/chaoschain/gateway/internal/metrics"
	"github.com/chaoschain/gateway/internal/store"
)

// Outcome is the result of driving a Descriptor to either a terminal
// per-step state or a workflow-level stall/fail decision.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeStalled   Outcome = "STALLED"
	OutcomeFailed    Outcome = "FAILED"
)

// Result carries the execution loop's verdict plus whatever the caller
// needs to advance the workflow record.
type Result struct {
	Outcome   Outcome
	Output    json.RawMessage
	LastError string
}

// Runner drives a single Descriptor's execution loop: PENDING → RUNNING,
// retry-with-backoff on RETRY-classified errors, STALLED on STALL or
// timeout, FAILED on FAIL. It persists a savepoint at every transition so
// a crash mid-step resumes from the last durable state rather than from
// scratch.
type Runner struct {
	repo    *store.Repository
	metrics metrics.Sink
	log     *logging.Logger
}

// NewRunner builds a Runner.
func NewRunner(repo *store.Repository, sink metrics.Sink, log *logging.Logger) *Runner {
	return &Runner{repo: repo, metrics: sink, log: log}
}

// Execute runs d to completion, a stall, or a failure, sleeping between
// retries per d.Retry. Callers must have already released any held
// signer lock before a retry sleep begins — Execute itself holds none.
func (r *Runner) Execute(ctx context.Context, workflowID, workflowType string, d Descriptor) Result {
	key := IdempotencyKey(workflowID, d.Name)
	attempt := 0
	now := time.Now()

	r.savepoint(ctx, workflowID, d.Name, store.StepRunning, attempt, "", nil, key, &now, nil)
	r.metrics.StepStarted(workflowType, d.Name)

	for {
		attempt++
		stepCtx, cancel := context.WithTimeout(ctx, d.Timeout)
		output, err := d.Run(stepCtx)
		cancel()

		if err == nil {
			completed := time.Now()
			r.savepoint(ctx, workflowID, d.Name, store.StepSucceeded, attempt, "", output, key, &now, &completed)
			r.metrics.StepCompleted(workflowType, d.Name)
			return Result{Outcome: OutcomeSucceeded, Output: output}
		}

		if stepCtx.Err() == context.DeadlineExceeded {
			r.log.Warn("step timed out", logging.F("workflow_id", workflowID), logging.F("step", d.Name), logging.F("attempt", attempt))
			r.metrics.StepTimedOut(workflowType, d.Name)
			r.savepoint(ctx, workflowID, d.Name, store.StepStalled, attempt, "timeout", nil, key, &now, nil)
			return Result{Outcome: OutcomeStalled, LastError: "timeout"}
		}

		class := d.Classify(err)
		switch class {
		case Fail:
			r.savepoint(ctx, workflowID, d.Name, store.StepFailed, attempt, err.Error(), nil, key, &now, nil)
			return Result{Outcome: OutcomeFailed, LastError: err.Error()}
		case Stall:
			r.savepoint(ctx, workflowID, d.Name, store.StepStalled, attempt, err.Error(), nil, key, &now, nil)
			return Result{Outcome: OutcomeStalled, LastError: err.Error()}
		case Retry:
			if d.Retry.Exhausted(attempt) {
				r.log.Warn("step retries exhausted, stalling", logging.F("workflow_id", workflowID),
					logging.F("step", d.Name), logging.F("attempt", attempt))
				r.savepoint(ctx, workflowID, d.Name, store.StepStalled, attempt, "retries exhausted: "+err.Error(), nil, key, &now, nil)
				return Result{Outcome: OutcomeStalled, LastError: "retries exhausted: " + err.Error()}
			}
			r.savepoint(ctx, workflowID, d.Name, store.StepRetrying, attempt, err.Error(), nil, key, &now, nil)
			r.metrics.StepRetried(workflowType, d.Name)

			delay := d.Retry.BackoffFor(attempt)
			select {
			case <-ctx.Done():
				return Result{Outcome: OutcomeStalled, LastError: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}
	}
}

func (r *Runner) savepoint(ctx context.Context, workflowID, stepName string, state store.StepState, attempt int, lastErr string, output json.RawMessage, key string, started, completed *time.Time) {
	if err := r.repo.Savepoint(ctx, store.Step{
		WorkflowID:     workflowID,
		StepName:       stepName,
		State:          state,
		Attempt:        attempt,
		LastError:      lastErr,
		Output:         output,
		IdempotencyKey: key,
		StartedAt:      started,
		CompletedAt:    completed,
	}); err != nil {
		r.log.Error("savepoint write failed", logging.F("workflow_id", workflowID), logging.F("step", stepName), logging.F("error", err.Error()))
	}
}
