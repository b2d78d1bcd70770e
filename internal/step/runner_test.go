// Copyright 2025 ChaosChain
//
// Runner tests persist savepoints through a real Repository, so they
// require a live Postgres instance. Set CHAOSCHAIN_TEST_DB to a
// connection string to run them. When it is unset, TestMain exits before
// any test of this package runs, the retry-policy tests in retry_test.go
// included.

package step

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chaoschain/gateway/internal/logging"
	"github.com/chaoschain/gateway/internal/metrics"
	"github.com/chaoschain/gateway/internal/store"
)

var testClient *store.Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("CHAOSCHAIN_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = store.Open(context.Background(), connStr)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func newTestWorkflow(t *testing.T, repo *store.Repository) string {
	t.Helper()
	id := uuid.NewString()
	w := store.Workflow{
		WorkflowID:    id,
		Type:          "WorkSubmission",
		SignerAddress: "0xabc",
		Input:         json.RawMessage(`{}`),
		State:         store.WorkflowRunning,
	}
	if err := repo.Create(context.Background(), w); err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return id
}

func TestRunnerSucceedsOnFirstAttempt(t *testing.T) {
	repo := store.NewRepository(testClient)
	runner := NewRunner(repo, metrics.Nop{}, logging.NewNop())
	workflowID := newTestWorkflow(t, repo)

	d := Descriptor{
		Name:     "BuildEvidence",
		Timeout:  time.Second,
		Retry:    DefaultRetryPolicy(),
		Classify: func(error) Classification { return Fail },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			return json.Marshal(map[string]string{"ok": "true"})
		},
	}

	result := runner.Execute(context.Background(), workflowID, "WorkSubmission", d)
	if result.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %s, want SUCCEEDED", result.Outcome)
	}

	step, err := repo.LoadStep(context.Background(), workflowID, "BuildEvidence")
	if err != nil {
		t.Fatalf("load step: %v", err)
	}
	if step.State != store.StepSucceeded {
		t.Errorf("persisted step state = %s, want SUCCEEDED", step.State)
	}
}

func TestRunnerStallsOnStallClassification(t *testing.T) {
	repo := store.NewRepository(testClient)
	runner := NewRunner(repo, metrics.Nop{}, logging.NewNop())
	workflowID := newTestWorkflow(t, repo)

	d := Descriptor{
		Name:     "ArchiveEvidence",
		Timeout:  time.Second,
		Retry:    DefaultRetryPolicy(),
		Classify: func(error) Classification { return Stall },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			return nil, errors.New("storage unavailable")
		},
	}

	result := runner.Execute(context.Background(), workflowID, "WorkSubmission", d)
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want STALLED", result.Outcome)
	}
}

func TestRunnerFailsOnFailClassification(t *testing.T) {
	repo := store.NewRepository(testClient)
	runner := NewRunner(repo, metrics.Nop{}, logging.NewNop())
	workflowID := newTestWorkflow(t, repo)

	d := Descriptor{
		Name:     "RecordResult",
		Timeout:  time.Second,
		Retry:    DefaultRetryPolicy(),
		Classify: func(error) Classification { return Fail },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			return nil, errors.New("reverted: insufficient balance")
		},
	}

	result := runner.Execute(context.Background(), workflowID, "WorkSubmission", d)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want FAILED", result.Outcome)
	}
}

func TestRunnerStallsAfterRetriesExhausted(t *testing.T) {
	repo := store.NewRepository(testClient)
	runner := NewRunner(repo, metrics.Nop{}, logging.NewNop())
	workflowID := newTestWorkflow(t, repo)

	attempts := 0
	d := Descriptor{
		Name:     "Reconcile",
		Timeout:  time.Second,
		Retry:    RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 1, Cap: time.Millisecond, Jitter: 0},
		Classify: func(error) Classification { return Retry },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			attempts++
			return nil, errors.New("transient rpc error")
		},
	}

	result := runner.Execute(context.Background(), workflowID, "WorkSubmission", d)
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want STALLED after exhausting retries", result.Outcome)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (MaxAttempts)", attempts)
	}
}

func TestRunnerStallsOnTimeout(t *testing.T) {
	repo := store.NewRepository(testClient)
	runner := NewRunner(repo, metrics.Nop{}, logging.NewNop())
	workflowID := newTestWorkflow(t, repo)

	d := Descriptor{
		Name:     "AwaitReceipt",
		Timeout:  10 * time.Millisecond,
		Retry:    DefaultRetryPolicy(),
		Classify: func(error) Classification { return Retry },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	result := runner.Execute(context.Background(), workflowID, "WorkSubmission", d)
	if result.Outcome != OutcomeStalled {
		t.Fatalf("outcome = %s, want STALLED on timeout", result.Outcome)
	}
}
