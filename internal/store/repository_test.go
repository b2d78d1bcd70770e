// Copyright 2025 ChaosChain
//
// Repository tests require a live Postgres instance. Set
// CHAOSCHAIN_TEST_DB to a connection string to run them; otherwise they
// are skipped.

package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/google/uuid"
)

var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("CHAOSCHAIN_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = Open(context.Background(), connStr)
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func newTestWorkflow(t *testing.T) Workflow {
	t.Helper()
	return Workflow{
		WorkflowID:    uuid.NewString(),
		Type:          "WorkSubmission",
		SignerAddress: "0xabc",
		Input:         json.RawMessage(`{}`),
		State:         WorkflowCreated,
	}
}

func TestCreateAndLoad(t *testing.T) {
	repo := NewRepository(testClient)
	ctx := context.Background()

	w := newTestWorkflow(t)
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.Load(ctx, w.WorkflowID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.State != WorkflowCreated {
		t.Errorf("state = %s, want CREATED", loaded.State)
	}
	if loaded.Type != w.Type {
		t.Errorf("type = %s, want %s", loaded.Type, w.Type)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	repo := NewRepository(testClient)
	if _, err := repo.Load(context.Background(), uuid.NewString()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStateRejectsTerminalMutation(t *testing.T) {
	repo := NewRepository(testClient)
	ctx := context.Background()

	w := newTestWorkflow(t)
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateState(ctx, w.WorkflowID, WorkflowCompleted, UpdateStateFields{}); err != nil {
		t.Fatalf("update to completed: %v", err)
	}

	err := repo.UpdateState(ctx, w.WorkflowID, WorkflowRunning, UpdateStateFields{})
	if err != ErrTerminalImmutable {
		t.Errorf("expected ErrTerminalImmutable, got %v", err)
	}
}

func TestSavepointAndLoadStepRoundTrip(t *testing.T) {
	repo := NewRepository(testClient)
	ctx := context.Background()

	w := newTestWorkflow(t)
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	s := Step{
		WorkflowID:     w.WorkflowID,
		StepName:       "BuildEvidence",
		State:          StepSucceeded,
		Attempt:        1,
		Output:         json.RawMessage(`{"content_hash":"abc"}`),
		IdempotencyKey: w.WorkflowID + ":BuildEvidence",
	}
	if err := repo.Savepoint(ctx, s); err != nil {
		t.Fatalf("savepoint: %v", err)
	}

	loaded, err := repo.LoadStep(ctx, w.WorkflowID, "BuildEvidence")
	if err != nil {
		t.Fatalf("load step: %v", err)
	}
	if loaded.State != StepSucceeded {
		t.Errorf("step state = %s, want SUCCEEDED", loaded.State)
	}

	// Re-savepointing the same step (idempotent resume) must not error.
	if err := repo.Savepoint(ctx, s); err != nil {
		t.Errorf("re-savepoint: %v", err)
	}
}

func TestTryLockWorkflowExcludesSecondHolder(t *testing.T) {
	repo := NewRepository(testClient)
	ctx := context.Background()
	workflowID := uuid.NewString()

	connA, err := repo.Conn(ctx)
	if err != nil {
		t.Fatalf("conn a: %v", err)
	}
	defer connA.Close()
	connB, err := repo.Conn(ctx)
	if err != nil {
		t.Fatalf("conn b: %v", err)
	}
	defer connB.Close()

	acquired, err := repo.TryLockWorkflow(ctx, connA, workflowID)
	if err != nil {
		t.Fatalf("try lock a: %v", err)
	}
	if !acquired {
		t.Fatal("expected first holder to acquire the lock")
	}

	acquired, err = repo.TryLockWorkflow(ctx, connB, workflowID)
	if err != nil {
		t.Fatalf("try lock b: %v", err)
	}
	if acquired {
		t.Error("expected second holder to be excluded while the first holds the lock")
	}

	if err := repo.UnlockWorkflow(ctx, connA, workflowID); err != nil {
		t.Fatalf("unlock a: %v", err)
	}
	acquired, err = repo.TryLockWorkflow(ctx, connB, workflowID)
	if err != nil {
		t.Fatalf("try lock b after unlock: %v", err)
	}
	if !acquired {
		t.Error("expected second holder to acquire the lock once released")
	}
	_ = repo.UnlockWorkflow(ctx, connB, workflowID)
}

func TestListByState(t *testing.T) {
	repo := NewRepository(testClient)
	ctx := context.Background()

	w := newTestWorkflow(t)
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, err := repo.ListByState(ctx, WorkflowCreated)
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.WorkflowID == w.WorkflowID {
			found = true
		}
	}
	if !found {
		t.Error("expected created workflow to appear in CREATED list")
	}
}
