// Copyright 2025 ChaosChain
//
// CRUD on workflows and steps: sql.ErrNoRows translated to a local
// sentinel, one struct per table. Workflow mutation
// always goes through a single UPDATE ... WHERE state NOT IN (terminal)
// to enforce terminal-state immutability at the SQL layer, not just in
// application code.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository provides the operations the engine needs: create, load,
// updateState, listByState, listStuck, savepoint.
type Repository struct {
	db *sql.DB
}

// NewRepository builds a Repository over an already-open Client's pool.
func NewRepository(c *Client) *Repository {
	return &Repository{db: c.db}
}

// lockKey derives a pair of int32 advisory-lock keys from a workflow UUID
// so that two engine instances cannot drive the same workflow at once.
// Collisions across unrelated workflows are accepted: an advisory lock
// is a coordination hint, not an identity.
func lockKey(workflowID string) (int32, int32) {
	var h uint64
	for i := 0; i < len(workflowID); i++ {
		h = h*31 + uint64(workflowID[i])
	}
	return int32(h >> 32), int32(h)
}

// Conn acquires a dedicated connection from the pool, needed because
// advisory locks are session-scoped and must survive across the several
// statements of a workflow's critical section.
func (r *Repository) Conn(ctx context.Context) (*sql.Conn, error) {
	return r.db.Conn(ctx)
}

// TryLockWorkflow attempts to take a session-scoped Postgres advisory
// lock for workflowID on conn. The caller must hold conn for the
// duration of its critical section and release with UnlockWorkflow.
func (r *Repository) TryLockWorkflow(ctx context.Context, conn *sql.Conn, workflowID string) (bool, error) {
	k1, k2 := lockKey(workflowID)
	var acquired bool
	err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1, $2)`, k1, k2).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return acquired, nil
}

// UnlockWorkflow releases a lock previously taken by TryLockWorkflow.
func (r *Repository) UnlockWorkflow(ctx context.Context, conn *sql.Conn, workflowID string) error {
	k1, k2 := lockKey(workflowID)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1, $2)`, k1, k2); err != nil {
		return fmt.Errorf("unlock advisory lock: %w", err)
	}
	return nil
}

// Create persists a new workflow record in whatever state w carries.
func (r *Repository) Create(ctx context.Context, w Workflow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflows (workflow_id, type, signer_address, input, state, current_step, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, w.WorkflowID, w.Type, w.SignerAddress, w.Input, w.State, w.CurrentStep, w.AttemptCount)
	if err != nil {
		return fmt.Errorf("create workflow %s: %w", w.WorkflowID, err)
	}
	return nil
}

// Load fetches a workflow by id.
func (r *Repository) Load(ctx context.Context, workflowID string) (Workflow, error) {
	var w Workflow
	var lastReconciled sql.NullTime
	var result sql.NullString
	var errorCode sql.NullString

	row := r.db.QueryRowContext(ctx, `
		SELECT workflow_id, type, signer_address, input, state, current_step, attempt_count,
		       last_reconciled_at, result, error_code, created_at, updated_at
		FROM workflows WHERE workflow_id = $1
	`, workflowID)

	var input string
	err := row.Scan(&w.WorkflowID, &w.Type, &w.SignerAddress, &input, &w.State, &w.CurrentStep,
		&w.AttemptCount, &lastReconciled, &result, &errorCode, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}

	w.Input = json.RawMessage(input)
	if lastReconciled.Valid {
		w.LastReconciledAt = &lastReconciled.Time
	}
	if result.Valid {
		w.Result = json.RawMessage(result.String)
	}
	if errorCode.Valid {
		w.ErrorCode = errorCode.String
	}
	return w, nil
}

// UpdateStateFields describes the mutable fields an UpdateState call may
// change alongside the workflow's state.
type UpdateStateFields struct {
	CurrentStep      *string
	AttemptCount     *int
	LastReconciledAt *time.Time
	Result           json.RawMessage
	ErrorCode        *string
}

// UpdateState transitions workflowID to newState and applies fields,
// refusing to mutate a workflow already in a terminal state.
func (r *Repository) UpdateState(ctx context.Context, workflowID string, newState WorkflowState, fields UpdateStateFields) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE workflows
		SET state = $2,
		    current_step = COALESCE($3, current_step),
		    attempt_count = COALESCE($4, attempt_count),
		    last_reconciled_at = COALESCE($5, last_reconciled_at),
		    result = COALESCE($6, result),
		    error_code = COALESCE($7, error_code),
		    updated_at = now()
		WHERE workflow_id = $1
		  AND state NOT IN ('COMPLETED', 'FAILED')
	`, workflowID, newState, fields.CurrentStep, fields.AttemptCount, fields.LastReconciledAt,
		nullableJSON(fields.Result), fields.ErrorCode)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", workflowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow %s rows affected: %w", workflowID, err)
	}
	if n == 0 {
		if _, loadErr := r.Load(ctx, workflowID); loadErr == nil {
			return ErrTerminalImmutable
		}
		return ErrNotFound
	}
	return nil
}

// ListByState returns every workflow currently in state.
func (r *Repository) ListByState(ctx context.Context, state WorkflowState) ([]Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT workflow_id, type, signer_address, state, current_step, attempt_count, created_at, updated_at
		FROM workflows WHERE state = $1 ORDER BY created_at ASC
	`, state)
	if err != nil {
		return nil, fmt.Errorf("list workflows by state %s: %w", state, err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		var w Workflow
		if err := rows.Scan(&w.WorkflowID, &w.Type, &w.SignerAddress, &w.State, &w.CurrentStep,
			&w.AttemptCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListFilter narrows ListFiltered results; empty fields are unfiltered.
type ListFilter struct {
	State  string
	Type   string
	Signer string
	Limit  int
	Offset int
}

// ListFiltered returns workflows matching filter, paginated.
func (r *Repository) ListFiltered(ctx context.Context, f ListFilter) ([]Workflow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT workflow_id, type, signer_address, state, current_step, attempt_count, created_at, updated_at
		FROM workflows
		WHERE ($1 = '' OR state = $1)
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR signer_address = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.State, f.Type, f.Signer, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list filtered workflows: %w", err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		var w Workflow
		if err := rows.Scan(&w.WorkflowID, &w.Type, &w.SignerAddress, &w.State, &w.CurrentStep,
			&w.AttemptCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan filtered workflow row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListStuck returns non-terminal workflows whose updated_at is older than
// olderThan, the candidate set for the reconciliation sweep.
func (r *Repository) ListStuck(ctx context.Context, olderThan time.Time) ([]Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT workflow_id, type, signer_address, state, current_step, attempt_count, created_at, updated_at
		FROM workflows
		WHERE state NOT IN ('COMPLETED', 'FAILED') AND updated_at < $1
		ORDER BY updated_at ASC
	`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck workflows: %w", err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		var w Workflow
		if err := rows.Scan(&w.WorkflowID, &w.Type, &w.SignerAddress, &w.State, &w.CurrentStep,
			&w.AttemptCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stuck workflow row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Savepoint upserts a step's state, the unit of crash-safe progress
// within a workflow's step sequence.
func (r *Repository) Savepoint(ctx context.Context, s Step) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO steps (workflow_id, step_name, state, attempt, last_error, output, idempotency_key, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (workflow_id, step_name) DO UPDATE SET
			state = EXCLUDED.state,
			attempt = EXCLUDED.attempt,
			last_error = EXCLUDED.last_error,
			output = EXCLUDED.output,
			started_at = COALESCE(steps.started_at, EXCLUDED.started_at),
			completed_at = EXCLUDED.completed_at
	`, s.WorkflowID, s.StepName, s.State, s.Attempt, nullableString(s.LastError),
		nullableJSON(s.Output), s.IdempotencyKey, s.StartedAt, s.CompletedAt)
	if err != nil {
		return fmt.Errorf("savepoint %s/%s: %w", s.WorkflowID, s.StepName, err)
	}
	return nil
}

// LoadStep fetches a single step's record.
func (r *Repository) LoadStep(ctx context.Context, workflowID, stepName string) (Step, error) {
	var s Step
	var lastError, output sql.NullString
	var started, completed sql.NullTime

	row := r.db.QueryRowContext(ctx, `
		SELECT workflow_id, step_name, state, attempt, last_error, output, idempotency_key, started_at, completed_at
		FROM steps WHERE workflow_id = $1 AND step_name = $2
	`, workflowID, stepName)

	err := row.Scan(&s.WorkflowID, &s.StepName, &s.State, &s.Attempt, &lastError, &output,
		&s.IdempotencyKey, &started, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return Step{}, ErrNotFound
	}
	if err != nil {
		return Step{}, fmt.Errorf("load step %s/%s: %w", workflowID, stepName, err)
	}

	if lastError.Valid {
		s.LastError = lastError.String
	}
	if output.Valid {
		s.Output = json.RawMessage(output.String)
	}
	if started.Valid {
		s.StartedAt = &started.Time
	}
	if completed.Valid {
		s.CompletedAt = &completed.Time
	}
	return s, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
