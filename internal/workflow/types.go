// Copyright 2025 ChaosChain
//
// Workflow input types and the durable record the engine hands back to
// callers. One Input variant per frozen WorkflowType.

package workflow

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chaoschain/gateway/internal/guard"
)

// WorkSubmissionInput is the payload for a WorkSubmission workflow: it
// carries both the evidence to archive and the pre-signed transaction
// that commits the resulting root on-chain. Signing happens upstream of
// this engine: it does not choose signers or rotate keys, so it never
// constructs or signs a transaction itself.
type WorkSubmissionInput struct {
	StudioAddress  string
	Epoch          uint64
	AgentAddress   string
	ConversationID string
	Messages       [][]byte
	SignedTx       *types.Transaction
}

// ScoreSubmissionInput is the payload for a ScoreSubmission workflow.
type ScoreSubmissionInput struct {
	SignedTx *types.Transaction
}

// CloseEpochInput is the payload for a CloseEpoch workflow.
type CloseEpochInput struct {
	SignedTx *types.Transaction
}

// Record is the read-only view of a workflow the engine returns from
// Get/List.
type Record struct {
	WorkflowID   string
	Type         guard.WorkflowType
	State        string
	CurrentStep  string
	AttemptCount int
	Result       json.RawMessage
	ErrorCode    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListFilter narrows List results.
type ListFilter struct {
	State  string
	Type   string
	Signer string
}
