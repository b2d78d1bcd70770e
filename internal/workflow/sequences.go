// Copyright 2025 ChaosChain
//
// Step descriptor tables for the three frozen workflow types: each
// workflow type's dynamic callback graph is flattened into a static
// step descriptor table ahead of time:
//
//	WorkSubmission:  BuildEvidence → ArchiveEvidence → ComputeRoot → Reconcile → SubmitTx → AwaitReceipt → RecordResult
//	ScoreSubmission: Reconcile → SubmitTx → AwaitReceipt → RecordResult
//	CloseEpoch:      Reconcile → SubmitTx → AwaitReceipt → RecordResult
//
// Each descriptor's Run closure captures the per-invocation execState so
// later steps can use earlier steps' outputs without re-deriving them.

package workflow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/chaoschain/gateway/internal/chain"
	"github.com/chaoschain/gateway/internal/evidence"
	"github.com/chaoschain/gateway/internal/guard"
	"github.com/chaoschain/gateway/internal/reconcile"
	"github.com/chaoschain/gateway/internal/step"
)

// execState carries interim results between steps of one workflow
// invocation. It never outlives a single drive() call; everything that
// must survive a crash is persisted via step outputs instead.
type execState struct {
	workflowID   string
	workflowType guard.WorkflowType
	signer       guard.SignerAddress

	pkg         *evidence.Package
	hasEvidence bool
	storageTxID guard.StorageTxID
	root        string

	pendingTx        *reconcile.PendingSlot
	txHash           guard.TxHash
	receipt          *chain.Receipt
	reverted         bool
	revertMsg        string
	lastReconciledAt time.Time
}

// classifyChainErr maps a chain.ChainError's class to a step retry
// decision. Any other error is presumed transient, biasing toward
// retry-first classification.
func classifyChainErr(err error) step.Classification {
	var ce *chain.ChainError
	if errors.As(err, &ce) {
		switch ce.Class {
		case chain.ClassTransient:
			return step.Retry
		case chain.ClassRejected:
			return step.Stall
		case chain.ClassFatal:
			return step.Fail
		}
	}
	return step.Retry
}

// workSubmissionSequence returns the WorkSubmission step table.
func (e *Engine) workSubmissionSequence(in WorkSubmissionInput, st *execState) []step.Descriptor {
	retry := step.DefaultRetryPolicy()

	buildEvidence := step.Descriptor{
		Name:     "BuildEvidence",
		Timeout:  e.cfg.StepTimeout,
		Retry:    retry,
		Classify: func(error) step.Classification { return step.Stall },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			msgs := make([]evidence.Message, len(in.Messages))
			now := time.Now().UnixNano()
			for i, m := range in.Messages {
				msgs[i] = evidence.Message{Timestamp: now, Content: m}
			}
			pkg := evidence.BuildFromMessages(in.StudioAddress, in.AgentAddress, in.ConversationID, in.Epoch, now, msgs)
			st.pkg = &pkg
			st.hasEvidence = true

			raw, err := pkg.Serialize()
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{
				"content_hash": pkg.ContentHash,
				"package":      base64.StdEncoding.EncodeToString(raw),
			})
		},
	}

	archiveEvidence := step.Descriptor{
		Name:    "ArchiveEvidence",
		Timeout: e.cfg.StepTimeout,
		Retry:   retry,
		// Storage errors are operational, never fatal: always STALL,
		// never FAIL.
		Classify: func(error) step.Classification { return step.Stall },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			id, err := e.archiver.ArchivePackage(ctx, st.workflowID, *st.pkg)
			if err != nil {
				return nil, err
			}
			st.storageTxID = id
			return json.Marshal(map[string]string{"storage_tx_id": id.String()})
		},
	}

	computeRoot := step.Descriptor{
		Name:     "ComputeRoot",
		Timeout:  e.cfg.StepTimeout,
		Retry:    retry,
		Classify: func(error) step.Classification { return step.Fail },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			st.root = st.pkg.Root()
			return json.Marshal(map[string]string{"root": st.root})
		},
	}

	seq := []step.Descriptor{buildEvidence, archiveEvidence, computeRoot}
	seq = append(seq, e.reconcileAndSubmitSequence(st, in.SignedTx, retry)...)
	return seq
}

// scoreSubmissionSequence and closeEpochSequence share the same
// Reconcile → SubmitTx → AwaitReceipt → RecordResult shape; only the
// evidence-building prefix differs across types.
func (e *Engine) scoreSubmissionSequence(in ScoreSubmissionInput, st *execState) []step.Descriptor {
	return e.reconcileAndSubmitSequence(st, in.SignedTx, step.DefaultRetryPolicy())
}

func (e *Engine) closeEpochSequence(in CloseEpochInput, st *execState) []step.Descriptor {
	return e.reconcileAndSubmitSequence(st, in.SignedTx, step.DefaultRetryPolicy())
}

// reconcileAndSubmitSequence builds the common tail shared by all three
// workflow types: Reconcile → SubmitTx → AwaitReceipt → RecordResult.
func (e *Engine) reconcileAndSubmitSequence(st *execState, signedTx *gethtypes.Transaction, retry step.RetryPolicy) []step.Descriptor {
	reconcileStep := step.Descriptor{
		Name:        "Reconcile",
		Timeout:     e.cfg.StepTimeout,
		Retry:       retry,
		AlwaysRerun: true,
		Classify: func(err error) step.Classification {
			if errors.Is(err, errRevertUnknown) {
				return step.Stall
			}
			return step.Retry
		},
		Run: func(ctx context.Context) (json.RawMessage, error) {
			var expectedNonce uint64
			var err error
			if st.pendingTx == nil {
				expectedNonce, err = e.chainAdapter.NonceAt(ctx, st.signer)
				if err != nil {
					return nil, err
				}
			}

			verdict, err := e.reconciler.Reconcile(ctx, st.signer, expectedNonce, st.pendingTx)
			if err != nil {
				return nil, err
			}
			e.metricsSink.ReconciliationRan(string(st.workflowType))
			st.lastReconciledAt = time.Now()

			switch verdict.Outcome {
			case reconcile.OutcomeAlreadyConfirmed:
				st.receipt = verdict.Receipt
				st.txHash = verdict.Receipt.Hash
			case reconcile.OutcomeReverted:
				if verdict.RevertReason == "" {
					return nil, errRevertUnknown
				}
				st.reverted = true
				st.revertMsg = verdict.RevertReason
			case reconcile.OutcomeNotFound:
				st.pendingTx = nil
			}
			return json.Marshal(map[string]string{"outcome": string(verdict.Outcome)})
		},
	}

	submitTx := step.Descriptor{
		Name:     "SubmitTx",
		Timeout:  e.cfg.StepTimeout,
		Retry:    retry,
		Classify: classifyChainErr,
		Run: func(ctx context.Context) (json.RawMessage, error) {
			// Tie-break: reconciliation already found the tx landed or
			// reverted — skip submission entirely.
			if st.receipt != nil || st.reverted {
				return json.Marshal(map[string]string{"skipped": "reconciled"})
			}

			if err := guard.AssertReconciliationPerformed(st.lastReconciledAt, time.Now(), "SubmitTx"); err != nil {
				return nil, err
			}
			if err := e.nonceSerializer.Acquire(st.signer, st.workflowID); err != nil {
				return nil, err
			}

			hash, err := e.chainAdapter.Submit(ctx, signedTx)
			if err != nil {
				e.nonceSerializer.Release(st.signer, st.workflowID)
				return nil, err
			}
			st.txHash = hash
			st.pendingTx = &reconcile.PendingSlot{TxHash: hash, SubmittedAt: time.Now()}
			e.metricsSink.TxSubmitted(string(st.workflowType))
			return json.Marshal(map[string]string{"tx_hash": hash.String()})
		},
	}

	awaitReceipt := step.Descriptor{
		Name:    "AwaitReceipt",
		Timeout: e.cfg.StepTimeout,
		Retry:   retry,
		Classify: func(err error) step.Classification {
			if errors.Is(err, errRevertUnknown) {
				return step.Stall
			}
			return classifyChainErr(err)
		},
		Run: func(ctx context.Context) (json.RawMessage, error) {
			defer e.nonceSerializer.Release(st.signer, st.workflowID)

			if st.receipt != nil {
				return json.Marshal(map[string]string{"outcome": string(st.receipt.Outcome)})
			}

			receipt, err := e.chainAdapter.PollReceipt(ctx, st.txHash)
			if err != nil {
				return nil, err
			}
			st.receipt = &receipt

			switch receipt.Outcome {
			case chain.OutcomeConfirmed:
				e.metricsSink.TxConfirmed(string(st.workflowType))
			case chain.OutcomeReverted:
				e.metricsSink.TxReverted(string(st.workflowType))
				if receipt.RevertReason == "" {
					return nil, errRevertUnknown
				}
				st.reverted = true
				st.revertMsg = receipt.RevertReason
			case chain.OutcomeNotFound:
				e.metricsSink.TxNotFound(string(st.workflowType))
				return nil, &chain.ChainError{Class: chain.ClassTransient, Op: "await_receipt", Cause: errTxNotYetFound}
			}
			return json.Marshal(map[string]string{"outcome": string(receipt.Outcome)})
		},
	}

	recordResult := step.Descriptor{
		Name:     "RecordResult",
		Timeout:  e.cfg.StepTimeout,
		Retry:    retry,
		Classify: func(error) step.Classification { return step.Fail },
		Run: func(ctx context.Context) (json.RawMessage, error) {
			if st.reverted {
				return nil, errRevertedWithReason(st.revertMsg)
			}
			out := recordResultOutput{TxHash: st.txHash.String()}
			if st.hasEvidence {
				out.Root = st.root
				out.StorageTxID = st.storageTxID.String()
			}
			if st.receipt != nil {
				out.BlockNumber = st.receipt.BlockNumber
			}
			return json.Marshal(out)
		},
	}

	return []step.Descriptor{reconcileStep, submitTx, awaitReceipt, recordResult}
}

type recordResultOutput struct {
	TxHash      string `json:"tx_hash,omitempty"`
	Root        string `json:"root,omitempty"`
	StorageTxID string `json:"storage_tx_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

var errTxNotYetFound = errors.New("transaction not yet visible on chain")

// errRevertUnknown marks a confirmed revert whose reason could not be
// recovered from the chain. Per the error taxonomy, a revert with a known
// reason fails the workflow outright; a revert with no recoverable reason
// stalls it for operator inspection instead of guessing.
var errRevertUnknown = errors.New("transaction reverted: reason unknown")

// revertedError carries a known on-chain revert reason through to the
// workflow's terminal errorCode: a revert with a known reason always
// fails the workflow outright.
type revertedError struct{ reason string }

func (e *revertedError) Error() string { return e.reason }

func errRevertedWithReason(reason string) error { return &revertedError{reason: reason} }
