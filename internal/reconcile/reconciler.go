// Copyright 2025 ChaosChain
//
// Reconciler: queries chain truth before every irreversible action,
// following a strict query-before-submit discipline.

package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/chaoschain/gateway/internal/chain"
	"github.com/chaoschain/gateway/internal/guard"
	"github.com/chaoschain/gateway/internal/logging"
)

// Outcome is the reconciler's verdict on a signer's pending-chain slot.
type Outcome string

const (
	// OutcomeProceed means nothing on chain blocks the next action:
	// either no pending tx is recorded (an on-chain nonce that differs
	// from the expected one is logged, not blocking), or the recorded tx
	// is not final yet (unseen within the not-found window, or mined
	// without enough confirmations).
	OutcomeProceed Outcome = "proceed"
	// OutcomeAlreadyConfirmed means the previously submitted tx is
	// already confirmed on-chain: skip SubmitTx, go straight to
	// RecordResult.
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	// OutcomeReverted means the previously submitted tx reverted.
	OutcomeReverted Outcome = "reverted"
	// OutcomeNotFound means the previously submitted tx is not found
	// after the timeout window: the workflow should stall.
	OutcomeNotFound Outcome = "not_found"
)

// Verdict carries the reconciler's outcome plus any chain data needed to
// advance the workflow without re-querying.
type Verdict struct {
	Outcome      Outcome
	Receipt      *chain.Receipt
	RevertReason string
}

// PendingSlot describes a signer's previously recorded in-flight
// transaction, if any.
type PendingSlot struct {
	TxHash      guard.TxHash
	SubmittedAt time.Time
}

// Reconciler depends only on the chain adapter; it never touches the
// store directly, breaking a cyclic reference back to persistence —
// callers persist the verdict.
type Reconciler struct {
	adapter      *chain.Adapter
	notFoundWait time.Duration
	log          *logging.Logger
}

// New builds a Reconciler. notFoundWait bounds how long a previously
// submitted tx may remain unseen by the chain before it is declared
// not found.
func New(adapter *chain.Adapter, notFoundWait time.Duration, log *logging.Logger) *Reconciler {
	return &Reconciler{adapter: adapter, notFoundWait: notFoundWait, log: log}
}

// Reconcile queries chain truth for signer ahead of an irreversible
// action. If pending is nil, it only checks that the on-chain nonce
// matches what the caller expects to submit next.
func (r *Reconciler) Reconcile(ctx context.Context, signer guard.SignerAddress, expectedNonce uint64, pending *PendingSlot) (Verdict, error) {
	guard.AssertNoFastPath()

	if pending == nil {
		onChainNonce, err := r.adapter.NonceAt(ctx, signer)
		if err != nil {
			return Verdict{}, fmt.Errorf("reconcile nonce for %s: %w", signer, err)
		}
		if onChainNonce != expectedNonce {
			r.log.Warn("nonce mismatch on reconciliation", logging.F("signer", signer.String()),
				logging.F("expected", expectedNonce), logging.F("on_chain", onChainNonce))
		}
		return Verdict{Outcome: OutcomeProceed}, nil
	}

	receipt, err := r.adapter.GetTransactionStatus(ctx, pending.TxHash)
	if err != nil {
		if time.Since(pending.SubmittedAt) > r.notFoundWait {
			return Verdict{Outcome: OutcomeNotFound}, nil
		}
		return Verdict{}, fmt.Errorf("reconcile receipt for %s: %w", pending.TxHash, err)
	}

	switch receipt.Outcome {
	case chain.OutcomeConfirmed:
		return Verdict{Outcome: OutcomeAlreadyConfirmed, Receipt: &receipt}, nil
	case chain.OutcomeReverted:
		return Verdict{Outcome: OutcomeReverted, Receipt: &receipt, RevertReason: receipt.RevertReason}, nil
	case chain.OutcomeNotFound:
		if time.Since(pending.SubmittedAt) > r.notFoundWait {
			return Verdict{Outcome: OutcomeNotFound}, nil
		}
		return Verdict{Outcome: OutcomeProceed}, nil
	default:
		return Verdict{Outcome: OutcomeProceed}, nil
	}
}
