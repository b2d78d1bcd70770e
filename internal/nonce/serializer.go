// Copyright 2025 ChaosChain
//
// Nonce Serializer - Per-Signer Transaction Sequencing
//
// A mutex-guarded map from signer to holding workflow, with an
// acquire/release lifecycle, that serializes the single in-flight
// transaction per signer.
//
// Invariant: one signer, one in-flight transaction. Reentrant acquisition
// by the same workflow is forbidden — a workflow cannot hold its own lock
// twice, even across retries of the same step.

package nonce

import (
	"sync"
	"time"

	"github.com/chaoschain/gateway/internal/guard"
)

// state tracks which workflow currently holds a signer's slot.
type state struct {
	workflowID string
	acquiredAt time.Time
}

// Serializer enforces at most one in-flight transaction per signer
// address across all workflows sharing that signer.
type Serializer struct {
	mu      sync.Mutex
	pending map[guard.SignerAddress]*state
}

// NewSerializer constructs an empty Serializer.
func NewSerializer() *Serializer {
	return &Serializer{pending: make(map[guard.SignerAddress]*state)}
}

// Acquire reserves signer's slot for workflowID. It fails with a
// SIGNER_SERIALIZATION invariant violation if the signer already has an
// in-flight transaction — including when workflowID itself already holds
// it, since reentrant acquisition is forbidden.
func (s *Serializer) Acquire(signer guard.SignerAddress, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.pending[signer]; held {
		return guard.ErrSignerSerialization(signer)
	}

	s.pending[signer] = &state{workflowID: workflowID, acquiredAt: time.Now()}
	return nil
}

// Release clears signer's slot if workflowID currently holds it. Releasing
// a slot the caller doesn't hold is a no-op — callers must not hold a
// signer lock across a retry sleep, so Release is always safe to call
// defensively.
func (s *Serializer) Release(signer guard.SignerAddress, workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, held := s.pending[signer]; held && cur.workflowID == workflowID {
		delete(s.pending, signer)
	}
}

// HeldBy reports which workflow, if any, currently holds signer's slot.
func (s *Serializer) HeldBy(signer guard.SignerAddress) (workflowID string, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.pending[signer]
	if !ok {
		return "", false
	}
	return cur.workflowID, true
}

var _ = (*Serializer)(nil) // satisfies guard.SignerSerializationGuard by method shape
