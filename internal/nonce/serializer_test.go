// Copyright 2025 ChaosChain

package nonce

import (
	"testing"

	"github.com/chaoschain/gateway/internal/guard"
)

func mustSigner(t *testing.T, raw string) guard.SignerAddress {
	t.Helper()
	addr, err := guard.NewSignerAddress(raw)
	if err != nil {
		t.Fatalf("build signer address: %v", err)
	}
	return addr
}

func TestSerializerAcquireReleaseRoundTrip(t *testing.T) {
	s := NewSerializer()
	signer := mustSigner(t, "0x01")

	if err := s.Acquire(signer, "wf-1"); err != nil {
		t.Fatalf("unexpected error acquiring free signer: %v", err)
	}

	if holder, held := s.HeldBy(signer); !held || holder != "wf-1" {
		t.Errorf("expected wf-1 to hold signer, got holder=%q held=%v", holder, held)
	}

	s.Release(signer, "wf-1")
	if _, held := s.HeldBy(signer); held {
		t.Error("expected signer to be free after release")
	}
}

func TestSerializerRejectsSecondAcquireBySameWorkflow(t *testing.T) {
	s := NewSerializer()
	signer := mustSigner(t, "0x02")

	if err := s.Acquire(signer, "wf-1"); err != nil {
		t.Fatalf("unexpected error on first acquire: %v", err)
	}
	if err := s.Acquire(signer, "wf-1"); err == nil {
		t.Error("expected reentrant acquisition by the same workflow to fail")
	}
}

func TestSerializerRejectsAcquireByDifferentWorkflow(t *testing.T) {
	s := NewSerializer()
	signer := mustSigner(t, "0x03")

	if err := s.Acquire(signer, "wf-1"); err != nil {
		t.Fatalf("unexpected error on first acquire: %v", err)
	}
	if err := s.Acquire(signer, "wf-2"); err == nil {
		t.Error("expected acquisition by a second workflow to fail while the first is in flight")
	}
}

func TestSerializerReleaseByNonHolderIsNoOp(t *testing.T) {
	s := NewSerializer()
	signer := mustSigner(t, "0x04")

	if err := s.Acquire(signer, "wf-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Release(signer, "wf-2") // not the holder
	if holder, held := s.HeldBy(signer); !held || holder != "wf-1" {
		t.Errorf("expected wf-1 to still hold signer, got holder=%q held=%v", holder, held)
	}
}
