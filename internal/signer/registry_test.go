// Copyright 2025 ChaosChain

package signer

import (
	"testing"

	"github.com/chaoschain/gateway/internal/guard"
)

func mustAddr(t *testing.T, raw string) guard.SignerAddress {
	t.Helper()
	addr, err := guard.NewSignerAddress(raw)
	if err != nil {
		t.Fatalf("build signer address: %v", err)
	}
	return addr
}

func TestRegisterAndIsAvailable(t *testing.T) {
	r := NewRegistry()
	addr := mustAddr(t, "0x01")

	if r.IsAvailable(addr) {
		t.Error("unregistered signer should not be available")
	}
	r.Register(addr)
	if !r.IsAvailable(addr) {
		t.Error("registered signer should be available")
	}
}

func TestDeregister(t *testing.T) {
	r := NewRegistry()
	addr := mustAddr(t, "0x02")
	r.Register(addr)
	r.Deregister(addr)
	if r.IsAvailable(addr) {
		t.Error("deregistered signer should no longer be available")
	}
}

func TestGetReturnsNilForUnknownSigner(t *testing.T) {
	r := NewRegistry()
	addr := mustAddr(t, "0x03")
	if h := r.Get(addr); h != nil {
		t.Error("expected nil handle for an unregistered signer")
	}
	r.Register(addr)
	if h := r.Get(addr); h == nil || h.Address != addr {
		t.Error("expected a handle matching the registered address")
	}
}

func TestList(t *testing.T) {
	r := NewRegistry()
	a1 := mustAddr(t, "0x04")
	a2 := mustAddr(t, "0x05")
	r.Register(a1)
	r.Register(a2)

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 registered signers, got %d", len(list))
	}
}
