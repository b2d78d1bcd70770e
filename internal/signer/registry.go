// Copyright 2025 ChaosChain
//
// Signer registry. Validates existence of an externally-provided signer;
// it never selects one. There is deliberately no ListAvailable-style
// "pick me a signer" API anywhere in this package: the gateway never
// chooses signers or rotates keys on a caller's behalf.

package signer

import (
	"sync"

	"github.com/chaoschain/gateway/internal/guard"
)

// Handle is an opaque reference to a registered signer. The engine never
// inspects its contents beyond checking it is non-nil.
type Handle struct {
	Address guard.SignerAddress
}

// Registry holds the set of signers the operator has made available to
// the gateway. It is populated out-of-band (configuration, operator API)
// and is read-only from the engine's perspective.
type Registry struct {
	mu      sync.RWMutex
	signers map[guard.SignerAddress]*Handle
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{signers: make(map[guard.SignerAddress]*Handle)}
}

// Register adds a signer to the registry. Intended for startup wiring and
// operator-driven key provisioning, not for the engine to call.
func (r *Registry) Register(addr guard.SignerAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[addr] = &Handle{Address: addr}
}

// Deregister removes a signer from the registry.
func (r *Registry) Deregister(addr guard.SignerAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.signers, addr)
}

// IsAvailable reports whether addr is a known, registered signer.
func (r *Registry) IsAvailable(addr guard.SignerAddress) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.signers[addr]
	return ok
}

// Get returns the handle for addr, or nil if it is not registered. It
// never returns "a signer" without an address being supplied first.
func (r *Registry) Get(addr guard.SignerAddress) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.signers[addr]
}

// List returns every registered signer address.
func (r *Registry) List() []guard.SignerAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]guard.SignerAddress, 0, len(r.signers))
	for addr := range r.signers {
		out = append(out, addr)
	}
	return out
}
