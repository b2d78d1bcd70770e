// Copyright 2025 ChaosChain

package guard

// SignerSerializationGuard is the contract enforced by the nonce
// serializer: at most one in-flight transaction per signer at any time,
// and no reentrant acquisition by the same workflow. See internal/nonce
// for the concrete implementation.
type SignerSerializationGuard interface {
	Acquire(signer SignerAddress, workflowID string) error
	Release(signer SignerAddress, workflowID string)
}

// ErrSignerSerialization is the invariant violation raised when a signer
// already has an in-flight transaction.
func ErrSignerSerialization(signer SignerAddress) error {
	return &InvariantViolation{
		Invariant: "SIGNER_SERIALIZATION",
		Details:   "signer " + signer.String() + " already has an in-flight transaction",
	}
}
