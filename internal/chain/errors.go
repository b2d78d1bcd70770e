// Copyright 2025 ChaosChain

package chain

import (
	"fmt"
	"strings"
)

// ChainError carries the classification the step runtime needs to decide
// retry vs. stall vs. fail, following a sentinel-plus-wrap pattern.
type ChainError struct {
	Class ErrorClass
	Op    string
	Cause error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain: %s (%s): %v", e.Op, e.Class, e.Cause)
}

func (e *ChainError) Unwrap() error { return e.Cause }

// classifySubmitError inspects a go-ethereum submission error and assigns
// it a retry class. Rejections (nonce too low, underpriced, known
// transaction) are the signer's or caller's fault and must not be
// retried blindly; insufficient funds and gas-limit errors are fatal;
// everything else is presumed transient network trouble.
func classifySubmitError(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "already known"),
		strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "underpriced"):
		return ClassRejected
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "exceeds block gas limit"),
		strings.Contains(msg, "intrinsic gas too low"):
		return ClassFatal
	default:
		return ClassTransient
	}
}
