// Copyright 2025 ChaosChain

package chain

import (
	"errors"
	"testing"
)

func TestClassifySubmitError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nonce too low", errors.New("nonce too low"), ClassRejected},
		{"already known", errors.New("already known"), ClassRejected},
		{"underpriced", errors.New("replacement transaction underpriced"), ClassRejected},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), ClassFatal},
		{"gas limit", errors.New("exceeds block gas limit"), ClassFatal},
		{"intrinsic gas", errors.New("intrinsic gas too low"), ClassFatal},
		{"unknown rpc error", errors.New("connection reset by peer"), ClassTransient},
		{"nil error", nil, ClassTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifySubmitError(tc.err); got != tc.want {
				t.Errorf("classifySubmitError(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestChainErrorUnwrap(t *testing.T) {
	cause := errors.New("rpc timeout")
	ce := &ChainError{Class: ClassTransient, Op: "submit", Cause: cause}
	if !errors.Is(ce, cause) {
		t.Error("ChainError must unwrap to its cause for errors.Is")
	}
}
