// Copyright 2025 ChaosChain
//
// Package guard provides branded identifier constructors and invariant
// assertions for the workflow engine. Creation is the only constructor for
// each identifier type; the engine never parses one back apart.
// F.4 remediation: explicit errors instead of nil, nil.

package guard

import (
	"encoding/hex"
	"strings"
)

// SignerAddress is a lowercased hex-encoded signer address. It is never
// interchangeable with any other branded identifier.
type SignerAddress string

// NewSignerAddress validates and lowercases a hex address.
func NewSignerAddress(raw string) (SignerAddress, error) {
	if raw == "" {
		return "", &InvariantViolation{Invariant: "signer_address_non_empty", Details: "address is empty"}
	}
	trimmed := strings.TrimPrefix(raw, "0x")
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", &InvariantViolation{Invariant: "signer_address_hex", Details: "address is not valid hex: " + err.Error()}
	}
	return SignerAddress("0x" + strings.ToLower(trimmed)), nil
}

func (a SignerAddress) String() string { return string(a) }

// ConversationID identifies an opaque agent conversation transcript.
type ConversationID string

// NewConversationID validates non-empty conversation identifiers.
func NewConversationID(raw string) (ConversationID, error) {
	if raw == "" {
		return "", &InvariantViolation{Invariant: "conversation_id_non_empty", Details: "conversation id is empty"}
	}
	return ConversationID(raw), nil
}

func (c ConversationID) String() string { return string(c) }

// MessageID identifies a single opaque message within a conversation.
type MessageID string

// NewMessageID validates non-empty message identifiers.
func NewMessageID(raw string) (MessageID, error) {
	if raw == "" {
		return "", &InvariantViolation{Invariant: "message_id_non_empty", Details: "message id is empty"}
	}
	return MessageID(raw), nil
}

func (m MessageID) String() string { return string(m) }

// StorageTxID identifies an immutable archival record in content-addressed
// storage. Produced only by the evidence archiver.
type StorageTxID string

// NewStorageTxID validates non-empty storage transaction identifiers.
func NewStorageTxID(raw string) (StorageTxID, error) {
	if raw == "" {
		return "", &InvariantViolation{Invariant: "storage_tx_id_non_empty", Details: "storage tx id is empty"}
	}
	return StorageTxID(raw), nil
}

func (s StorageTxID) String() string { return string(s) }

// TxHash identifies an on-chain transaction hash.
type TxHash string

// NewTxHash validates a hex-encoded, 0x-prefixed transaction hash.
func NewTxHash(raw string) (TxHash, error) {
	if raw == "" {
		return "", &InvariantViolation{Invariant: "tx_hash_non_empty", Details: "tx hash is empty"}
	}
	trimmed := strings.TrimPrefix(raw, "0x")
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", &InvariantViolation{Invariant: "tx_hash_hex", Details: "tx hash is not valid hex: " + err.Error()}
	}
	return TxHash("0x" + strings.ToLower(trimmed)), nil
}

func (t TxHash) String() string { return string(t) }
