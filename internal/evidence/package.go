// Copyright 2025 ChaosChain
//
// EvidencePackage construction. The builder never inspects message
// content — guard.EvidenceOnly() marks every function here as bound by
// that rule. Message transcripts arrive as an opaque MessageSource the
// caller wires; this package only hashes, sorts, frames, and serializes.

package evidence

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/chaoschain/gateway/internal/guard"
)

func unixToTime(unixNano int64) time.Time {
	return time.Unix(0, unixNano)
}

// Header is the fixed metadata prefix of an evidence package.
type Header struct {
	Version        string `json:"version"`
	StudioAddress  string `json:"studioAddress"`
	Epoch          uint64 `json:"epoch"`
	AgentAddress   string `json:"agentAddress"`
	ConversationID string `json:"conversationId,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	MessageCount   int    `json:"messageCount"`
}

// Message is one opaque transcript entry fetched from a conversation.
// Content is never parsed by the engine.
type Message struct {
	Timestamp int64
	Content   []byte
}

// Package is a fully built, not-yet-archived evidence package.
type Package struct {
	Header       Header
	ContentHash  string
	ContentBytes []byte
}

const packageVersion = "1.0.0"

// BuildFromMessages assembles a Package from a set of opaque messages,
// sorting by each message's own content-hash lexicographically before
// hashing so the resulting root is deterministic regardless of the
// order messages arrived in. Changing this order (for example to
// chronological) is a breaking change: it alters the root of every
// package built from more than one message.
func BuildFromMessages(studio, agent, conversationID string, epoch uint64, now int64, messages []Message) Package {
	guard.EvidenceOnly()

	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.Slice(sorted, func(i, j int) bool {
		return messageHash(sorted[i]) < messageHash(sorted[j])
	})

	var contentBytes []byte
	for _, m := range sorted {
		contentBytes = append(contentBytes, Encode(frameFor(m))...)
	}

	return Package{
		Header: Header{
			Version:        packageVersion,
			StudioAddress:  studio,
			Epoch:          epoch,
			AgentAddress:   agent,
			ConversationID: conversationID,
			Timestamp:      now,
			MessageCount:   len(messages),
		},
		ContentHash:  ContentHash(contentBytes),
		ContentBytes: contentBytes,
	}
}

// BuildFromContent is the single-frame variant of BuildFromMessages, for
// workflows that already hold one opaque evidence blob rather than a
// conversation transcript.
func BuildFromContent(studio, agent string, epoch uint64, now int64, content []byte) Package {
	guard.EvidenceOnly()
	return BuildFromMessages(studio, agent, "", epoch, now, []Message{{Timestamp: now, Content: content}})
}

func frameFor(m Message) Frame {
	return Frame{Timestamp: unixToTime(m.Timestamp), Content: m.Content}
}

func messageHash(m Message) string {
	sum := sha256.Sum256(m.Content)
	return hex.EncodeToString(sum[:])
}

// Serialize produces the bit-exact wire layout:
// [headerLen:u32 BE][headerJSON UTF-8][contentHashUtf8][contentBytes].
func (p Package) Serialize() ([]byte, error) {
	headerJSON, err := json.Marshal(p.Header)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence header: %w", err)
	}

	out := make([]byte, 4, 4+len(headerJSON)+len(p.ContentHash)+len(p.ContentBytes))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, []byte(p.ContentHash)...)
	out = append(out, p.ContentBytes...)
	return out, nil
}

// DeserializePackage parses the wire layout produced by Serialize.
func DeserializePackage(raw []byte) (Package, error) {
	if len(raw) < 4 {
		return Package{}, fmt.Errorf("evidence package too short: %d bytes", len(raw))
	}
	headerLen := binary.BigEndian.Uint32(raw[0:4])
	if int(4+headerLen) > len(raw) {
		return Package{}, fmt.Errorf("evidence package header length out of range: %d", headerLen)
	}

	var header Header
	if err := json.Unmarshal(raw[4:4+headerLen], &header); err != nil {
		return Package{}, fmt.Errorf("unmarshal evidence header: %w", err)
	}

	rest := raw[4+headerLen:]
	const hashHexLen = sha256.Size * 2
	if len(rest) < hashHexLen {
		return Package{}, fmt.Errorf("evidence package missing content hash")
	}

	return Package{
		Header:       header,
		ContentHash:  string(rest[:hashHexLen]),
		ContentBytes: rest[hashHexLen:],
	}, nil
}

// Root computes the on-chain evidence root:
// SHA-256(studioAddress ‖ epoch-decimal ‖ agentAddress ‖ contentHash),
// hex-prefixed 0x. It is a pure function of (studio, epoch, agent,
// contentHash).
func (p Package) Root() string {
	h := sha256.New()
	h.Write([]byte(p.Header.StudioAddress))
	h.Write([]byte(fmt.Sprintf("%d", p.Header.Epoch)))
	h.Write([]byte(p.Header.AgentAddress))
	h.Write([]byte(p.ContentHash))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
