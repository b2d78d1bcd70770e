// Copyright 2025 ChaosChain
//
// Evidence framing and content addressing. The engine never parses
// contentBytes — guard.EvidenceOnly() marks every function in this file
// as bound by that rule. Frame format:
// [timestamp:u64 BE][length:u32 BE][content bytes].

package evidence

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/chaoschain/gateway/internal/guard"
)

// Frame is a single opaque evidence record ready for archival.
type Frame struct {
	Timestamp time.Time
	Content   []byte
}

// Encode serializes f to the fixed wire frame: an 8-byte big-endian unix
// nanosecond timestamp, a 4-byte big-endian content length, then the
// content bytes verbatim.
func Encode(f Frame) []byte {
	guard.EvidenceOnly()

	out := make([]byte, 8+4+len(f.Content))
	binary.BigEndian.PutUint64(out[0:8], uint64(f.Timestamp.UnixNano()))
	binary.BigEndian.PutUint32(out[8:12], uint32(len(f.Content)))
	copy(out[12:], f.Content)
	return out
}

// Decode parses a wire frame produced by Encode.
func Decode(raw []byte) (Frame, error) {
	guard.EvidenceOnly()

	if len(raw) < 12 {
		return Frame{}, fmt.Errorf("evidence frame too short: %d bytes", len(raw))
	}
	ts := binary.BigEndian.Uint64(raw[0:8])
	length := binary.BigEndian.Uint32(raw[8:12])
	if int(length) != len(raw)-12 {
		return Frame{}, fmt.Errorf("evidence frame length mismatch: header says %d, have %d", length, len(raw)-12)
	}
	return Frame{
		Timestamp: time.Unix(0, int64(ts)),
		Content:   raw[12:],
	}, nil
}

// ContentHash returns the hex-encoded SHA-256 digest of encoded frame
// bytes. Taken over a package's concatenated frames it is the package's
// content hash: the content address in its archival object key and an
// input to root computation.
func ContentHash(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
