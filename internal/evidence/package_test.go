// Copyright 2025 ChaosChain

package evidence

import (
	"bytes"
	"testing"
)

func TestBuildFromMessagesIsOrderInvariant(t *testing.T) {
	msgs := []Message{
		{Timestamp: 1, Content: []byte("first message")},
		{Timestamp: 2, Content: []byte("second message")},
		{Timestamp: 3, Content: []byte("third message")},
	}
	reversed := []Message{msgs[2], msgs[1], msgs[0]}

	pkg1 := BuildFromMessages("0xstudio", "0xagent", "conv-1", 7, 1000, msgs)
	pkg2 := BuildFromMessages("0xstudio", "0xagent", "conv-1", 7, 1000, reversed)

	if pkg1.ContentHash != pkg2.ContentHash {
		t.Errorf("content hash differs by message input order: %s vs %s", pkg1.ContentHash, pkg2.ContentHash)
	}
	if pkg1.Root() != pkg2.Root() {
		t.Errorf("root differs by message input order: %s vs %s", pkg1.Root(), pkg2.Root())
	}
}

func TestRootIsPureFunctionOfHeaderFieldsAndContentHash(t *testing.T) {
	pkg := BuildFromContent("0xstudio", "0xagent", 3, 500, []byte("payload"))
	r1 := pkg.Root()
	r2 := pkg.Root()
	if r1 != r2 {
		t.Error("Root must be deterministic across repeated calls")
	}

	other := BuildFromContent("0xstudio", "0xagent", 4, 500, []byte("payload"))
	if pkg.Root() == other.Root() {
		t.Error("changing epoch must change the root even with identical content")
	}
}

func TestRootChangesWithContent(t *testing.T) {
	a := BuildFromContent("0xstudio", "0xagent", 1, 0, []byte("content a"))
	b := BuildFromContent("0xstudio", "0xagent", 1, 0, []byte("content b"))
	if a.Root() == b.Root() {
		t.Error("different content must produce different roots")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	pkg := BuildFromMessages("0xstudio", "0xagent", "conv-9", 2, 123, []Message{
		{Timestamp: 1, Content: []byte("a")},
		{Timestamp: 2, Content: []byte("b")},
	})

	raw, err := pkg.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	back, err := DeserializePackage(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if back.Header.StudioAddress != pkg.Header.StudioAddress {
		t.Errorf("studio address mismatch: got %s, want %s", back.Header.StudioAddress, pkg.Header.StudioAddress)
	}
	if back.ContentHash != pkg.ContentHash {
		t.Errorf("content hash mismatch: got %s, want %s", back.ContentHash, pkg.ContentHash)
	}
	if !bytes.Equal(back.ContentBytes, pkg.ContentBytes) {
		t.Error("content bytes mismatch after round trip")
	}
}

func TestDeserializeRejectsTruncatedPackage(t *testing.T) {
	if _, err := DeserializePackage([]byte{1, 2}); err == nil {
		t.Error("expected error for a package shorter than the header length prefix")
	}
}
