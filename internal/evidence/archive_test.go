// Copyright 2025 ChaosChain

package evidence

import (
	"context"
	"strings"
	"testing"
)

func TestDisabledArchiverArchivesWithoutNetwork(t *testing.T) {
	a := NewArchiver(nil, "", WithDisabled())
	pkg := BuildFromContent("0xstudio", "0xagent", 1, 0, []byte("payload"))

	id, err := a.ArchivePackage(context.Background(), "wf-1", pkg)
	if err != nil {
		t.Fatalf("unexpected error archiving with a disabled archiver: %v", err)
	}
	if !strings.Contains(id.String(), pkg.ContentHash) {
		t.Errorf("disabled archiver id %q does not reference the content hash %q", id.String(), pkg.ContentHash)
	}
}

func TestDisabledArchiverFetchFails(t *testing.T) {
	a := NewArchiver(nil, "", WithDisabled())
	if _, err := a.Fetch(context.Background(), "disabled:abc"); err == nil {
		t.Error("expected fetch against a disabled archiver to fail")
	}
}

func TestArchivePackageIsIdempotentOnContentHash(t *testing.T) {
	a := NewArchiver(nil, "", WithDisabled())
	pkg := BuildFromContent("0xstudio", "0xagent", 1, 0, []byte("payload"))

	id1, err := a.ArchivePackage(context.Background(), "wf-1", pkg)
	if err != nil {
		t.Fatalf("first archive: %v", err)
	}
	id2, err := a.ArchivePackage(context.Background(), "wf-2", pkg)
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if id1 != id2 {
		t.Errorf("archiving identical content from different workflows produced different ids: %s vs %s", id1, id2)
	}
}
