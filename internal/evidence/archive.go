// Copyright 2025 ChaosChain
//
// Content-addressed evidence archival on Google Cloud Storage: an
// Enabled flag, a functional-options constructor, and a thin wrapper
// struct around cloud.google.com/go/storage. Archival here is genuinely
// content-addressed — the object key is "evidence/" plus the package's
// content hash (the SHA-256 of its concatenated frames), not an
// application-assigned document ID.

package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/chaoschain/gateway/internal/guard"
)

// Archiver persists evidence frames to content-addressed object storage
// and returns the StorageTxID the workflow record points at.
type Archiver struct {
	bucket  *gcs.BucketHandle
	enabled bool
}

// ArchiverOption configures an Archiver at construction time.
type ArchiverOption func(*Archiver)

// WithDisabled builds a no-op archiver, for tests and for operators who
// have not yet provisioned a bucket: calls succeed trivially instead of
// requiring callers to nil-check.
func WithDisabled() ArchiverOption {
	return func(a *Archiver) { a.enabled = false }
}

// NewArchiver builds an Archiver against bucketName using client.
func NewArchiver(client *gcs.Client, bucketName string, opts ...ArchiverOption) *Archiver {
	a := &Archiver{enabled: true}
	for _, opt := range opts {
		opt(a)
	}
	if a.enabled {
		a.bucket = client.Bucket(bucketName)
	}
	return a
}

// ArchivePackage archives a fully built evidence Package and returns its
// content-addressed StorageTxID. The object key is the package's content
// hash, so archiving the same package twice is idempotent (testable
// property 7) — the second write overwrites an identical object, and
// resuming a workflow after a stall never re-archives.
func (a *Archiver) ArchivePackage(ctx context.Context, workflowID string, pkg Package) (guard.StorageTxID, error) {
	guard.EvidenceOnly()

	serialized, err := pkg.Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize evidence package: %w", err)
	}

	if !a.enabled {
		return guard.NewStorageTxID("disabled:" + pkg.ContentHash)
	}

	obj := a.bucket.Object(objectKey(pkg.ContentHash))
	w := obj.NewWriter(ctx)
	w.ObjectAttrs.ContentType = "application/octet-stream"
	w.ObjectAttrs.Metadata = map[string]string{
		"ChaosChain-Version":     pkg.Header.Version,
		"ChaosChain-Studio":      pkg.Header.StudioAddress,
		"ChaosChain-Epoch":       fmt.Sprintf("%d", pkg.Header.Epoch),
		"ChaosChain-Agent":       pkg.Header.AgentAddress,
		"ChaosChain-ContentHash": "0x" + pkg.ContentHash,
		"workflow_id":            workflowID,
		"archived_at":            time.Now().UTC().Format(time.RFC3339Nano),
	}

	if _, err := io.Copy(w, bytes.NewReader(serialized)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write evidence object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close evidence writer: %w", err)
	}

	return guard.NewStorageTxID(objectKey(pkg.ContentHash))
}

// Fetch retrieves a previously archived package by its StorageTxID.
func (a *Archiver) Fetch(ctx context.Context, id guard.StorageTxID) (Package, error) {
	guard.EvidenceOnly()

	if !a.enabled {
		return Package{}, fmt.Errorf("archiver disabled, cannot fetch %s", id)
	}

	r, err := a.bucket.Object(id.String()).NewReader(ctx)
	if err != nil {
		return Package{}, fmt.Errorf("open evidence object %s: %w", id, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return Package{}, fmt.Errorf("read evidence object %s: %w", id, err)
	}
	return DeserializePackage(raw)
}

func objectKey(hash string) string {
	return "evidence/" + hash
}
