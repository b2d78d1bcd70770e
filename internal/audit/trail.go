// Copyright 2025 ChaosChain
//
// Optional Firestore audit trail. The gateway's core persistence is
// Postgres (internal/store); this is a supplemental, best-effort mirror
// of workflow lifecycle events for operators who want a queryable
// timeline outside the primary store. Failure to write an audit record
// never fails a workflow step — it is logged and dropped.

package audit

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/chaoschain/gateway/internal/logging"
)

// Event is a single audit record for a workflow lifecycle transition.
type Event struct {
	WorkflowID   string
	WorkflowType string
	Step         string
	Event        string
	Detail       string
	At           time.Time
}

// Trail writes Events to a Firestore collection. A disabled Trail
// accepts every call and does nothing, so callers never need to
// nil-check it.
type Trail struct {
	client     *firestore.Client
	collection string
	enabled    bool
	log        *logging.Logger
}

// Option configures a Trail at construction time.
type Option func(*Trail)

// WithDisabled builds a no-op Trail.
func WithDisabled() Option {
	return func(t *Trail) { t.enabled = false }
}

// New builds a Trail writing to collection via client.
func New(client *firestore.Client, collection string, log *logging.Logger, opts ...Option) *Trail {
	t := &Trail{client: client, collection: collection, enabled: true, log: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends ev to the audit trail. Errors are logged, not returned:
// the audit trail is a supplemental mirror, not the system of record, and
// must never become a reason a workflow stalls or fails.
func (t *Trail) Record(ctx context.Context, ev Event) {
	if !t.enabled {
		return
	}

	docID := ev.WorkflowID + "-" + ev.Step + "-" + ev.Event
	_, err := t.client.Collection(t.collection).Doc(docID).Set(ctx, map[string]interface{}{
		"workflow_id":   ev.WorkflowID,
		"workflow_type": ev.WorkflowType,
		"step":          ev.Step,
		"event":         ev.Event,
		"detail":        ev.Detail,
		"at":            ev.At,
	})
	if err != nil {
		t.log.Warn("audit trail write failed", logging.F("workflow_id", ev.WorkflowID), logging.F("error", err.Error()))
	}
}

// Close releases the underlying Firestore client.
func (t *Trail) Close() error {
	if !t.enabled || t.client == nil {
		return nil
	}
	return t.client.Close()
}
