// Copyright 2025 ChaosChain
//
// Workflow engine: admits, schedules, resumes, and finalizes workflows
// of frozen types, driving the worker-pool-plus-persistent-queue shape
// over the three-type step descriptor dispatch in sequences.go.

package workflow

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/chaoschain/gateway/internal/audit"
	"github.com/chaoschain/gateway/internal/chain"
	"github.com/chaoschain/gateway/internal/config"
	"github.com/chaoschain/gateway/internal/evidence"
	"github.com/chaoschain/gateway/internal/guard"
	"github.com/chaoschain/gateway/internal/logging"
	"github.com/chaoschain/gateway/internal/metrics"
	"github.com/chaoschain/gateway/internal/nonce"
	"github.com/chaoschain/gateway/internal/reconcile"
	"github.com/chaoschain/gateway/internal/signer"
	"github.com/chaoschain/gateway/internal/step"
	"github.com/chaoschain/gateway/internal/store"
)

// Engine composes every lower-level component into the workflow
// lifecycle. It is the only component that references the rest by
// concrete type: it composes them but nothing below depends on Engine.
type Engine struct {
	repo            *store.Repository
	chainAdapter    *chain.Adapter
	nonceSerializer *nonce.Serializer
	archiver        *evidence.Archiver
	reconciler      *reconcile.Reconciler
	signers         *signer.Registry
	metricsSink     metrics.Sink
	audit           *audit.Trail
	log             *logging.Logger
	admission       *Admission
	runner          *step.Runner
	cfg             *config.Config

	workQueue chan string
	wg        sync.WaitGroup
}

// New builds an Engine from its component dependencies. sink and log
// default to no-op implementations if nil is passed, matching spec
// §4.10/§4.11's "defaults are no-op implementations" design note.
func New(
	repo *store.Repository,
	chainAdapter *chain.Adapter,
	nonceSerializer *nonce.Serializer,
	archiver *evidence.Archiver,
	reconciler *reconcile.Reconciler,
	signers *signer.Registry,
	sink metrics.Sink,
	trail *audit.Trail,
	log *logging.Logger,
	cfg *config.Config,
) *Engine {
	if sink == nil {
		sink = metrics.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	if trail == nil {
		trail = audit.New(nil, "", log, audit.WithDisabled())
	}

	e := &Engine{
		repo:            repo,
		chainAdapter:    chainAdapter,
		nonceSerializer: nonceSerializer,
		archiver:        archiver,
		reconciler:      reconciler,
		signers:         signers,
		metricsSink:     sink,
		audit:           trail,
		log:             log,
		admission:       NewAdmission(cfg.MaxWorkflowsTotal, cfg.MaxPerType),
		cfg:             cfg,
		workQueue:       make(chan string, 1024),
	}
	e.runner = step.NewRunner(repo, sink, log)
	return e
}

// Submit admits and persists a new workflow, then schedules it for
// execution. Admission failures never create a store record.
func (e *Engine) Submit(ctx context.Context, t guard.WorkflowType, signerAddr guard.SignerAddress, input interface{}) (string, error) {
	if err := e.admission.TryAdmit(t); err != nil {
		e.metricsSink.AdmissionRejected(string(t), err.(*AdmissionError).Code)
		return "", err
	}

	if !e.signers.IsAvailable(signerAddr) {
		e.admission.Release(t)
		e.metricsSink.AdmissionRejected(string(t), "SIGNER_NOT_FOUND")
		return "", &AdmissionError{Code: "SIGNER_NOT_FOUND", Message: fmt.Sprintf("signer %s is not registered", signerAddr)}
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		e.admission.Release(t)
		return "", fmt.Errorf("marshal workflow input: %w", err)
	}

	workflowID := uuid.NewString()
	w := store.Workflow{
		WorkflowID:    workflowID,
		Type:          string(t),
		SignerAddress: signerAddr.String(),
		Input:         inputJSON,
		State:         store.WorkflowCreated,
	}
	if err := e.repo.Create(ctx, w); err != nil {
		e.admission.Release(t)
		return "", err
	}
	e.metricsSink.WorkflowCreated(string(t))
	e.audit.Record(ctx, audit.Event{WorkflowID: workflowID, WorkflowType: string(t), Event: "CREATED", At: time.Now()})

	e.enqueue(workflowID)
	return workflowID, nil
}

func (e *Engine) enqueue(workflowID string) {
	select {
	case e.workQueue <- workflowID:
	default:
		e.log.Warn("work queue full, dropping enqueue; sweep will pick it up", logging.F("workflow_id", workflowID))
	}
}

// Get returns the current durable view of workflowID.
func (e *Engine) Get(ctx context.Context, workflowID string) (Record, error) {
	w, err := e.repo.Load(ctx, workflowID)
	if err != nil {
		return Record{}, err
	}
	return toRecord(w), nil
}

// List returns workflows matching filter.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	rows, err := e.repo.ListFiltered(ctx, store.ListFilter{State: filter.State, Type: filter.Type, Signer: filter.Signer})
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, w := range rows {
		out[i] = toRecord(w)
	}
	return out, nil
}

// Resume moves a STALLED workflow back to RUNNING and re-enqueues it.
// Resume itself does not query the chain: the resumed drive continues
// from the stalled step and runs Reconcile again only when it reaches
// that step (a stall at SubmitTx rewinds to it). It is idempotent:
// resuming a non-STALLED workflow is a no-op.
func (e *Engine) Resume(ctx context.Context, workflowID string) error {
	w, err := e.repo.Load(ctx, workflowID)
	if err != nil {
		return err
	}
	if store.WorkflowState(w.State) != store.WorkflowStalled {
		return nil
	}
	if err := e.repo.UpdateState(ctx, workflowID, store.WorkflowRunning, store.UpdateStateFields{}); err != nil {
		return err
	}
	e.metricsSink.WorkflowResumed(w.Type)
	e.audit.Record(ctx, audit.Event{WorkflowID: workflowID, WorkflowType: w.Type, Event: "RESUMED", At: time.Now()})
	e.enqueue(workflowID)
	return nil
}

// Start launches the worker pool, resumes non-terminal workflows found
// on boot, and begins the periodic reconciliation sweep. It blocks until
// ctx is cancelled.
func (e *Engine) Start(ctx context.Context, workerCount int) error {
	if err := e.resumeOnBoot(ctx); err != nil {
		return fmt.Errorf("resume on boot: %w", err)
	}

	for i := 0; i < workerCount; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	e.wg.Add(1)
	go e.sweepLoop(ctx)

	<-ctx.Done()
	e.wg.Wait()
	return nil
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case workflowID := <-e.workQueue:
			e.drive(ctx, workflowID)
		}
	}
}

// resumeOnBoot loads every non-terminal workflow, rebuilds the in-memory
// admission counts those workflows already occupy, and enqueues each to
// resume from its persisted CurrentStep; no reconciliation runs here, and
// a workflow already past SubmitTx is not reconciled again on resume.
// Admission's counters start at zero on
// every process start, so without this rebuild a restart with N in-flight
// workflows would under-count concurrency by N until they terminate.
func (e *Engine) resumeOnBoot(ctx context.Context) error {
	for _, state := range []store.WorkflowState{store.WorkflowCreated, store.WorkflowRunning, store.WorkflowStalled} {
		rows, err := e.repo.ListByState(ctx, state)
		if err != nil {
			return err
		}
		for _, w := range rows {
			e.admission.Restore(guard.WorkflowType(w.Type))
			e.enqueue(w.WorkflowID)
		}
	}
	return nil
}

// sweepLoop periodically resumes STALLED workflows whose last activity
// is older than the reconcile sweep interval.
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ReconcileSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := e.repo.ListStuck(ctx, time.Now().Add(-e.cfg.ReconcileSweep))
			if err != nil {
				e.log.Error("sweep list stuck failed", logging.F("error", err.Error()))
				continue
			}
			for _, w := range stuck {
				if store.WorkflowState(w.State) == store.WorkflowStalled {
					if err := e.Resume(ctx, w.WorkflowID); err != nil {
						e.log.Error("sweep resume failed", logging.F("workflow_id", w.WorkflowID), logging.F("error", err.Error()))
					}
				}
			}
		}
	}
}

// drive runs a workflow's step sequence to a terminal or stalled
// outcome, persisting workflow-level state after every step. It holds a
// session-scoped Postgres advisory lock on workflowID for its duration so
// two engine instances never drive the same workflow concurrently.
func (e *Engine) drive(ctx context.Context, workflowID string) {
	conn, err := e.repo.Conn(ctx)
	if err != nil {
		e.log.Error("drive: acquire conn failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
		return
	}
	defer conn.Close()

	locked, err := e.repo.TryLockWorkflow(ctx, conn, workflowID)
	if err != nil {
		e.log.Error("drive: advisory lock failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
		return
	}
	if !locked {
		// Another engine instance already holds this workflow; re-enqueue
		// so it is retried rather than silently dropped.
		e.log.Warn("drive: workflow locked by another instance", logging.F("workflow_id", workflowID))
		e.enqueue(workflowID)
		return
	}
	defer func() {
		if err := e.repo.UnlockWorkflow(ctx, conn, workflowID); err != nil {
			e.log.Error("drive: advisory unlock failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
		}
	}()

	w, err := e.repo.Load(ctx, workflowID)
	if err != nil {
		e.log.Error("drive: load failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
		return
	}
	if store.WorkflowState(w.State).Terminal() {
		return
	}

	t := guard.WorkflowType(w.Type)
	signerAddr, err := guard.NewSignerAddress(w.SignerAddress)
	if err != nil {
		e.failWorkflow(ctx, w, "INVALID_SIGNER_ADDRESS")
		return
	}

	if w.State == string(store.WorkflowCreated) {
		if err := e.repo.UpdateState(ctx, workflowID, store.WorkflowRunning, store.UpdateStateFields{}); err != nil {
			e.log.Error("drive: transition to running failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
			return
		}
		e.metricsSink.WorkflowStarted(string(t))
	}

	st := &execState{workflowID: workflowID, workflowType: t, signer: signerAddr}
	if err := e.rehydratePendingTx(ctx, workflowID, st); err != nil {
		e.log.Warn("rehydrate pending tx failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
	}
	if err := e.rehydrateEvidence(ctx, workflowID, st); err != nil {
		e.log.Warn("rehydrate evidence failed", logging.F("workflow_id", workflowID), logging.F("error", err.Error()))
	}

	sequence, err := e.sequenceFor(t, w.Input, st)
	if err != nil {
		e.failWorkflow(ctx, w, "INVALID_INPUT")
		return
	}

	startIdx := resumeIndex(sequence, w.CurrentStep)
	for i := startIdx; i < len(sequence); i++ {
		d := sequence[i]

		if prior, err := e.repo.LoadStep(ctx, workflowID, d.Name); err == nil && prior.State == store.StepSucceeded && !d.AlwaysRerun {
			continue // already durable from a prior attempt; idempotent resume
		}

		result := e.runner.Execute(ctx, workflowID, string(t), d)
		switch result.Outcome {
		case step.OutcomeSucceeded:
			next := ""
			if i+1 < len(sequence) {
				next = sequence[i+1].Name
			}
			_ = e.repo.UpdateState(ctx, workflowID, store.WorkflowRunning, store.UpdateStateFields{CurrentStep: &next})
			continue
		case step.OutcomeStalled:
			e.stallWorkflow(ctx, w, d.Name, result.LastError)
			return
		case step.OutcomeFailed:
			e.finishFailed(ctx, w, result.LastError)
			return
		}
	}

	e.finishCompleted(ctx, w, st)
}

func (e *Engine) sequenceFor(t guard.WorkflowType, inputJSON json.RawMessage, st *execState) ([]step.Descriptor, error) {
	switch t {
	case guard.WorkSubmission:
		var in workSubmissionWire
		if err := json.Unmarshal(inputJSON, &in); err != nil {
			return nil, err
		}
		decoded, err := in.decode()
		if err != nil {
			return nil, err
		}
		return e.workSubmissionSequence(decoded, st), nil
	case guard.ScoreSubmission:
		var in scoreSubmissionWire
		if err := json.Unmarshal(inputJSON, &in); err != nil {
			return nil, err
		}
		decoded, err := in.decode()
		if err != nil {
			return nil, err
		}
		return e.scoreSubmissionSequence(decoded, st), nil
	case guard.CloseEpoch:
		var in closeEpochWire
		if err := json.Unmarshal(inputJSON, &in); err != nil {
			return nil, err
		}
		decoded, err := in.decode()
		if err != nil {
			return nil, err
		}
		return e.closeEpochSequence(decoded, st), nil
	default:
		return nil, guard.AssertFrozenWorkflowType(t)
	}
}

func indexOfStep(sequence []step.Descriptor, name string) int {
	if name == "" {
		return 0
	}
	for i, d := range sequence {
		if d.Name == name {
			return i
		}
	}
	return 0
}

// resumeIndex is indexOfStep with one adjustment: resuming directly into
// "SubmitTx" would otherwise skip straight past "Reconcile" and carry a
// zero-value lastReconciledAt into AssertReconciliationPerformed forever.
// Whenever a workflow's persisted CurrentStep is "SubmitTx", rewind to the
// nearest preceding "Reconcile" so reconciliation always runs fresh before
// a retried submission.
func resumeIndex(sequence []step.Descriptor, name string) int {
	idx := indexOfStep(sequence, name)
	if sequence[idx].Name != "SubmitTx" {
		return idx
	}
	for i := idx - 1; i >= 0; i-- {
		if sequence[i].Name == "Reconcile" {
			return i
		}
	}
	return idx
}

// rehydratePendingTx reconstructs a signer's pending-chain slot from the
// durable SubmitTx step record, needed for restart recovery (S6): the
// in-memory pendingTx is lost on crash, but the step output persists the
// tx hash the reconciler needs.
func (e *Engine) rehydratePendingTx(ctx context.Context, workflowID string, st *execState) error {
	s, err := e.repo.LoadStep(ctx, workflowID, "SubmitTx")
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(s.Output) == 0 {
		return nil
	}

	var out struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.Unmarshal(s.Output, &out); err != nil || out.TxHash == "" {
		return nil
	}
	hash, err := guard.NewTxHash(out.TxHash)
	if err != nil {
		return nil
	}

	submittedAt := time.Now()
	if s.StartedAt != nil {
		submittedAt = *s.StartedAt
	}
	st.pendingTx = &reconcile.PendingSlot{TxHash: hash, SubmittedAt: submittedAt}
	st.txHash = hash
	return nil
}

// rehydrateEvidence restores BuildEvidence/ArchiveEvidence/ComputeRoot's
// durable step outputs into a fresh execState, the same recovery need
// rehydratePendingTx serves for SubmitTx. Without this, a drive() resuming
// past BuildEvidence has a nil st.pkg: ArchiveEvidence and ComputeRoot
// dereference it directly when resumed mid-sequence, and RecordResult
// silently drops Root/StorageTxID when resumed after ComputeRoot.
func (e *Engine) rehydrateEvidence(ctx context.Context, workflowID string, st *execState) error {
	build, err := e.repo.LoadStep(ctx, workflowID, "BuildEvidence")
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if build.State != store.StepSucceeded || len(build.Output) == 0 {
		return nil
	}
	var buildOut struct {
		Package string `json:"package"`
	}
	if err := json.Unmarshal(build.Output, &buildOut); err != nil || buildOut.Package == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(buildOut.Package)
	if err != nil {
		return nil
	}
	pkg, err := evidence.DeserializePackage(raw)
	if err != nil {
		return nil
	}
	st.pkg = &pkg
	st.hasEvidence = true

	if archive, err := e.repo.LoadStep(ctx, workflowID, "ArchiveEvidence"); err == nil &&
		archive.State == store.StepSucceeded && len(archive.Output) > 0 {
		var archiveOut struct {
			StorageTxID string `json:"storage_tx_id"`
		}
		if json.Unmarshal(archive.Output, &archiveOut) == nil && archiveOut.StorageTxID != "" {
			if id, err := guard.NewStorageTxID(archiveOut.StorageTxID); err == nil {
				st.storageTxID = id
			}
		}
	}

	if root, err := e.repo.LoadStep(ctx, workflowID, "ComputeRoot"); err == nil &&
		root.State == store.StepSucceeded && len(root.Output) > 0 {
		var rootOut struct {
			Root string `json:"root"`
		}
		if json.Unmarshal(root.Output, &rootOut) == nil && rootOut.Root != "" {
			st.root = rootOut.Root
		}
	}
	return nil
}

func (e *Engine) stallWorkflow(ctx context.Context, w store.Workflow, stepName, reason string) {
	name := stepName
	_ = e.repo.UpdateState(ctx, w.WorkflowID, store.WorkflowStalled, store.UpdateStateFields{CurrentStep: &name})
	e.metricsSink.WorkflowStalled(w.Type, reason)
	e.audit.Record(ctx, audit.Event{WorkflowID: w.WorkflowID, WorkflowType: w.Type, Step: name, Event: "STALLED", Detail: reason, At: time.Now()})
}

func (e *Engine) finishFailed(ctx context.Context, w store.Workflow, code string) {
	e.failWorkflow(ctx, w, code)
}

func (e *Engine) failWorkflow(ctx context.Context, w store.Workflow, code string) {
	errCode := code
	_ = e.repo.UpdateState(ctx, w.WorkflowID, store.WorkflowFailed, store.UpdateStateFields{ErrorCode: &errCode})
	e.metricsSink.WorkflowFailed(w.Type, code)
	e.audit.Record(ctx, audit.Event{WorkflowID: w.WorkflowID, WorkflowType: w.Type, Event: "FAILED", Detail: code, At: time.Now()})
	e.admission.Release(guard.WorkflowType(w.Type))
}

func (e *Engine) finishCompleted(ctx context.Context, w store.Workflow, st *execState) {
	result := recordResultOutput{TxHash: st.txHash.String()}
	if st.pkg != nil {
		result.Root = st.root
		result.StorageTxID = st.storageTxID.String()
	}
	if st.receipt != nil {
		result.BlockNumber = st.receipt.BlockNumber
	}
	resultJSON, _ := json.Marshal(result)

	_ = e.repo.UpdateState(ctx, w.WorkflowID, store.WorkflowCompleted, store.UpdateStateFields{Result: resultJSON})
	e.metricsSink.WorkflowCompleted(w.Type)
	e.audit.Record(ctx, audit.Event{WorkflowID: w.WorkflowID, WorkflowType: w.Type, Event: "COMPLETED", Detail: string(resultJSON), At: time.Now()})
	e.admission.Release(guard.WorkflowType(w.Type))
}

func toRecord(w store.Workflow) Record {
	return Record{
		WorkflowID:   w.WorkflowID,
		Type:         guard.WorkflowType(w.Type),
		State:        string(w.State),
		CurrentStep:  w.CurrentStep,
		AttemptCount: w.AttemptCount,
		Result:       w.Result,
		ErrorCode:    w.ErrorCode,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

// wire types decode json.RawMessage workflow input into the typed Input
// structs sequences.go consumes, translating pre-signed RLP hex into a
// *types.Transaction.

type workSubmissionWire struct {
	StudioAddress  string   `json:"studio_address"`
	Epoch          uint64   `json:"epoch"`
	AgentAddress   string   `json:"agent_address"`
	ConversationID string   `json:"conversation_id"`
	Messages       []string `json:"messages"`
	SignedTxRLPHex string   `json:"signed_tx_rlp_hex"`
}

func (w workSubmissionWire) decode() (WorkSubmissionInput, error) {
	tx, err := decodeSignedTx(w.SignedTxRLPHex)
	if err != nil {
		return WorkSubmissionInput{}, err
	}
	msgs := make([][]byte, len(w.Messages))
	for i, m := range w.Messages {
		msgs[i] = []byte(m)
	}
	return WorkSubmissionInput{
		StudioAddress:  w.StudioAddress,
		Epoch:          w.Epoch,
		AgentAddress:   w.AgentAddress,
		ConversationID: w.ConversationID,
		Messages:       msgs,
		SignedTx:       tx,
	}, nil
}

type scoreSubmissionWire struct {
	SignedTxRLPHex string `json:"signed_tx_rlp_hex"`
}

func (w scoreSubmissionWire) decode() (ScoreSubmissionInput, error) {
	tx, err := decodeSignedTx(w.SignedTxRLPHex)
	if err != nil {
		return ScoreSubmissionInput{}, err
	}
	return ScoreSubmissionInput{SignedTx: tx}, nil
}

type closeEpochWire struct {
	SignedTxRLPHex string `json:"signed_tx_rlp_hex"`
}

func (w closeEpochWire) decode() (CloseEpochInput, error) {
	tx, err := decodeSignedTx(w.SignedTxRLPHex)
	if err != nil {
		return CloseEpochInput{}, err
	}
	return CloseEpochInput{SignedTx: tx}, nil
}

func decodeSignedTx(rlpHex string) (*types.Transaction, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(rlpHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signed tx hex: %w", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal signed tx: %w", err)
	}
	return tx, nil
}
