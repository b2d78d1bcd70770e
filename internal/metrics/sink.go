// Copyright 2025 ChaosChain
//
// Write-only metrics sink. The engine calls Sink methods; it never reads
// them back. The fixed event vocabulary below is the only surface — there
// is no generic "record arbitrary metric" escape hatch.

package metrics

// Sink is the write-only observability interface the engine depends on.
type Sink interface {
	WorkflowCreated(workflowType string)
	WorkflowStarted(workflowType string)
	WorkflowCompleted(workflowType string)
	WorkflowFailed(workflowType, errorCode string)
	WorkflowStalled(workflowType, reason string)
	WorkflowResumed(workflowType string)

	StepStarted(workflowType, stepName string)
	StepCompleted(workflowType, stepName string)
	StepRetried(workflowType, stepName string)
	StepTimedOut(workflowType, stepName string)

	TxSubmitted(workflowType string)
	TxConfirmed(workflowType string)
	TxReverted(workflowType string)
	TxNotFound(workflowType string)

	AdmissionRejected(workflowType, reason string)
	ReconciliationRan(workflowType string)
}

// Nop is the default Sink: every call is a no-op, following the same
// "Enabled: false" client pattern used elsewhere in this codebase of shipping a
// safe, inert default rather than requiring every caller to nil-check.
type Nop struct{}

func (Nop) WorkflowCreated(string)          {}
func (Nop) WorkflowStarted(string)          {}
func (Nop) WorkflowCompleted(string)        {}
func (Nop) WorkflowFailed(string, string)   {}
func (Nop) WorkflowStalled(string, string)  {}
func (Nop) WorkflowResumed(string)          {}
func (Nop) StepStarted(string, string)      {}
func (Nop) StepCompleted(string, string)    {}
func (Nop) StepRetried(string, string)      {}
func (Nop) StepTimedOut(string, string)     {}
func (Nop) TxSubmitted(string)              {}
func (Nop) TxConfirmed(string)              {}
func (Nop) TxReverted(string)               {}
func (Nop) TxNotFound(string)               {}
func (Nop) AdmissionRejected(string, string) {}
func (Nop) ReconciliationRan(string)         {}

var _ Sink = Nop{}
