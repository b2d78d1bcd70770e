// Copyright 2025 ChaosChain
//
// Prometheus-backed metrics Sink: a handful of CounterVecs registered
// against a private Registry and served on a dedicated mux.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Sink by incrementing counters in a private
// registry. Engine code never queries these counters back; only the
// /metrics HTTP handler reads them, and that handler is driven by an
// external scraper, not by the engine.
type Prometheus struct {
	registry *prometheus.Registry

	workflowsByState  *prometheus.CounterVec
	stepsByOutcome    *prometheus.CounterVec
	txByOutcome       *prometheus.CounterVec
	admissionRejected *prometheus.CounterVec
	reconciliationRan *prometheus.CounterVec
}

// NewPrometheus builds a Prometheus sink with its own registry so that
// gateway metrics never collide with anything else registered in-process.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()

	p := &Prometheus{
		registry: reg,
		workflowsByState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_workflows_total",
			Help: "Workflow lifecycle transitions by type and event.",
		}, []string{"type", "event"}),
		stepsByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_steps_total",
			Help: "Step lifecycle transitions by workflow type, step name, and event.",
		}, []string{"type", "step", "event"}),
		txByOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tx_total",
			Help: "On-chain transaction outcomes by workflow type.",
		}, []string{"type", "event"}),
		admissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_admission_rejected_total",
			Help: "Admission rejections by workflow type and reason.",
		}, []string{"type", "reason"}),
		reconciliationRan: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_reconciliation_runs_total",
			Help: "Reconciliation invocations by workflow type.",
		}, []string{"type"}),
	}

	reg.MustRegister(p.workflowsByState, p.stepsByOutcome, p.txByOutcome, p.admissionRejected, p.reconciliationRan)
	return p
}

// Handler returns the HTTP handler serving this sink's registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) WorkflowCreated(t string)   { p.workflowsByState.WithLabelValues(t, "created").Inc() }
func (p *Prometheus) WorkflowStarted(t string)   { p.workflowsByState.WithLabelValues(t, "started").Inc() }
func (p *Prometheus) WorkflowCompleted(t string) { p.workflowsByState.WithLabelValues(t, "completed").Inc() }
func (p *Prometheus) WorkflowFailed(t, code string) {
	p.workflowsByState.WithLabelValues(t, "failed:"+code).Inc()
}
func (p *Prometheus) WorkflowStalled(t, reason string) {
	p.workflowsByState.WithLabelValues(t, "stalled:"+reason).Inc()
}
func (p *Prometheus) WorkflowResumed(t string) { p.workflowsByState.WithLabelValues(t, "resumed").Inc() }

func (p *Prometheus) StepStarted(t, step string)   { p.stepsByOutcome.WithLabelValues(t, step, "started").Inc() }
func (p *Prometheus) StepCompleted(t, step string) { p.stepsByOutcome.WithLabelValues(t, step, "completed").Inc() }
func (p *Prometheus) StepRetried(t, step string)   { p.stepsByOutcome.WithLabelValues(t, step, "retried").Inc() }
func (p *Prometheus) StepTimedOut(t, step string)  { p.stepsByOutcome.WithLabelValues(t, step, "timed_out").Inc() }

func (p *Prometheus) TxSubmitted(t string) { p.txByOutcome.WithLabelValues(t, "submitted").Inc() }
func (p *Prometheus) TxConfirmed(t string) { p.txByOutcome.WithLabelValues(t, "confirmed").Inc() }
func (p *Prometheus) TxReverted(t string)  { p.txByOutcome.WithLabelValues(t, "reverted").Inc() }
func (p *Prometheus) TxNotFound(t string)  { p.txByOutcome.WithLabelValues(t, "not_found").Inc() }

func (p *Prometheus) AdmissionRejected(t, reason string) {
	p.admissionRejected.WithLabelValues(t, reason).Inc()
}
func (p *Prometheus) ReconciliationRan(t string) { p.reconciliationRan.WithLabelValues(t).Inc() }

var _ Sink = (*Prometheus)(nil)
