package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "verifybuild"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	buildDuration *prom.HistogramVec
	cloneDuration *prom.HistogramVec
	verifications *prom.CounterVec
	remoteSubmits *prom.CounterVec
	remotePolls   *prom.CounterVec
	provenanceTx  *prom.CounterVec
	teardowns     *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "build_duration_seconds",
		Help:      "Duration of sandboxed builds",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
	}, []string{"outcome"})
	pr.cloneDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "clone_duration_seconds",
		Help:      "Duration of source repository clones",
		Buckets:   prom.DefBuckets,
	}, []string{"result"})
	pr.verifications = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Verification results by outcome",
	}, []string{"result"})
	pr.remoteSubmits = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "remote_submissions_total",
		Help:      "Remote job submissions by outcome",
	}, []string{"outcome"})
	pr.remotePolls = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "remote_polls_total",
		Help:      "Remote job status polls by observed status",
	}, []string{"status"})
	pr.provenanceTx = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "provenance_transactions_total",
		Help:      "Provenance transactions by instruction and outcome",
	}, []string{"instruction", "outcome"})
	pr.teardowns = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "teardowns_total",
		Help:      "Released external resources by kind and result",
	}, []string{"kind", "result"})
	reg.MustRegister(pr.buildDuration, pr.cloneDuration, pr.verifications, pr.remoteSubmits, pr.remotePolls, pr.provenanceTx, pr.teardowns)
	return pr
}

// Registry returns the registry the metrics were registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

// WriteTextfile writes the current metric values in the node-exporter textfile format.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration, outcome Outcome) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveCloneDuration(d time.Duration, success bool) {
	if p == nil || p.cloneDuration == nil {
		return
	}
	p.cloneDuration.WithLabelValues(resultLabel(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncVerification(result VerificationResult) {
	if p == nil || p.verifications == nil {
		return
	}
	p.verifications.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncRemoteSubmission(outcome string) {
	if p == nil || p.remoteSubmits == nil {
		return
	}
	p.remoteSubmits.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRemotePoll(status string) {
	if p == nil || p.remotePolls == nil {
		return
	}
	p.remotePolls.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncProvenanceTransaction(instruction string, outcome Outcome) {
	if p == nil || p.provenanceTx == nil {
		return
	}
	p.provenanceTx.WithLabelValues(instruction, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncTeardown(kind string, success bool) {
	if p == nil || p.teardowns == nil {
		return
	}
	p.teardowns.WithLabelValues(kind, resultLabel(success)).Inc()
}
