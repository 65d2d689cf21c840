package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records counters and timings for warehouse load runs.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	records       *prometheus.CounterVec
	retries       *prometheus.CounterVec
	findings      *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_records_total",
		Help: "Records processed per entity and result.",
	}, []string{"entity", "result"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_retry_attempts_total",
		Help: "Retry attempts per storage operation.",
	}, []string{"operation"})
	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_quality_findings_total",
		Help: "Quality gate findings per severity.",
	}, []string{"severity"})
	reg.MustRegister(stageDuration, records, retries, findings)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		records:       records,
		retries:       retries,
		findings:      findings,
	}
}

// ObserveStageDuration records how long the named stage ran.
func (p *PipelineMetrics) ObserveStageDuration(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncRecords bumps the record counter for one entity/result pair.
func (p *PipelineMetrics) IncRecords(entity, result string, count int) {
	if p == nil || p.records == nil || count <= 0 {
		return
	}
	p.records.WithLabelValues(normalizeLabel(entity), normalizeLabel(result)).Add(float64(count))
}

// IncRetry records one retry attempt for the named operation.
func (p *PipelineMetrics) IncRetry(operation string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFinding records one quality finding of the given severity.
func (p *PipelineMetrics) IncFinding(severity string) {
	if p == nil || p.findings == nil {
		return
	}
	p.findings.WithLabelValues(normalizeLabel(severity)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
