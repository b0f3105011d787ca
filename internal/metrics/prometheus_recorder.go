package metrics

import (
	"net/http"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cvtailor"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry          *prom.Registry
	stageDuration     *prom.HistogramVec
	stageResults      *prom.CounterVec
	cacheLookups      *prom.CounterVec
	collaboratorCalls *prom.HistogramVec
	droppedProposals  *prom.CounterVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage results by outcome",
		}, []string{"stage", "result"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Stage cache lookups by outcome",
		}, []string{"stage", "outcome"}),
		collaboratorCalls: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_duration_seconds",
			Help:      "Duration of calls to external collaborators",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"collaborator", "result"}),
		droppedProposals: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_proposals_total",
			Help:      "Change proposals dropped during validation or patching",
		}, []string{"reason"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.cacheLookups, pr.collaboratorCalls, pr.droppedProposals)
	return pr
}

// Handler serves the registry the recorder writes to.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(stage string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.cacheLookups.WithLabelValues(stage, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveCollaboratorCall(collaborator string, d time.Duration, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	p.collaboratorCalls.WithLabelValues(collaborator, result).Observe(d.Seconds())
}

// IncDroppedProposals keys the counter by the reason class; per-id suffixes
// such as "overlaps p2" are collapsed to keep label cardinality bounded.
func (p *PrometheusRecorder) IncDroppedProposals(reason string, n int) {
	if n <= 0 {
		return
	}
	if i := strings.IndexByte(reason, ' '); i > 0 && strings.HasPrefix(reason, "overlaps") {
		reason = reason[:i]
	}
	p.droppedProposals.WithLabelValues(reason).Add(float64(n))
}
