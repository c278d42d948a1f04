// Package prometheus implements the observability hooks with Prometheus
// metrics. The collectors live in a private registry served by [Hooks.Handler].
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/stackaudit/pkg/observability"
)

const namespace = "stackaudit"

// Hooks records pipeline, audit, cache and HTTP client events.
type Hooks struct {
	registry *prometheus.Registry

	stages        *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runPackages   prometheus.Histogram
	vulnsFound    prometheus.Counter
	decisions     *prometheus.CounterVec
	severities    *prometheus.CounterVec
	cacheOps      *prometheus.CounterVec
	cacheBytes    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
	httpErrors    *prometheus.CounterVec
}

// New creates Hooks with a fresh registry including Go and process collectors.
func New() *Hooks {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := &Hooks{
		registry: reg,
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of analysis pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stages that finished with an error.",
		}, []string{"stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed analysis runs by outcome.",
		}, []string{"outcome"}),
		runPackages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_packages",
			Help:      "Packages per analysis run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		vulnsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vulnerabilities_found_total",
			Help:      "Vulnerability records reported across runs.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_decisions_total",
			Help:      "Package approval decisions by status and reason.",
		}, []string{"status", "reason"}),
		severities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vulnerabilities_by_severity_total",
			Help:      "Vulnerability records reported across runs by severity.",
		}, []string{"severity"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Cache lookups and writes by key type and result.",
		}, []string{"key_type", "result"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_written_bytes_total",
			Help:      "Bytes written to the cache.",
		}, []string{"key_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_client_requests_total",
			Help:      "Outgoing API requests by host and status code.",
		}, []string{"host", "code"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "Outgoing API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_client_errors_total",
			Help:      "Outgoing API requests that failed before a response.",
		}, []string{"host"}),
	}

	reg.MustRegister(
		h.stages, h.stageErrors, h.runs, h.runPackages, h.vulnsFound,
		h.decisions, h.severities,
		h.cacheOps, h.cacheBytes,
		h.httpRequests, h.httpDurations, h.httpErrors,
	)
	return h
}

// Register installs h as the pipeline, audit, cache and HTTP hooks.
func (h *Hooks) Register() {
	observability.SetPipelineHooks(h)
	observability.SetAuditHooks(h)
	observability.SetCacheHooks(h)
	observability.SetHTTPHooks(h)
}

// Registry returns the underlying registry.
func (h *Hooks) Registry() *prometheus.Registry { return h.registry }

// Handler serves the registry in the Prometheus exposition format.
func (h *Hooks) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}

func (h *Hooks) OnStageStart(context.Context, string) {}

func (h *Hooks) OnStageComplete(_ context.Context, stage string, d time.Duration, err error) {
	h.stages.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		h.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (h *Hooks) OnRunComplete(_ context.Context, packages, vulns int, _ time.Duration, err error) {
	if err != nil {
		h.runs.WithLabelValues("error").Inc()
		return
	}
	h.runs.WithLabelValues("ok").Inc()
	h.runPackages.Observe(float64(packages))
	h.vulnsFound.Add(float64(vulns))
}

// OnDecision counts a package decision. Reasons are a small fixed set, so
// they are safe as a label.
func (h *Hooks) OnDecision(_ context.Context, status, reason string) {
	if reason == "" {
		reason = "none"
	}
	h.decisions.WithLabelValues(status, reason).Inc()
}

func (h *Hooks) OnVulnerability(_ context.Context, severity string) {
	h.severities.WithLabelValues(severity).Inc()
}

func (h *Hooks) OnCacheHit(_ context.Context, keyType string) {
	h.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (h *Hooks) OnCacheMiss(_ context.Context, keyType string) {
	h.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (h *Hooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.cacheOps.WithLabelValues(keyType, "set").Inc()
	h.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (h *Hooks) OnCacheError(_ context.Context, keyType string, _ error) {
	h.cacheOps.WithLabelValues(keyType, "error").Inc()
}

func (h *Hooks) OnRequest(context.Context, string, string, string) {}

func (h *Hooks) OnResponse(_ context.Context, _, host, _ string, code int, d time.Duration) {
	h.httpRequests.WithLabelValues(host, statusLabel(code)).Inc()
	h.httpDurations.WithLabelValues(host).Observe(d.Seconds())
}

func (h *Hooks) OnError(_ context.Context, _, host, _ string, _ error) {
	h.httpErrors.WithLabelValues(host).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var (
	_ observability.PipelineHooks = (*Hooks)(nil)
	_ observability.CacheHooks    = (*Hooks)(nil)
	_ observability.HTTPHooks     = (*Hooks)(nil)
)
