// Package prom implements the observability hooks with Prometheus collectors.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/easygithub/easygithub/pkg/observability"
)

// Metrics holds the collectors and implements every hook interface.
type Metrics struct {
	stageTotal    *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec

	llmTotal    *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec

	cacheEvents *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_pipeline_stage_total",
			Help: "Pipeline stage executions by stage and cache result.",
		}, []string{"stage", "cache"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_pipeline_stage_errors_total",
			Help: "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "easygithub_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		llmTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_llm_completions_total",
			Help: "Model completion calls by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_llm_tokens_total",
			Help: "Tokens consumed by direction.",
		}, []string{"provider", "model", "direction"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "easygithub_llm_completion_duration_seconds",
			Help:    "Model completion latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_cache_events_total",
			Help: "Cache hits, misses and writes by key type.",
		}, []string{"key_type", "event"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_cache_written_bytes_total",
			Help: "Bytes written to the cache by key type.",
		}, []string{"key_type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_http_client_requests_total",
			Help: "Outgoing HTTP requests by host and status.",
		}, []string{"host", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "easygithub_http_client_duration_seconds",
			Help:    "Outgoing HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easygithub_http_client_errors_total",
			Help: "Outgoing HTTP requests that failed before a response.",
		}, []string{"host"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.stageTotal, m.stageErrors, m.stageDuration,
			m.llmTotal, m.llmTokens, m.llmDuration,
			m.cacheEvents, m.cacheBytes,
			m.httpRequests, m.httpDuration, m.httpErrors,
		)
	}
	return m
}

// Install registers m as every global hook.
func (m *Metrics) Install() {
	observability.SetPipelineHooks(m)
	observability.SetLLMHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
}

func (m *Metrics) OnStageStart(context.Context, string, string) {}

func (m *Metrics) OnStageComplete(_ context.Context, stage, _ string, cached bool, d time.Duration, err error) {
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
		return
	}
	result := "miss"
	if cached {
		result = "hit"
	}
	m.stageTotal.WithLabelValues(stage, result).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) OnCompletion(_ context.Context, provider, model string, in, out int, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.llmTotal.WithLabelValues(provider, model, outcome).Inc()
	m.llmDuration.WithLabelValues(provider).Observe(d.Seconds())
	if in > 0 {
		m.llmTokens.WithLabelValues(provider, model, "input").Add(float64(in))
	}
	if out > 0 {
		m.llmTokens.WithLabelValues(provider, model, "output").Add(float64(out))
	}
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheEvents.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(host, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.httpErrors.WithLabelValues(host).Inc()
}

func statusClass(code int) string {
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
	_ observability.PipelineHooks = (*Metrics)(nil)
	_ observability.LLMHooks      = (*Metrics)(nil)
	_ observability.CacheHooks    = (*Metrics)(nil)
	_ observability.HTTPHooks     = (*Metrics)(nil)
)
