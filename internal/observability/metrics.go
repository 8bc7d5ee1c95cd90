package observability

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets select
// DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns latency buckets sized for embedding, vector store
// and model round trips.
func DefaultBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter.
func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
}

// ObserveDuration records the time elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler returns an HTTP handler for Prometheus metrics.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name
// within each metric type.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(&b, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(&b, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(&b, h)
		h.mu.Unlock()
	}
	io.WriteString(w, b.String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeHeader(b *strings.Builder, name, metricType, help string) {
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " " + metricType + "\n")
}

func writeMetric(b *strings.Builder, name, metricType, help string, labels map[string]string, value float64) {
	writeHeader(b, name, metricType, help)
	b.WriteString(name + formatLabels(labels) + " " + formatFloat(value) + "\n")
}

func writeHistogram(b *strings.Builder, h *Histogram) {
	writeHeader(b, h.name, "histogram", h.help)

	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		b.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + formatUint(cumulative) + "\n")
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	b.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + formatUint(h.count) + "\n")

	b.WriteString(h.name + "_sum" + formatLabels(h.labels) + " " + formatFloat(h.sum) + "\n")
	b.WriteString(h.name + "_count" + formatLabels(h.labels) + " " + formatUint(h.count) + "\n")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, k+"="+strconv.Quote(labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	result := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		result[k] = v
	}
	return result
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// ServiceMetrics is the metric set exported by the medrag service.
type ServiceMetrics struct {
	Registry *MetricsRegistry

	// Knowledge base questions
	QueriesTotal     *Counter
	QueryRefusals    *Counter
	QueryErrorsTotal *Counter
	KnowledgeDocs    *Gauge
	KnowledgeReloads *Counter

	// Patient history
	IngestTotal       *Counter
	IngestErrorsTotal *Counter
	InsightsTotal     *Counter
	InsightFallbacks  *Counter
	InsightNoHistory  *Counter
	EvidenceItems     *Histogram

	// Model calls
	LLMRequestsTotal   *Counter
	LLMRequestDuration *Histogram
	LLMTokensTotal     *Counter
	LLMErrorsTotal     *Counter
}

// NewServiceMetrics creates the medrag metric set on a fresh registry.
func NewServiceMetrics() *ServiceMetrics {
	r := NewMetricsRegistry()

	return &ServiceMetrics{
		Registry: r,

		QueriesTotal:     r.NewCounter("medrag_queries_total", "Knowledge base questions answered", nil),
		QueryRefusals:    r.NewCounter("medrag_query_refusals_total", "Questions refused for lack of context", nil),
		QueryErrorsTotal: r.NewCounter("medrag_query_errors_total", "Questions that failed", nil),
		KnowledgeDocs:    r.NewGauge("medrag_knowledge_documents", "Documents in the knowledge base collection", nil),
		KnowledgeReloads: r.NewCounter("medrag_knowledge_reloads_total", "Knowledge base reloads", nil),

		IngestTotal:       r.NewCounter("medrag_prescriptions_ingested_total", "Prescriptions stored as history records", nil),
		IngestErrorsTotal: r.NewCounter("medrag_prescription_errors_total", "Prescriptions that failed to ingest", nil),
		InsightsTotal:     r.NewCounter("medrag_insights_total", "History insights generated", nil),
		InsightFallbacks:  r.NewCounter("medrag_insight_fallbacks_total", "Insights answered by the local fallback", nil),
		InsightNoHistory:  r.NewCounter("medrag_insight_no_history_total", "Insights with no stored history", nil),
		EvidenceItems:     r.NewHistogram("medrag_insight_evidence_items", "History items used per insight", nil, []float64{0, 1, 2, 3, 4, 5, 6, 10}),

		LLMRequestsTotal:   r.NewCounter("medrag_llm_requests_total", "Total LLM API requests", nil),
		LLMRequestDuration: r.NewHistogram("medrag_llm_request_duration_seconds", "LLM request duration", nil, nil),
		LLMTokensTotal:     r.NewCounter("medrag_llm_tokens_total", "Total tokens used", nil),
		LLMErrorsTotal:     r.NewCounter("medrag_llm_errors_total", "Total LLM errors", nil),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *ServiceMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordLLMRequest records an LLM request.
func (m *ServiceMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordQuery records a knowledge base answer.
func (m *ServiceMetrics) RecordQuery(refused bool, err error) {
	m.QueriesTotal.Inc()
	switch {
	case err != nil:
		m.QueryErrorsTotal.Inc()
	case refused:
		m.QueryRefusals.Inc()
	}
}

// RecordIngest records a prescription ingestion attempt.
func (m *ServiceMetrics) RecordIngest(err error) {
	if err != nil {
		m.IngestErrorsTotal.Inc()
		return
	}
	m.IngestTotal.Inc()
}

// RecordInsight records an insight and how it was produced.
func (m *ServiceMetrics) RecordInsight(evidence int, fallback bool) {
	m.InsightsTotal.Inc()
	m.EvidenceItems.Observe(float64(evidence))
	if evidence == 0 {
		m.InsightNoHistory.Inc()
		return
	}
	if fallback {
		m.InsightFallbacks.Inc()
	}
}

// RecordKnowledgeReload records a reload and the resulting document count.
func (m *ServiceMetrics) RecordKnowledgeReload(documents int) {
	m.KnowledgeReloads.Inc()
	m.KnowledgeDocs.Set(float64(documents))
}
