package observability

import (
	"io"
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

// NewHistogram creates and registers a histogram.
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

// DefaultBuckets returns default histogram buckets for compile latency.
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
		}
	}
}

// ObserveDuration records a duration in the histogram.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) error {
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
	_, err := io.WriteString(w, b.String())
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeMetric(b *strings.Builder, name, metricType, help string, labels map[string]string, value float64) {
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " " + metricType + "\n")
	b.WriteString(name + formatLabels(labels) + " " + formatFloat(value) + "\n")
}

func writeHistogram(b *strings.Builder, h *Histogram) {
	b.WriteString("# HELP " + h.name + " " + h.help + "\n")
	b.WriteString("# TYPE " + h.name + " histogram\n")

	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		b.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.counts[i], 10) + "\n")
	}
	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	b.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
	b.WriteString(h.name + "_sum" + formatLabels(h.labels) + " " + formatFloat(h.sum) + "\n")
	b.WriteString(h.name + "_count" + formatLabels(h.labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, k+"=\""+labels[k]+"\"")
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

// DriverMetrics contains the compile driver's metrics. A nil *DriverMetrics
// is valid and records nothing.
type DriverMetrics struct {
	Registry *MetricsRegistry

	// Compilation
	CompilationsTotal    *Counter
	CompileSuccessTotal  *Counter
	CompileFailureTotal  *Counter
	CompileCanceledTotal *Counter
	CompileDuration      *Histogram
	DiagnosticsTotal     *Counter

	// File manager
	ListCallsTotal        *Counter
	ListingCacheHits      *Counter
	ListingCacheMisses    *Counter
	ListingInvalidations  *Counter
	OutputsTotal          *Counter
	GeneratedOutputsTotal *Counter
	OpenClassLoaders      *Gauge

	// Extensions
	ExtensionFailuresTotal *Counter
}

// NewDriverMetrics creates the driver metrics on a fresh registry.
func NewDriverMetrics() *DriverMetrics {
	r := NewMetricsRegistry()

	return &DriverMetrics{
		Registry: r,

		CompilationsTotal:    r.NewCounter("kiln_compilations_total", "Total compilations", nil),
		CompileSuccessTotal:  r.NewCounter("kiln_compile_success_total", "Successful compilations", nil),
		CompileFailureTotal:  r.NewCounter("kiln_compile_failure_total", "Failed compilations", nil),
		CompileCanceledTotal: r.NewCounter("kiln_compile_canceled_total", "Canceled compilations", nil),
		CompileDuration:      r.NewHistogram("kiln_compile_duration_seconds", "Compilation duration", nil, nil),
		DiagnosticsTotal:     r.NewCounter("kiln_diagnostics_total", "Diagnostics reported", nil),

		ListCallsTotal:        r.NewCounter("kiln_fm_list_calls_total", "File manager list calls", nil),
		ListingCacheHits:      r.NewCounter("kiln_listing_cache_hits_total", "Directory listing cache hits", nil),
		ListingCacheMisses:    r.NewCounter("kiln_listing_cache_misses_total", "Directory listing cache misses", nil),
		ListingInvalidations:  r.NewCounter("kiln_listing_invalidations_total", "Directory listings dropped after an output write", nil),
		OutputsTotal:          r.NewCounter("kiln_outputs_total", "Output files committed", nil),
		GeneratedOutputsTotal: r.NewCounter("kiln_generated_outputs_total", "Output files attributed to annotation processing", nil),
		OpenClassLoaders:      r.NewGauge("kiln_open_class_loaders", "Class loaders held by file managers", nil),

		ExtensionFailuresTotal: r.NewCounter("kiln_extension_failures_total", "Compiler extension failures", nil),
	}
}

// Outcome labels accepted by RecordCompilation.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// RecordCompilation records one finished compilation.
func (m *DriverMetrics) RecordCompilation(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.CompilationsTotal.Inc()
	m.CompileDuration.Observe(duration.Seconds())
	switch outcome {
	case OutcomeSucceeded:
		m.CompileSuccessTotal.Inc()
	case OutcomeCanceled:
		m.CompileCanceledTotal.Inc()
	default:
		m.CompileFailureTotal.Inc()
	}
}

// DiagnosticReported counts one diagnostic.
func (m *DriverMetrics) DiagnosticReported() {
	if m == nil {
		return
	}
	m.DiagnosticsTotal.Inc()
}

// ListCalled counts one file manager list call.
func (m *DriverMetrics) ListCalled() {
	if m == nil {
		return
	}
	m.ListCallsTotal.Inc()
}

// RecordListing adds a listing provider's cache counters.
func (m *DriverMetrics) RecordListing(hits, misses, invalidations int) {
	if m == nil {
		return
	}
	m.ListingCacheHits.Add(float64(hits))
	m.ListingCacheMisses.Add(float64(misses))
	m.ListingInvalidations.Add(float64(invalidations))
}

// OutputWritten counts one committed output.
func (m *DriverMetrics) OutputWritten(generated bool) {
	if m == nil {
		return
	}
	m.OutputsTotal.Inc()
	if generated {
		m.GeneratedOutputsTotal.Inc()
	}
}

// ClassLoaderOpened tracks a class loader created by a file manager.
func (m *DriverMetrics) ClassLoaderOpened() {
	if m == nil {
		return
	}
	m.OpenClassLoaders.Inc()
}

// ClassLoaderClosed tracks a class loader released by a file manager.
func (m *DriverMetrics) ClassLoaderClosed() {
	if m == nil {
		return
	}
	m.OpenClassLoaders.Dec()
}

// ExtensionFailed counts a compiler extension that failed.
func (m *DriverMetrics) ExtensionFailed() {
	if m == nil {
		return
	}
	m.ExtensionFailuresTotal.Inc()
}

var globalMetrics *DriverMetrics
var metricsOnce sync.Once

// Metrics returns the process-wide metrics instance.
func Metrics() *DriverMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewDriverMetrics()
	})
	return globalMetrics
}
