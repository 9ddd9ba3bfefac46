package observability

import (
	"strings"
	"testing"
	"time"
)

func render(t *testing.T, r *MetricsRegistry) string {
	t.Helper()
	var b strings.Builder
	if err := r.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	return b.String()
}

func TestNewMetricsRegistry(t *testing.T) {
	r := NewMetricsRegistry()
	if r == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestCounter_Inc(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_counter", "Test counter", nil)

	c.Inc()
	c.Inc()
	c.Inc()

	if c.Value() != 3 {
		t.Fatalf("expected 3, got %f", c.Value())
	}
}

func TestCounter_Add(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_counter", "Test counter", nil)

	c.Add(5)
	c.Add(3.5)

	if c.Value() != 8.5 {
		t.Fatalf("expected 8.5, got %f", c.Value())
	}
}

func TestGauge_Set(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.NewGauge("test_gauge", "Test gauge", nil)

	g.Set(42)
	if g.Value() != 42 {
		t.Fatalf("expected 42, got %f", g.Value())
	}

	g.Set(10)
	if g.Value() != 10 {
		t.Fatalf("expected 10, got %f", g.Value())
	}
}

func TestGauge_IncDec(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.NewGauge("test_gauge", "Test gauge", nil)

	g.Inc()
	g.Inc()
	g.Dec()

	if g.Value() != 1 {
		t.Fatalf("expected 1, got %f", g.Value())
	}
}

func TestGauge_Add(t *testing.T) {
	r := NewMetricsRegistry()
	g := r.NewGauge("test_gauge", "Test gauge", nil)

	g.Add(10)
	g.Add(-3)

	if g.Value() != 7 {
		t.Fatalf("expected 7, got %f", g.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_histogram", "Test histogram", nil, []float64{1, 5, 10})

	h.Observe(0.5)
	h.Observe(3)
	h.Observe(7)
	h.Observe(15)

	if h.count != 4 {
		t.Fatalf("expected count 4, got %d", h.count)
	}
	if h.sum != 25.5 {
		t.Fatalf("expected sum 25.5, got %f", h.sum)
	}
}

func TestHistogram_ObserveDuration(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_histogram", "Test histogram", nil, nil)

	start := time.Now().Add(-100 * time.Millisecond)
	h.ObserveDuration(start)

	if h.count != 1 {
		t.Fatalf("expected count 1, got %d", h.count)
	}
	if h.sum < 0.1 {
		t.Fatalf("expected sum >= 0.1, got %f", h.sum)
	}
}

func TestDefaultBuckets(t *testing.T) {
	buckets := DefaultBuckets()
	if len(buckets) == 0 {
		t.Fatal("expected non-empty buckets")
	}
	// Should be in ascending order
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			t.Fatal("buckets should be in ascending order")
		}
	}
}

func TestMetricsRegistry_WritePrometheus(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("test_counter", "A test counter", nil).Inc()
	r.NewGauge("test_gauge", "A test gauge", nil).Set(42)

	body := render(t, r)

	if !strings.Contains(body, "test_counter") {
		t.Fatal("expected test_counter in output")
	}
	if !strings.Contains(body, "test_gauge") {
		t.Fatal("expected test_gauge in output")
	}
	if !strings.Contains(body, "# HELP") {
		t.Fatal("expected HELP comments")
	}
	if !strings.Contains(body, "# TYPE") {
		t.Fatal("expected TYPE comments")
	}
}

func TestMetricsWithLabels(t *testing.T) {
	r := NewMetricsRegistry()
	labels := map[string]string{"method": "POST", "path": "/api"}
	c := r.NewCounter("http_requests", "HTTP requests", labels)
	c.Inc()

	body := render(t, r)
	if !strings.Contains(body, `method="POST"`) {
		t.Fatal("expected method label in output")
	}
	if !strings.Contains(body, `path="/api"`) {
		t.Fatal("expected path label in output")
	}
}

func TestHistogramOutput(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("request_duration", "Request duration", nil, []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)

	body := render(t, r)
	if !strings.Contains(body, "request_duration_bucket") {
		t.Fatal("expected bucket metrics")
	}
	if !strings.Contains(body, "request_duration_sum") {
		t.Fatal("expected sum metric")
	}
	if !strings.Contains(body, "request_duration_count") {
		t.Fatal("expected count metric")
	}
	if !strings.Contains(body, `le="+Inf"`) {
		t.Fatal("expected +Inf bucket")
	}
}

func TestHistogramOutput_CumulativeBuckets(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("compile_seconds", "Compile time", nil, []float64{1, 5})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(9)

	var b strings.Builder
	if err := r.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	body := b.String()
	for _, want := range []string{
		`compile_seconds_bucket{le="1"} 1`,
		`compile_seconds_bucket{le="5"} 2`,
		`compile_seconds_bucket{le="+Inf"} 3`,
		`compile_seconds_count 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}
}

func TestWritePrometheus_SortedByName(t *testing.T) {
	r := NewMetricsRegistry()
	r.NewCounter("zeta_total", "Z", nil)
	r.NewCounter("alpha_total", "A", nil)

	var b strings.Builder
	if err := r.WritePrometheus(&b); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	body := b.String()
	if strings.Index(body, "alpha_total") > strings.Index(body, "zeta_total") {
		t.Fatal("expected counters sorted by name")
	}
}

func TestNewDriverMetrics(t *testing.T) {
	m := NewDriverMetrics()
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.Registry == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestDriverMetrics_RecordCompilation(t *testing.T) {
	m := NewDriverMetrics()

	m.RecordCompilation(2*time.Second, OutcomeSucceeded)
	m.RecordCompilation(3*time.Second, OutcomeFailed)
	m.RecordCompilation(time.Second, OutcomeCanceled)

	if m.CompilationsTotal.Value() != 3 {
		t.Fatalf("expected 3 compilations, got %f", m.CompilationsTotal.Value())
	}
	if m.CompileSuccessTotal.Value() != 1 {
		t.Fatalf("expected 1 success, got %f", m.CompileSuccessTotal.Value())
	}
	if m.CompileFailureTotal.Value() != 1 {
		t.Fatalf("expected 1 failure, got %f", m.CompileFailureTotal.Value())
	}
	if m.CompileCanceledTotal.Value() != 1 {
		t.Fatalf("expected 1 canceled, got %f", m.CompileCanceledTotal.Value())
	}
	if m.CompileDuration.Count() != 3 {
		t.Fatalf("expected 3 duration observations, got %d", m.CompileDuration.Count())
	}
}

func TestDriverMetrics_FileManagerCounters(t *testing.T) {
	m := NewDriverMetrics()

	m.ListCalled()
	m.ListCalled()
	m.RecordListing(4, 2, 1)
	m.OutputWritten(false)
	m.OutputWritten(true)
	m.ClassLoaderOpened()
	m.ClassLoaderOpened()
	m.ClassLoaderClosed()

	if m.ListCallsTotal.Value() != 2 {
		t.Fatalf("expected 2 list calls, got %f", m.ListCallsTotal.Value())
	}
	if m.ListingCacheHits.Value() != 4 || m.ListingCacheMisses.Value() != 2 || m.ListingInvalidations.Value() != 1 {
		t.Fatal("unexpected listing counters")
	}
	if m.OutputsTotal.Value() != 2 {
		t.Fatalf("expected 2 outputs, got %f", m.OutputsTotal.Value())
	}
	if m.GeneratedOutputsTotal.Value() != 1 {
		t.Fatalf("expected 1 generated output, got %f", m.GeneratedOutputsTotal.Value())
	}
	if m.OpenClassLoaders.Value() != 1 {
		t.Fatalf("expected 1 open class loader, got %f", m.OpenClassLoaders.Value())
	}
}

func TestDriverMetrics_NilIsNoop(t *testing.T) {
	var m *DriverMetrics

	m.RecordCompilation(time.Second, OutcomeSucceeded)
	m.DiagnosticReported()
	m.ListCalled()
	m.RecordListing(1, 1, 1)
	m.OutputWritten(true)
	m.ClassLoaderOpened()
	m.ClassLoaderClosed()
	m.ExtensionFailed()
}

func TestDriverMetrics_Prometheus(t *testing.T) {
	m := NewDriverMetrics()
	m.OutputWritten(false)

	body := render(t, m.Registry)
	if !strings.Contains(body, "kiln_outputs_total 1") {
		t.Fatalf("expected kiln metrics in output, got:\n%s", body)
	}
}

func TestGlobalMetrics(t *testing.T) {
	m := Metrics()
	if m == nil {
		t.Fatal("expected non-nil global metrics")
	}

	// Should return same instance
	m2 := Metrics()
	if m != m2 {
		t.Fatal("expected same instance")
	}
}

func TestFormatLabels(t *testing.T) {
	if result := formatLabels(nil); result != "" {
		t.Fatalf("expected empty string, got %s", result)
	}
	if result := formatLabels(map[string]string{}); result != "" {
		t.Fatalf("expected empty string, got %s", result)
	}
	got := formatLabels(map[string]string{"tool": "refc", "outcome": "failed"})
	if got != `{outcome="failed",tool="refc"}` {
		t.Fatalf("unexpected labels %s", got)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{42, "42"},
		{1.5, "1.5"},
		{0.25, "0.25"},
	}

	for _, tt := range tests {
		result := formatFloat(tt.input)
		if result != tt.expected {
			t.Errorf("formatFloat(%f) = %s, expected %s", tt.input, result, tt.expected)
		}
	}
}
