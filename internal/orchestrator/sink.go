package orchestrator

import (
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/metrics"
	"github.com/efebarandurmaz/kiln/internal/observability"
)

// recorder forwards to the request's sink and feeds the invocation's
// report, metrics, audit trail and span on the way.
type recorder struct {
	Sink
	invocationID string
	report       *metrics.CompileReport
	metrics      *observability.DriverMetrics
	audit        *observability.AuditLogger
	span         trace.Span

	errors   int
	warnings int
	// failures are the driver's own error messages.
	failures []string
	// rewrite maps processor stand-in names back to real names.
	rewrite func(string) string
}

var _ Sink = (*recorder)(nil)

func (r *recorder) Report(d compiler.Diagnostic) {
	switch d.Kind() {
	case compiler.DiagnosticError:
		r.errors++
	case compiler.DiagnosticWarning, compiler.DiagnosticMandatoryWarning:
		r.warnings++
	}
	r.report.AddDiagnostic(strings.ToLower(d.Kind().String()))
	r.metrics.DiagnosticReported()
	r.Sink.Report(d)
}

func (r *recorder) OutputWritten(out filemanager.Output) error {
	r.report.AddOutput(len(out.Content), out.Generated, out.Kind == compiler.KindClass)
	r.audit.LogOutput(r.invocationID, out.Path, len(out.Content), out.Generated, out.Sources)
	observability.AddOutputEvent(r.span, out.Path, out.Generated, len(out.Content))
	return r.Sink.OutputWritten(out)
}

func (r *recorder) SourceLoaded(uri string) {
	r.report.AddSource()
	r.Sink.SourceLoaded(uri)
}

// fail reports a single error diagnostic without a source position.
func (r *recorder) fail(text string) {
	text = r.text(text)
	r.failures = append(r.failures, text)
	r.Report(compiler.NewDiagnostic(compiler.DiagnosticError, text))
}

func (r *recorder) note(text string) {
	r.Report(compiler.NewDiagnostic(compiler.DiagnosticNote, text))
}

func (r *recorder) text(s string) string {
	if r.rewrite == nil {
		return s
	}
	return r.rewrite(s)
}
