// Package metrics builds the per-invocation compile report.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// CompileReport collects statistics for one compiler invocation.
type CompileReport struct {
	InvocationID string         `json:"invocation_id"`
	Tool         string         `json:"tool"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at,omitempty"`
	Duration     time.Duration  `json:"duration_ms,omitempty"`
	Outcome      string         `json:"outcome"`
	Units        int            `json:"units"`
	Processors   []string       `json:"processors,omitempty"`
	Diagnostics  map[string]int `json:"diagnostics"`
	Outputs      OutputMetrics  `json:"outputs"`
	Sources      int            `json:"loaded_sources"`
	Extensions   []PhaseMetrics `json:"extensions,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
}

type OutputMetrics struct {
	Files      int `json:"files"`
	Generated  int `json:"generated"`
	Classes    int `json:"classes"`
	TotalBytes int `json:"total_bytes"`
}

type PhaseMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Failed   bool          `json:"failed"`
}

// New starts tracking an invocation.
func New(invocationID, tool string) *CompileReport {
	return &CompileReport{
		InvocationID: invocationID,
		Tool:         tool,
		StartedAt:    time.Now(),
		Diagnostics:  make(map[string]int),
	}
}

// AddDiagnostic counts one diagnostic of kind.
func (r *CompileReport) AddDiagnostic(kind string) {
	r.Diagnostics[kind]++
}

// AddOutput records one committed output.
func (r *CompileReport) AddOutput(size int, generated, class bool) {
	r.Outputs.Files++
	r.Outputs.TotalBytes += size
	if generated {
		r.Outputs.Generated++
	}
	if class {
		r.Outputs.Classes++
	}
}

// AddSource counts one loaded source file.
func (r *CompileReport) AddSource() {
	r.Sources++
}

// AddExtension records a single extension's timing and status.
func (r *CompileReport) AddExtension(name string, d time.Duration, failed bool) {
	r.Extensions = append(r.Extensions, PhaseMetrics{
		Name:     name,
		Duration: d,
		Failed:   failed,
	})
}

// Finish marks the invocation as complete.
func (r *CompileReport) Finish(outcome string, errs []string) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.Outcome = outcome
	r.Errors = errs
}

// PrintSummary writes a human-readable summary.
func (r *CompileReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║          KILN COMPILE REPORT         ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Tool:        %-23s║\n", r.Tool)
	fmt.Fprintf(w, "║ Outcome:     %-23s║\n", r.Outcome)
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ INPUT\n")
	fmt.Fprintf(w, "║   Units:       %d\n", r.Units)
	fmt.Fprintf(w, "║   Loaded:      %d\n", r.Sources)
	fmt.Fprintf(w, "║   Processors:  %d\n", len(r.Processors))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ OUTPUT\n")
	fmt.Fprintf(w, "║   Files:       %d\n", r.Outputs.Files)
	fmt.Fprintf(w, "║   Classes:     %d\n", r.Outputs.Classes)
	fmt.Fprintf(w, "║   Generated:   %d\n", r.Outputs.Generated)
	fmt.Fprintf(w, "║   Total Size:  %s\n", formatBytes(r.Outputs.TotalBytes))
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ DIAGNOSTICS\n")
		kinds := make([]string, 0, len(r.Diagnostics))
		for k := range r.Diagnostics {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "║   %-12s %d\n", k+":", r.Diagnostics[k])
		}
	}
	if len(r.Extensions) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ EXTENSIONS\n")
		for _, e := range r.Extensions {
			status := "OK"
			if e.Failed {
				status = "failed"
			}
			fmt.Fprintf(w, "║   %-14s %8s  %s\n", e.Name, e.Duration.Round(time.Millisecond), status)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *CompileReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
