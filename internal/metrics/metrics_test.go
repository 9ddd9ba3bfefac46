package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestCompileReport(t *testing.T) {
	r := New("inv-1", "refc")
	r.Units = 2
	r.AddDiagnostic("warning")
	r.AddDiagnostic("warning")
	r.AddDiagnostic("error")
	r.AddOutput(2048, false, true)
	r.AddOutput(10, true, false)
	r.AddSource()
	r.AddExtension("lombok", 0, true)
	r.Finish("failed", []string{"boom"})

	if r.Diagnostics["warning"] != 2 || r.Diagnostics["error"] != 1 {
		t.Errorf("diagnostics = %v", r.Diagnostics)
	}
	if r.Outputs.Files != 2 || r.Outputs.Generated != 1 || r.Outputs.Classes != 1 || r.Outputs.TotalBytes != 2058 {
		t.Errorf("outputs = %+v", r.Outputs)
	}
	if r.Duration < 0 || r.FinishedAt.Before(r.StartedAt) {
		t.Errorf("bad timing: %v", r.Duration)
	}

	var buf bytes.Buffer
	r.PrintSummary(&buf)
	for _, want := range []string{"KILN COMPILE REPORT", "refc", "failed", "2.0 KB", "warning:", "lombok", "• boom"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, buf.String())
		}
	}

	data, err := r.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["invocation_id"] != "inv-1" || decoded["outcome"] != "failed" {
		t.Errorf("json = %s", data)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
