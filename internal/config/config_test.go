package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_SampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"half", 0.5, false},
		{"one", 1.0, false},
		{"negative", -0.1, true},
		{"too_high", 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Tracing: TracingConfig{SampleRate: tt.rate}}
			hasWarn := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, "sample_rate") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("sample_rate=%.1f: hasWarn=%v, want=%v", tt.rate, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_NegativeCancelInterval(t *testing.T) {
	cfg := &Config{Compiler: CompilerConfig{CancelCheckInterval: -1}}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "cancel_check_interval") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about negative cancel_check_interval")
	}
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "chatty"}}
	if len(cfg.Validate()) != 1 {
		t.Errorf("expected one warning, got %v", cfg.Validate())
	}
}

func TestValidate_AuditWithoutPath(t *testing.T) {
	cfg := &Config{Audit: AuditConfig{Enabled: true}}
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "audit.path") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about empty audit path")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Compiler.Encoding != "UTF-8" {
		t.Errorf("expected UTF-8 default encoding, got %s", cfg.Compiler.Encoding)
	}
	if cfg.Compiler.CancelCheckInterval != 64 {
		t.Errorf("expected default interval 64, got %d", cfg.Compiler.CancelCheckInterval)
	}
	if !cfg.Compiler.DependencyTracking {
		t.Error("expected dependency tracking on by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.yaml")
	content := `compiler:
  tool: refc
  encoding: ISO-8859-1
  extensions: [stamp]
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KILN_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Compiler.Tool != "refc" || cfg.Compiler.Encoding != "ISO-8859-1" {
		t.Errorf("unexpected compiler config %+v", cfg.Compiler)
	}
	if len(cfg.Compiler.Extensions) != 1 || cfg.Compiler.Extensions[0] != "stamp" {
		t.Errorf("unexpected extensions %v", cfg.Compiler.Extensions)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected file level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected env format json, got %s", cfg.Log.Format)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
