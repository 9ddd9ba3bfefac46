package plugins

import (
	"errors"
	"io"
	"testing"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

type mockTool struct {
	name    string
	primary bool
}

func (m *mockTool) Name() string  { return m.name }
func (m *mockTool) Primary() bool { return m.primary }
func (m *mockTool) StandardFileManager(compiler.DiagnosticListener, string, string) (compiler.StandardFileManager, error) {
	return nil, nil
}
func (m *mockTool) Task(io.Writer, compiler.FileManager, compiler.DiagnosticListener, []string, []string, []compiler.FileObject) (compiler.Task, error) {
	return nil, nil
}
func (m *mockTool) IsSupportedOption(string) int { return -1 }

type mockProcessor struct{}

func (m *mockProcessor) Init(compiler.ProcessingEnvironment) error { return nil }
func (m *mockProcessor) Process([]string, compiler.RoundEnvironment) (bool, error) {
	return false, nil
}
func (m *mockProcessor) SupportedAnnotationTypes() []string { return []string{"*"} }
func (m *mockProcessor) SupportedOptions() []string         { return nil }

func noopExtension(name string) Extension {
	return ExtensionFunc{ExtName: name, Fn: func(compiler.Tool, compiler.Task, []string, ExtensionSink) error {
		return nil
	}}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.RegisterTool(&mockTool{name: "mock"})
	r.RegisterTool(&mockTool{name: "refc", primary: true})

	if _, err := r.Tool("mock"); err != nil {
		t.Errorf("expected tool, got error: %v", err)
	}
	if _, err := r.Tool("unknown"); err == nil {
		t.Error("expected error for unknown tool")
	}
	primary, err := r.Tool("")
	if err != nil {
		t.Fatalf("expected primary tool, got error: %v", err)
	}
	if primary.Name() != "refc" {
		t.Errorf("expected refc as primary, got %s", primary.Name())
	}
	if got := len(r.Tools()); got != 2 {
		t.Errorf("expected 2 tools, got %d", got)
	}
}

func TestRegistry_NoPrimaryTool(t *testing.T) {
	r := NewRegistry()
	r.RegisterTool(&mockTool{name: "mock"})
	if _, err := r.Tool(""); err == nil {
		t.Error("expected error without a primary tool")
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := NewRegistry()
	r.RegisterExtension(noopExtension("lombok"))
	r.RegisterExtension(noopExtension("errorprone"))
	r.RegisterExtension(ExtensionFunc{ExtName: "lombok", Fn: func(compiler.Tool, compiler.Task, []string, ExtensionSink) error {
		return errors.New("replaced")
	}})

	all := r.Extensions()
	if len(all) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(all))
	}
	if all[0].Name() != "lombok" || all[1].Name() != "errorprone" {
		t.Errorf("unexpected order: %s, %s", all[0].Name(), all[1].Name())
	}
	if err := all[0].Install(nil, nil, nil, nil); err == nil || err.Error() != "replaced" {
		t.Errorf("expected the replacement extension, got %v", err)
	}

	only := r.Extensions("errorprone", "missing")
	if len(only) != 1 || only[0].Name() != "errorprone" {
		t.Errorf("expected only errorprone, got %v", only)
	}
}

func TestRegistry_Processors(t *testing.T) {
	r := NewRegistry()
	r.RegisterProcessor("com.acme.B", func() compiler.Processor { return &mockProcessor{} })
	r.RegisterProcessor("com.acme.A", func() compiler.Processor { return &mockProcessor{} })

	if _, ok := r.Processor("com.acme.A"); !ok {
		t.Error("expected processor com.acme.A")
	}
	if _, ok := r.Processor("com.acme.C"); ok {
		t.Error("did not expect processor com.acme.C")
	}
	names := r.Processors()
	if len(names) != 2 || names[0] != "com.acme.A" {
		t.Errorf("expected sorted names, got %v", names)
	}
}
