package filemanager

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// stubBase is a base manager that records what reaches it.
type stubBase struct {
	locations map[compiler.Location][]string
	listed    []compiler.Location
	options   map[string]string
	closed    int
	entries   []compiler.FileObject
}

func newStubBase() *stubBase {
	return &stubBase{
		locations: make(map[compiler.Location][]string),
		options:   make(map[string]string),
	}
}

func (b *stubBase) Close() error { b.closed++; return nil }

func (b *stubBase) List(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	b.listed = append(b.listed, loc)
	return b.entries, nil
}

func (b *stubBase) InferBinaryName(loc compiler.Location, fo compiler.FileObject) (string, bool) {
	return "base:" + fo.Name(), true
}

func (b *stubBase) IsSameFile(x, y compiler.FileObject) bool { return x.URI() == y.URI() }
func (b *stubBase) IsSupportedOption(option string) int {
	if option == "-Xbase" {
		return 0
	}
	return -1
}

func (b *stubBase) HandleOption(option, value string) (bool, error) {
	b.options[option] = value
	return option == "-Xbase" || option == "-encoding", nil
}

func (b *stubBase) HasLocation(loc compiler.Location) bool {
	_, ok := b.locations[loc]
	return ok
}

func (b *stubBase) FileForInput(loc compiler.Location, className string, kind compiler.Kind) (compiler.FileObject, error) {
	return fileobject.NewPlaceholder("base:" + className), nil
}

func (b *stubBase) FileForOutput(loc compiler.Location, className string, kind compiler.Kind, sibling compiler.FileObject) (compiler.FileObject, error) {
	return nil, compiler.ErrUnsupported
}

func (b *stubBase) ResourceForInput(loc compiler.Location, pkg, rel string) (compiler.FileObject, error) {
	return fileobject.NewPlaceholder("base:" + rel), nil
}

func (b *stubBase) ResourceForOutput(loc compiler.Location, pkg, rel string, sibling compiler.FileObject) (compiler.FileObject, error) {
	return nil, compiler.ErrUnsupported
}

func (b *stubBase) ClassLoader(loc compiler.Location) (compiler.ClassLoader, error) { return nil, nil }
func (b *stubBase) Flush() error                                                    { return nil }

func (b *stubBase) LocationForModule(loc compiler.Location, module string) (compiler.Location, error) {
	return compiler.Location{}, compiler.ErrUnsupported
}

func (b *stubBase) InferModuleName(loc compiler.Location) (string, error) {
	return "", compiler.ErrUnsupported
}

func (b *stubBase) ListLocationsForModules(loc compiler.Location) ([]compiler.Location, error) {
	return nil, nil
}

func (b *stubBase) Contains(loc compiler.Location, fo compiler.FileObject) (bool, error) {
	return false, compiler.ErrUnsupported
}

func (b *stubBase) SetLocation(loc compiler.Location, paths []string) error {
	b.locations[loc] = paths
	return nil
}

func (b *stubBase) Location(loc compiler.Location) []string { return b.locations[loc] }

func (b *stubBase) FileObjects(paths ...string) ([]compiler.FileObject, error) {
	return nil, compiler.ErrUnsupported
}

// recordingSink captures outputs and loaded sources.
type recordingSink struct {
	outputs []Output
	loaded  []string
	err     error
}

func (s *recordingSink) OutputWritten(out Output) error {
	s.outputs = append(s.outputs, out)
	return s.err
}

func (s *recordingSink) SourceLoaded(uri string) {
	s.loaded = append(s.loaded, uri)
}

// countingLoader counts Close calls.
type countingLoader struct {
	roots  []string
	closed int
}

func (l *countingLoader) Close() error    { l.closed++; return nil }
func (l *countingLoader) Roots() []string { return l.roots }
func (l *countingLoader) LoadProcessor(name string) (compiler.Processor, error) {
	return nil, &compiler.NotFoundError{Name: name}
}
func (l *countingLoader) Resources(name string) ([][]byte, error) { return nil, nil }

func writeFile(t *testing.T, fs afero.Fs, p, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
}

func writeOutput(t *testing.T, fo compiler.FileObject, content string) {
	t.Helper()
	w, err := fo.OpenOutput()
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func paths(fos []compiler.FileObject) []string {
	out := make([]string, 0, len(fos))
	for _, fo := range fos {
		if p, ok := fileobject.Unwrap(fo).(compiler.Pather); ok {
			out = append(out, p.Path())
			continue
		}
		out = append(out, fo.URI())
	}
	return out
}
