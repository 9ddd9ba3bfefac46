package intercept

import (
	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// baseManager is a minimal standard file manager that also offers the
// newer PathsForLocation capability.
type baseManager struct {
	locations map[compiler.Location][]string
	closed    int
}

func newBaseManager() *baseManager {
	return &baseManager{locations: make(map[compiler.Location][]string)}
}

func (b *baseManager) Close() error { b.closed++; return nil }

func (b *baseManager) List(compiler.Location, string, compiler.KindSet, bool) ([]compiler.FileObject, error) {
	return nil, nil
}

func (b *baseManager) InferBinaryName(loc compiler.Location, fo compiler.FileObject) (string, bool) {
	return fo.Name(), true
}

func (b *baseManager) IsSameFile(x, y compiler.FileObject) bool  { return x.URI() == y.URI() }
func (b *baseManager) IsSupportedOption(string) int              { return -1 }
func (b *baseManager) HandleOption(string, string) (bool, error) { return false, nil }

func (b *baseManager) HasLocation(loc compiler.Location) bool {
	_, ok := b.locations[loc]
	return ok
}

func (b *baseManager) FileForInput(loc compiler.Location, className string, kind compiler.Kind) (compiler.FileObject, error) {
	return nil, &compiler.NotFoundError{Name: className}
}

func (b *baseManager) FileForOutput(compiler.Location, string, compiler.Kind, compiler.FileObject) (compiler.FileObject, error) {
	return nil, compiler.ErrUnsupported
}

func (b *baseManager) ResourceForInput(loc compiler.Location, pkg, rel string) (compiler.FileObject, error) {
	return nil, &compiler.NotFoundError{Name: rel}
}

func (b *baseManager) ResourceForOutput(compiler.Location, string, string, compiler.FileObject) (compiler.FileObject, error) {
	return nil, compiler.ErrUnsupported
}

func (b *baseManager) ClassLoader(compiler.Location) (compiler.ClassLoader, error) { return nil, nil }
func (b *baseManager) Flush() error                                                { return nil }

func (b *baseManager) LocationForModule(compiler.Location, string) (compiler.Location, error) {
	return compiler.Location{}, compiler.ErrUnsupported
}

func (b *baseManager) InferModuleName(compiler.Location) (string, error) {
	return "", compiler.ErrUnsupported
}

func (b *baseManager) ListLocationsForModules(compiler.Location) ([]compiler.Location, error) {
	return nil, nil
}

func (b *baseManager) Contains(compiler.Location, compiler.FileObject) (bool, error) {
	return false, compiler.ErrUnsupported
}

func (b *baseManager) SetLocation(loc compiler.Location, paths []string) error {
	b.locations[loc] = paths
	return nil
}

func (b *baseManager) Location(loc compiler.Location) []string { return b.locations[loc] }

func (b *baseManager) FileObjects(paths ...string) ([]compiler.FileObject, error) {
	out := make([]compiler.FileObject, 0, len(paths))
	for _, p := range paths {
		out = append(out, fileobject.NewPlaceholder(p))
	}
	return out, nil
}

func (b *baseManager) PathsForLocation(loc compiler.Location) ([]string, error) {
	return append([]string{"base"}, b.locations[loc]...), nil
}
