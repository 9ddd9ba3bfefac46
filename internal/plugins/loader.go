package plugins

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// ProcessorServiceFile is the service descriptor listing processor class
// names, one per line.
const ProcessorServiceFile = "META-INF/services/javax.annotation.processing.Processor"

// ClassLoader resolves resources against directory and archive roots and
// instantiates processors registered in a Registry. Archives are opened
// on first use and held until Close.
type ClassLoader struct {
	fs       afero.Fs
	roots    []string
	registry *Registry
	archives map[string]*fileobject.Archive
	closed   bool
}

var _ compiler.ClassLoader = (*ClassLoader)(nil)

// NewClassLoader returns a loader over roots.
func NewClassLoader(fsys afero.Fs, roots []string, registry *Registry) *ClassLoader {
	canonical := make([]string, 0, len(roots))
	for _, r := range roots {
		canonical = append(canonical, fileobject.Canonical(r))
	}
	return &ClassLoader{
		fs:       fsys,
		roots:    canonical,
		registry: registry,
		archives: make(map[string]*fileobject.Archive),
	}
}

// Loaders returns a loader factory for the file manager.
func (r *Registry) Loaders(fsys afero.Fs) func(loc compiler.Location, roots []string) (compiler.ClassLoader, error) {
	return func(_ compiler.Location, roots []string) (compiler.ClassLoader, error) {
		return NewClassLoader(fsys, roots, r), nil
	}
}

func (l *ClassLoader) Roots() []string { return append([]string(nil), l.roots...) }

// LoadProcessor instantiates the processor registered as name.
func (l *ClassLoader) LoadProcessor(name string) (compiler.Processor, error) {
	if l.closed {
		return nil, compiler.IllegalState("class loader is closed")
	}
	f, ok := l.registry.Processor(name)
	if !ok {
		return nil, &compiler.NotFoundError{Name: name}
	}
	p := f()
	if p == nil {
		return nil, fmt.Errorf("processor factory %s returned nil", name)
	}
	return p, nil
}

// Resources returns the content of name under every root that has it.
func (l *ClassLoader) Resources(name string) ([][]byte, error) {
	if l.closed {
		return nil, compiler.IllegalState("class loader is closed")
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	var out [][]byte
	for _, root := range l.roots {
		data, err := l.resource(root, name)
		if err != nil {
			if compiler.IsNotFound(err) || errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (l *ClassLoader) resource(root, name string) ([]byte, error) {
	if fileobject.IsArchive(root) {
		a, err := l.archive(root)
		if err != nil {
			return nil, err
		}
		return a.ReadEntry(name)
	}
	return afero.ReadFile(l.fs, path.Join(root, name))
}

func (l *ClassLoader) archive(root string) (*fileobject.Archive, error) {
	if a, ok := l.archives[root]; ok {
		return a, nil
	}
	if ok, _ := afero.Exists(l.fs, root); !ok {
		return nil, &compiler.NotFoundError{Name: root}
	}
	a, err := fileobject.OpenArchive(l.fs, root)
	if err != nil {
		return nil, err
	}
	l.archives[root] = a
	return a, nil
}

// ServiceProcessors returns the processor class names listed in the
// processor service descriptors visible to l, in root order without
// duplicates.
func ServiceProcessors(l compiler.ClassLoader) ([]string, error) {
	files, err := l.Resources(ProcessorServiceFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ProcessorServiceFile, err)
	}
	var names []string
	seen := make(map[string]bool)
	for _, data := range files {
		for _, n := range ParseServices(data) {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names, nil
}

// Close releases every opened archive. It is idempotent.
func (l *ClassLoader) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var errs []error
	for _, a := range l.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.archives = nil
	return errors.Join(errs...)
}

// ParseServices reads a service descriptor: one class name per line, with
// '#' starting a comment.
func ParseServices(data []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names
}
