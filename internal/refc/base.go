package refc

import (
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// BaseManager is the compiler's own standard file manager. It reads
// directory and archive roots directly and writes outputs straight to the
// first root of an output location.
type BaseManager struct {
	fs        afero.Fs
	encoding  string
	locations map[compiler.Location][]string
	archives  map[string]*fileobject.Archive
}

var (
	_ compiler.StandardFileManager = (*BaseManager)(nil)
	_ compiler.PathLister          = (*BaseManager)(nil)
)

// NewBaseManager returns a manager over fsys.
func NewBaseManager(fsys afero.Fs, encoding string) *BaseManager {
	return &BaseManager{
		fs:        fsys,
		encoding:  encoding,
		locations: make(map[compiler.Location][]string),
		archives:  make(map[string]*fileobject.Archive),
	}
}

func (b *BaseManager) SetLocation(loc compiler.Location, paths []string) error {
	if len(paths) == 0 {
		delete(b.locations, loc)
		return nil
	}
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		roots = append(roots, fileobject.Canonical(p))
	}
	b.locations[loc] = roots
	return nil
}

func (b *BaseManager) Location(loc compiler.Location) []string {
	return append([]string(nil), b.locations[loc]...)
}

// PathsForLocation returns the roots of loc.
func (b *BaseManager) PathsForLocation(loc compiler.Location) ([]string, error) {
	return b.Location(loc), nil
}

func (b *BaseManager) HasLocation(loc compiler.Location) bool {
	_, ok := b.locations[loc]
	return ok
}

func (b *BaseManager) FileObjects(paths ...string) ([]compiler.FileObject, error) {
	out := make([]compiler.FileObject, 0, len(paths))
	for _, p := range paths {
		out = append(out, fileobject.NewInput(b.fs, p, b.encoding, compiler.Location{}))
	}
	return out, nil
}

func (b *BaseManager) List(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	dir := strings.ReplaceAll(pkg, ".", "/")
	var out []compiler.FileObject
	for _, root := range b.locations[loc] {
		var err error
		if fileobject.IsArchive(root) {
			out, err = b.listArchive(out, loc, root, dir, kinds, recurse)
		} else {
			out, err = b.listDir(out, loc, path.Join(root, dir), kinds, recurse)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *BaseManager) listDir(out []compiler.FileObject, loc compiler.Location, dir string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	infos, err := afero.ReadDir(b.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		p := path.Join(dir, info.Name())
		if info.IsDir() {
			if recurse {
				if out, err = b.listDir(out, loc, p, kinds, recurse); err != nil {
					return nil, err
				}
			}
			continue
		}
		if kinds.Has(compiler.KindOf(p)) {
			out = append(out, fileobject.NewInput(b.fs, p, b.encoding, loc))
		}
	}
	return out, nil
}

func (b *BaseManager) listArchive(out []compiler.FileObject, loc compiler.Location, root, dir string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	a, err := b.archive(root)
	if err != nil {
		if compiler.IsNotFound(err) {
			return out, nil
		}
		return nil, err
	}
	names, err := archiveIndex.lookup(root, func() ([]string, error) { return a.Names(), nil })
	if err != nil {
		return nil, err
	}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, "/") {
			continue
		}
		if !recurse && strings.Contains(name[len(prefix):], "/") {
			continue
		}
		if kinds.Has(compiler.KindOf(name)) {
			out = append(out, fileobject.NewArchiveEntry(a, name, b.encoding, loc))
		}
	}
	return out, nil
}

func (b *BaseManager) archive(root string) (*fileobject.Archive, error) {
	if a, ok := b.archives[root]; ok {
		return a, nil
	}
	if ok, _ := afero.Exists(b.fs, root); !ok {
		return nil, &compiler.NotFoundError{Name: root}
	}
	a, err := fileobject.OpenArchive(b.fs, root)
	if err != nil {
		return nil, err
	}
	b.archives[root] = a
	return a, nil
}

func (b *BaseManager) InferBinaryName(loc compiler.Location, fo compiler.FileObject) (string, bool) {
	h, ok := fileobject.Unwrap(fo).(fileobject.Handle)
	if !ok {
		return "", false
	}
	return h.InferBinaryName(b.locations[loc])
}

func (b *BaseManager) IsSameFile(x, y compiler.FileObject) bool { return compiler.SameFile(x, y) }

func (b *BaseManager) IsSupportedOption(string) int { return -1 }

func (b *BaseManager) HandleOption(string, string) (bool, error) { return false, nil }

func (b *BaseManager) FileForInput(loc compiler.Location, className string, kind compiler.Kind) (compiler.FileObject, error) {
	rel := strings.ReplaceAll(className, ".", "/") + kind.Extension()
	return b.find(loc, rel)
}

func (b *BaseManager) ResourceForInput(loc compiler.Location, pkg, relativeName string) (compiler.FileObject, error) {
	return b.find(loc, path.Join(strings.ReplaceAll(pkg, ".", "/"), relativeName))
}

func (b *BaseManager) find(loc compiler.Location, rel string) (compiler.FileObject, error) {
	for _, root := range b.locations[loc] {
		if fileobject.IsArchive(root) {
			a, err := b.archive(root)
			if err != nil {
				continue
			}
			if a.Has(rel) {
				return fileobject.NewArchiveEntry(a, rel, b.encoding, loc), nil
			}
			continue
		}
		p := path.Join(root, rel)
		if ok, _ := afero.Exists(b.fs, p); ok {
			return fileobject.NewInput(b.fs, p, b.encoding, loc), nil
		}
	}
	return nil, &compiler.NotFoundError{Name: rel}
}

func (b *BaseManager) FileForOutput(loc compiler.Location, className string, kind compiler.Kind, sibling compiler.FileObject) (compiler.FileObject, error) {
	dir, err := b.outputRoot(loc)
	if err != nil {
		return nil, err
	}
	p := path.Join(dir, strings.ReplaceAll(className, ".", "/")+kind.Extension())
	return fileobject.NewOutput(p, fileobject.OutputOptions{Store: b.fs, Root: dir, Location: loc, ClassName: className}), nil
}

func (b *BaseManager) ResourceForOutput(loc compiler.Location, pkg, relativeName string, sibling compiler.FileObject) (compiler.FileObject, error) {
	dir, err := b.outputRoot(loc)
	if err != nil {
		return nil, err
	}
	p := path.Join(dir, strings.ReplaceAll(pkg, ".", "/"), relativeName)
	return fileobject.NewOutput(p, fileobject.OutputOptions{Store: b.fs, Root: dir, Location: loc}), nil
}

func (b *BaseManager) outputRoot(loc compiler.Location) (string, error) {
	if !loc.Output {
		return "", compiler.IllegalArgument("%s is not an output location", loc)
	}
	if roots := b.locations[loc]; len(roots) > 0 {
		return roots[0], nil
	}
	if loc == compiler.SourceOutput {
		return b.outputRoot(compiler.ClassOutput)
	}
	return "", compiler.IllegalState("no output directory for %s", loc)
}

// ClassLoader is not provided; the driver supplies loaders.
func (b *BaseManager) ClassLoader(compiler.Location) (compiler.ClassLoader, error) {
	return nil, compiler.ErrUnsupported
}

func (b *BaseManager) Flush() error { return nil }

func (b *BaseManager) LocationForModule(loc compiler.Location, module string) (compiler.Location, error) {
	if !loc.ModuleOriented && !loc.Output {
		return compiler.Location{}, compiler.IllegalArgument("%s is not module oriented", loc)
	}
	return compiler.ModuleLocation(loc, module), nil
}

func (b *BaseManager) InferModuleName(loc compiler.Location) (string, error) {
	if !loc.IsModule() {
		return "", compiler.IllegalArgument("%s is not a module location", loc)
	}
	return loc.Module, nil
}

func (b *BaseManager) ListLocationsForModules(loc compiler.Location) ([]compiler.Location, error) {
	var out []compiler.Location
	for l := range b.locations {
		if l.IsModule() && l.Name == loc.Name {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

func (b *BaseManager) Contains(loc compiler.Location, fo compiler.FileObject) (bool, error) {
	p, ok := fileobject.Unwrap(fo).(compiler.Pather)
	if !ok {
		return false, compiler.ErrUnsupported
	}
	for _, root := range b.locations[loc] {
		if fileobject.IsUnder(p.Path(), root) {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the archives opened for listing.
func (b *BaseManager) Close() error {
	var errs []error
	for root, a := range b.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(b.archives, root)
	}
	return errors.Join(errs...)
}
