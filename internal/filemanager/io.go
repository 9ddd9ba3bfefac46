package filemanager

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// FileForInput finds the file of className in loc. An absent file yields
// a *compiler.NotFoundError rather than a nil handle.
func (m *Manager) FileForInput(loc compiler.Location, className string, kind compiler.Kind) (compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if err := m.cancel.check(familyInput); err != nil {
		return nil, err
	}
	rel := strings.ReplaceAll(className, ".", "/") + kind.Extension()
	fo, err := m.findInput(loc, rel)
	if errors.Is(err, compiler.ErrUnsupported) {
		return m.base.FileForInput(loc, className, kind)
	}
	if err != nil {
		return nil, err
	}
	if fo == nil {
		return nil, &compiler.NotFoundError{Name: className}
	}
	return m.wrapSource(fo, true), nil
}

// ResourceForInput finds the resource relativeName of package pkg in loc.
func (m *Manager) ResourceForInput(loc compiler.Location, pkg, relativeName string) (compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if err := m.cancel.check(familyInput); err != nil {
		return nil, err
	}
	rel := path.Join(packageDir(pkg), relativeName)
	fo, err := m.findInput(loc, rel)
	if errors.Is(err, compiler.ErrUnsupported) {
		return m.base.ResourceForInput(loc, pkg, relativeName)
	}
	if err != nil {
		return nil, err
	}
	if fo == nil {
		return nil, &compiler.NotFoundError{Name: rel}
	}
	return fo, nil
}

// findInput looks rel up in the provided files and then in every root of
// loc. It returns ErrUnsupported when loc is not served by this manager.
func (m *Manager) findInput(loc compiler.Location, rel string) (compiler.FileObject, error) {
	roots := m.Location(loc)
	if !loc.FileSystemBacked() || (len(roots) == 0 && m.provider == nil) {
		return nil, compiler.ErrUnsupported
	}
	if m.provider != nil {
		dir, base := path.Split(rel)
		files, err := m.provider.Files(loc, strings.ReplaceAll(strings.Trim(dir, "/"), "/", "."), compiler.Kinds(compiler.KindOf(base)), false)
		if err != nil && !errors.Is(err, compiler.ErrUnsupported) {
			return nil, fmt.Errorf("provided files %s: %w", loc, err)
		}
		for _, f := range files {
			if strings.HasSuffix(fileobject.Canonical(f.Path), "/"+rel) {
				return fileobject.NewProvidedBytes(f.Path, f.Content, m.encoding, loc), nil
			}
		}
	}
	for _, root := range roots {
		h, ok, err := m.listing.Find(loc, root, rel)
		if err != nil {
			return nil, err
		}
		if ok {
			if indexed, found := m.inputs[h.Path()]; found {
				return indexed, nil
			}
			return h, nil
		}
	}
	return nil, nil
}

// FileForOutput returns the output handle of className. The directory is
// chosen by the host lister, then by attribution, then by the sibling,
// then by the single configured output root.
func (m *Manager) FileForOutput(loc compiler.Location, className string, kind compiler.Kind, sibling compiler.FileObject) (compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if err := m.cancel.check(familyOutput); err != nil {
		return nil, err
	}
	if !loc.Output {
		return nil, compiler.IllegalArgument("%s is not an output location", loc)
	}
	dir, err := m.outputDir(loc, className, kind, sibling)
	if err != nil {
		return nil, err
	}
	p := path.Join(dir, strings.ReplaceAll(className, ".", "/")+kind.Extension())
	return m.newOutput(p, dir, loc, className, sibling), nil
}

// ResourceForOutput returns the output handle of a resource.
func (m *Manager) ResourceForOutput(loc compiler.Location, pkg, relativeName string, sibling compiler.FileObject) (compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if err := m.cancel.check(familyOutput); err != nil {
		return nil, err
	}
	if !loc.Output {
		return nil, compiler.IllegalArgument("%s is not an output location", loc)
	}
	rel := path.Join(packageDir(pkg), relativeName)
	dir, err := m.outputDir(loc, rel, compiler.KindOf(rel), sibling)
	if err != nil {
		return nil, err
	}
	return m.newOutput(path.Join(dir, rel), dir, loc, "", sibling), nil
}

func (m *Manager) newOutput(p, root string, loc compiler.Location, className string, sibling compiler.FileObject) *fileobject.OutputFile {
	return fileobject.NewOutput(p, fileobject.OutputOptions{
		Store:     m.fs,
		Root:      root,
		Location:  loc,
		ClassName: className,
		OnCommit: func(f *fileobject.OutputFile, content []byte) error {
			return m.commit(f, content, sibling)
		},
	})
}

// outputDir resolves the directory an output named name belongs in.
func (m *Manager) outputDir(loc compiler.Location, name string, kind compiler.Kind, sibling compiler.FileObject) (string, error) {
	if m.lister != nil {
		dir, err := m.lister.OutputDirectory(loc, name, kind, sibling)
		if err != nil && !errors.Is(err, compiler.ErrUnsupported) {
			return "", fmt.Errorf("route output %s: %w", name, err)
		}
		if dir != "" {
			return fileobject.Canonical(dir), nil
		}
	}

	switch {
	case loc.IsModule():
		if roots := m.Location(loc); len(roots) > 0 {
			return roots[0], nil
		}
		parent, err := m.outputDir(loc.Parent(), name, kind, sibling)
		if err != nil {
			return "", err
		}
		return path.Join(parent, loc.Module), nil
	case loc == compiler.ClassOutput:
		if dir, ok := m.classOutputDir(name, sibling); ok {
			return dir, nil
		}
	case loc == compiler.SourceOutput:
		if roots := m.Location(loc); len(roots) > 0 {
			return roots[0], nil
		}
		if dir, ok := m.classOutputDir(name, sibling); ok {
			return dir, nil
		}
	default:
		if roots := m.Location(loc); len(roots) > 0 {
			return roots[0], nil
		}
	}
	return "", compiler.IllegalState("no output directory for %s in %s", name, loc)
}

// classOutputDir applies attribution, sibling and single root resolution.
func (m *Manager) classOutputDir(name string, sibling compiler.FileObject) (string, bool) {
	if len(m.outputOrder) > 1 {
		for _, src := range m.attribution.Sources(name) {
			if p, ok := m.lookupSource(src); ok {
				if dir, ok := m.outputRootFor(p); ok {
					return dir, true
				}
			}
		}
		if p, ok := handlePath(sibling); ok {
			if dir, ok := m.outputRootFor(p); ok {
				return dir, true
			}
		}
		if p, ok := m.lookupSource(name); ok {
			if dir, ok := m.outputRootFor(p); ok {
				return dir, true
			}
		}
	}
	if len(m.outputOrder) == 1 {
		return m.outputOrder[0], true
	}
	if roots := m.Location(compiler.ClassOutput); len(roots) > 0 {
		return roots[0], true
	}
	return "", false
}

// outputRootFor returns the output directory whose source roots contain
// p. The longest matching source root wins.
func (m *Manager) outputRootFor(p string) (string, bool) {
	best, bestLen := "", -1
	for _, dir := range m.outputOrder {
		for _, root := range m.outputs[dir] {
			if fileobject.IsUnder(p, root) && len(root) > bestLen {
				best, bestLen = dir, len(root)
			}
		}
	}
	return best, bestLen >= 0
}

// lookupSource maps a binary or qualified name to an input source path.
// Nested names fall back to their enclosing top-level name.
func (m *Manager) lookupSource(name string) (string, bool) {
	idx := m.index()
	if i := strings.IndexByte(name, '$'); i > 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "/", ".")
	for name != "" {
		if p, ok := idx[name]; ok {
			return p, true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[:i]
	}
	return "", false
}

// index builds, on first use, the binary name to input path index over
// every known source root.
func (m *Manager) index() map[string]string {
	if m.sourceIndex != nil {
		return m.sourceIndex
	}
	var roots []string
	for _, dir := range m.outputOrder {
		roots = append(roots, m.outputs[dir]...)
	}
	roots = append(roots, m.Location(compiler.SourcePath)...)
	sort.SliceStable(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })

	idx := make(map[string]string, len(m.inputs))
	for p, h := range m.inputs {
		if name, ok := h.InferBinaryName(roots); ok {
			if _, dup := idx[name]; !dup {
				idx[name] = p
			}
		}
	}
	m.sourceIndex = idx
	return idx
}

// commit reports a closed output to the sink and invalidates the listing
// caches above it before the output's Close returns.
func (m *Manager) commit(f *fileobject.OutputFile, content []byte, sibling compiler.FileObject) error {
	key := f.ClassName()
	if key == "" {
		key = strings.TrimPrefix(strings.TrimPrefix(f.Path(), f.Root()), "/")
	}
	attributed := m.attribution.Sources(key)

	out := Output{
		Kind:      f.Kind(),
		Path:      f.Path(),
		Generated: len(attributed) > 0,
		Content:   content,
		Root:      f.Root(),
		Location:  f.Location(),
		ClassName: f.ClassName(),
	}
	seen := make(map[string]bool)
	addSource := func(uri string) {
		if uri != "" && !seen[uri] {
			seen[uri] = true
			out.Sources = append(out.Sources, uri)
		}
	}
	for _, src := range attributed {
		if p, ok := m.lookupSource(src); ok {
			addSource(fileobject.FileURI(p))
		}
	}
	if len(out.Sources) == 0 && sibling != nil {
		addSource(fileobject.Unwrap(sibling).URI())
	}
	if len(out.Sources) == 0 && f.ClassName() != "" {
		if p, ok := m.lookupSource(f.ClassName()); ok {
			addSource(fileobject.FileURI(p))
		}
	}

	if m.sink != nil {
		if err := m.sink.OutputWritten(out); err != nil {
			return fmt.Errorf("output %s: %w", f.Path(), err)
		}
	}
	m.listing.Invalidate(f.Path())
	m.metrics.OutputWritten(out.Generated)
	m.logger.Debug("output committed", "path", out.Path, "generated", out.Generated, "sources", out.Sources)
	return nil
}
