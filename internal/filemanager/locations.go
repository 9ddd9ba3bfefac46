package filemanager

import (
	"path"
	"sort"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// SetLocation records the roots of loc and forwards them to the base
// manager so tool internals that query it directly see the same paths.
func (m *Manager) SetLocation(loc compiler.Location, paths []string) error {
	if err := m.ensureOpen(); err != nil {
		return err
	}
	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		roots = append(roots, fileobject.Canonical(p))
	}
	if len(roots) == 0 {
		delete(m.locations, loc)
	} else {
		m.locations[loc] = roots
	}
	if loc == compiler.SourcePath || loc == compiler.ClassOutput {
		m.sourceIndex = nil
	}
	return m.base.SetLocation(loc, roots)
}

// Location returns the roots of loc.
func (m *Manager) Location(loc compiler.Location) []string {
	if roots, ok := m.locations[loc]; ok {
		return append([]string(nil), roots...)
	}
	return m.base.Location(loc)
}

// HasLocation implements compiler.FileManager.
func (m *Manager) HasLocation(loc compiler.Location) bool {
	if _, ok := m.locations[loc]; ok {
		return true
	}
	if loc == compiler.ClassOutput && len(m.outputOrder) > 0 {
		return true
	}
	return m.base.HasLocation(loc)
}

// InferBinaryName asks the handle first and falls back to the base manager
// when the handle is foreign or has no opinion.
func (m *Manager) InferBinaryName(loc compiler.Location, fo compiler.FileObject) (string, bool) {
	if h, ok := fileobject.Unwrap(fo).(fileobject.Handle); ok {
		if name, ok := h.InferBinaryName(m.Location(loc)); ok {
			return name, true
		}
	}
	return m.base.InferBinaryName(loc, fileobject.Unwrap(fo))
}

// IsSameFile implements compiler.FileManager.
func (m *Manager) IsSameFile(a, b compiler.FileObject) bool {
	a, b = fileobject.Unwrap(a), fileobject.Unwrap(b)
	_, ownA := a.(fileobject.Handle)
	_, ownB := b.(fileobject.Handle)
	if ownA || ownB {
		return compiler.SameFile(a, b)
	}
	return m.base.IsSameFile(a, b)
}

// Contains reports whether fo lies below one of the roots of loc.
func (m *Manager) Contains(loc compiler.Location, fo compiler.FileObject) (bool, error) {
	if err := m.ensureOpen(); err != nil {
		return false, err
	}
	p, ok := handlePath(fo)
	if !ok {
		return m.base.Contains(loc, fo)
	}
	roots := m.Location(loc)
	if len(roots) == 0 {
		return m.base.Contains(loc, fileobject.Unwrap(fo))
	}
	for _, root := range roots {
		if fileobject.IsUnder(p, root) || strings.HasPrefix(p, root+"!/") {
			return true, nil
		}
	}
	return false, nil
}

// LocationForModule returns the per-module variant of loc. Module roots
// are the directories named after the module below each root of loc, and
// archives whose base name is the module name.
func (m *Manager) LocationForModule(loc compiler.Location, module string) (compiler.Location, error) {
	if err := m.ensureOpen(); err != nil {
		return compiler.Location{}, err
	}
	if !loc.ModuleOriented && !loc.Output {
		return compiler.Location{}, compiler.IllegalArgument("%s is not module oriented", loc)
	}
	target := compiler.ModuleLocation(loc, module)
	if _, ok := m.locations[target]; ok {
		return target, nil
	}
	roots := m.Location(loc)
	if len(roots) == 0 {
		return m.base.LocationForModule(loc, module)
	}
	var moduleRoots []string
	for _, root := range roots {
		if loc.Output {
			moduleRoots = append(moduleRoots, path.Join(root, module))
			continue
		}
		if fileobject.IsArchive(root) && moduleNameOf(root) == module {
			moduleRoots = append(moduleRoots, root)
			continue
		}
		if ok, err := m.listing.IsDir(root, module); err != nil {
			return compiler.Location{}, err
		} else if ok {
			moduleRoots = append(moduleRoots, path.Join(root, module))
		}
	}
	if len(moduleRoots) == 0 {
		return m.base.LocationForModule(loc, module)
	}
	m.locations[target] = moduleRoots
	return target, nil
}

// InferModuleName returns the module of a per-module location.
func (m *Manager) InferModuleName(loc compiler.Location) (string, error) {
	if loc.IsModule() {
		return loc.Module, nil
	}
	return m.base.InferModuleName(loc)
}

// ListLocationsForModules returns one per-module location for every
// module found below the roots of loc, sorted by module name.
func (m *Manager) ListLocationsForModules(loc compiler.Location) ([]compiler.Location, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if !loc.ModuleOriented {
		return nil, compiler.IllegalArgument("%s is not module oriented", loc)
	}
	roots := m.Location(loc)
	if len(roots) == 0 {
		return m.base.ListLocationsForModules(loc)
	}
	modules := make(map[string][]string)
	for _, root := range roots {
		if fileobject.IsArchive(root) {
			name := moduleNameOf(root)
			modules[name] = append(modules[name], root)
			continue
		}
		dirs, err := m.listing.Children(root)
		if err != nil {
			return nil, err
		}
		for _, d := range dirs {
			modules[d] = append(modules[d], path.Join(root, d))
		}
	}
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]compiler.Location, 0, len(names))
	for _, name := range names {
		ml := compiler.ModuleLocation(loc, name)
		if _, ok := m.locations[ml]; !ok {
			m.locations[ml] = modules[name]
		}
		out = append(out, ml)
	}
	return out, nil
}

func moduleNameOf(archive string) string {
	base := path.Base(archive)
	return strings.TrimSuffix(base, path.Ext(base))
}

// handlePath returns the store path of one of this package's handles.
func handlePath(fo compiler.FileObject) (string, bool) {
	if h, ok := fileobject.Unwrap(fo).(fileobject.Handle); ok {
		return h.Path(), true
	}
	return "", false
}
