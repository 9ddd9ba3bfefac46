package filemanager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// List merges, for file-system backed locations, the host lister's
// virtual entries, the data provider's entries and the disk and archive
// entries of the location's roots, in that order. A path listed by an
// earlier source hides the same path from later ones.
func (m *Manager) List(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	m.metrics.ListCalled()
	if !loc.FileSystemBacked() {
		return m.base.List(loc, pkg, kinds, recurse)
	}
	out, err := m.listMerged(loc, pkg, kinds, recurse)
	if errors.Is(err, compiler.ErrUnsupported) {
		m.logger.Debug("list falls back to base manager", "location", loc.String(), "package", pkg)
		return m.base.List(loc, pkg, kinds, recurse)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) listMerged(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	dir := packageDir(pkg)
	seen := make(map[string]bool)
	var out []compiler.FileObject
	add := func(fo compiler.FileObject) {
		key := fo.URI()
		if p, ok := fo.(compiler.Pather); ok {
			key = p.Path()
		}
		if seen[key] {
			return
		}
		seen[key] = true
		if kinds.Has(compiler.KindSource) {
			fo = m.wrapSource(fo, false)
		}
		out = append(out, fo)
	}

	if m.lister != nil {
		virtual, err := m.lister.List(loc, pkg, kinds, recurse)
		if err != nil {
			return nil, fmt.Errorf("external list %s: %w", loc, err)
		}
		for _, fo := range virtual {
			add(fo)
		}
	}

	if m.provider != nil {
		files, err := m.provider.Files(loc, pkg, kinds, recurse)
		if err != nil {
			return nil, fmt.Errorf("provided files %s: %w", loc, err)
		}
		for _, f := range files {
			add(fileobject.NewProvidedBytes(f.Path, f.Content, m.encoding, loc))
		}
	}

	for _, root := range m.Location(loc) {
		handles, err := m.listing.List(loc, root, dir, kinds, recurse)
		if err != nil {
			return nil, err
		}
		for _, h := range handles {
			if indexed, ok := m.inputs[h.Path()]; ok {
				h = indexed
			}
			add(h)
		}
	}
	return out, nil
}

// packageDir turns a dotted package name into a relative directory.
func packageDir(pkg string) string {
	return strings.Trim(strings.ReplaceAll(pkg, ".", "/"), "/")
}
