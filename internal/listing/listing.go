// Package listing lists directory and archive roots for the file manager
// and caches the results until an output is written beneath them.
package listing

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

type entry struct {
	name string
	dir  bool
}

type dirKey struct {
	root string
	dir  string
}

// Stats counts cache behaviour since the provider was created.
type Stats struct {
	Hits          int
	Misses        int
	Invalidations int
}

// Provider lists roots on an afero.Fs. A root that names an archive is
// listed as the directory tree stored inside it.
//
// A Provider is confined to the compilation thread.
type Provider struct {
	fs       afero.Fs
	encoding string
	probe    func() error
	logger   *slog.Logger

	archives map[string]*fileobject.Archive
	badRoots map[string]error
	dirs     map[dirKey][]entry
	handles  map[string]fileobject.Handle
	stats    Stats
}

// Option configures a Provider.
type Option func(*Provider)

// WithProbe installs the cancellation probe consulted by existence checks.
func WithProbe(probe func() error) Option {
	return func(p *Provider) { p.probe = probe }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New returns a provider over fsys decoding content with encoding.
func New(fsys afero.Fs, encoding string, opts ...Option) *Provider {
	p := &Provider{
		fs:       fsys,
		encoding: encoding,
		logger:   slog.Default(),
		archives: make(map[string]*fileobject.Archive),
		badRoots: make(map[string]error),
		dirs:     make(map[dirKey][]entry),
		handles:  make(map[string]fileobject.Handle),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetEncoding changes the encoding of handles created from now on.
func (p *Provider) SetEncoding(enc string) {
	p.encoding = enc
}

// Stats returns cache counters.
func (p *Provider) Stats() Stats {
	return p.stats
}

// List returns the handles of the files in package directory pkg of root
// whose kind passes the filter. pkg is slash separated and may be empty.
func (p *Provider) List(loc compiler.Location, root, pkg string, kinds compiler.KindSet, recursive bool) ([]fileobject.Handle, error) {
	root = fileobject.Canonical(root)
	pkg = strings.Trim(pkg, "/")

	var out []fileobject.Handle
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := p.entries(root, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rel := e.name
			if dir != "" {
				rel = dir + "/" + e.name
			}
			if e.dir {
				if recursive {
					if err := walk(rel); err != nil {
						return err
					}
				}
				continue
			}
			if !accept(e, kinds) {
				continue
			}
			h, err := p.handle(loc, root, rel)
			if err != nil {
				return err
			}
			out = append(out, h)
		}
		return nil
	}
	if err := walk(pkg); err != nil {
		return nil, err
	}
	return out, nil
}

// accept applies the kind filter to a single entry before any handle is
// created. A filter of exactly {OTHER} takes every non-directory entry,
// whatever its inferred kind.
func accept(e entry, kinds compiler.KindSet) bool {
	if e.dir {
		return false
	}
	if kinds.Only(compiler.KindOther) {
		return true
	}
	return kinds.Has(compiler.KindOf(e.name))
}

// entries returns the cached children of dir under root.
func (p *Provider) entries(root, dir string) ([]entry, error) {
	key := dirKey{root: root, dir: dir}
	if cached, ok := p.dirs[key]; ok {
		p.stats.Hits++
		return cached, nil
	}
	p.stats.Misses++

	var list []entry
	if fileobject.IsArchive(root) {
		a, err := p.archive(root)
		if err != nil {
			return nil, err
		}
		if a != nil {
			list = archiveChildren(a, dir)
		}
	} else {
		full := joinRel(root, dir)
		var infos []fs.FileInfo
		if stat, err := p.fs.Stat(full); err == nil && stat.IsDir() {
			if infos, err = afero.ReadDir(p.fs, full); err != nil {
				return nil, fmt.Errorf("list %s: %w", full, err)
			}
		}
		for _, info := range infos {
			list = append(list, entry{name: info.Name(), dir: info.IsDir()})
		}
	}
	p.dirs[key] = list
	return list, nil
}

func archiveChildren(a *fileobject.Archive, dir string) []entry {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := make(map[string]bool)
	var list []entry
	for _, name := range a.Names() {
		if !strings.HasPrefix(name, prefix) || name == prefix {
			continue
		}
		rest := name[len(prefix):]
		child, isDir := rest, false
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			child, isDir = rest[:i], true
		}
		if seen[child] {
			continue
		}
		seen[child] = true
		list = append(list, entry{name: child, dir: isDir})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// archive opens (once) the archive at root. A root that cannot be read as
// an archive lists as empty, the way a missing directory does.
func (p *Provider) archive(root string) (*fileobject.Archive, error) {
	if a, ok := p.archives[root]; ok {
		return a, nil
	}
	if _, bad := p.badRoots[root]; bad {
		return nil, nil
	}
	a, err := fileobject.OpenArchive(p.fs, root)
	if err != nil {
		p.badRoots[root] = err
		p.logger.Debug("archive root unreadable", "root", root, "error", err)
		return nil, nil
	}
	p.archives[root] = a
	return a, nil
}

func (p *Provider) handle(loc compiler.Location, root, rel string) (fileobject.Handle, error) {
	id := root + "!" + rel
	if h, ok := p.handles[id]; ok {
		return h, nil
	}
	var h fileobject.Handle
	if fileobject.IsArchive(root) {
		a, err := p.archive(root)
		if err != nil || a == nil {
			return nil, &compiler.NotFoundError{Name: root + "!/" + rel, Err: err}
		}
		h = fileobject.NewArchiveEntry(a, rel, p.encoding, loc)
	} else {
		h = fileobject.NewInput(p.fs, joinRel(root, rel), p.encoding, loc)
	}
	p.handles[id] = h
	return h, nil
}

// Find returns the handle for the file rel under root when it exists.
// It is an existence check and consults the cancellation probe.
func (p *Provider) Find(loc compiler.Location, root, rel string) (fileobject.Handle, bool, error) {
	root = fileobject.Canonical(root)
	rel = strings.Trim(rel, "/")
	ok, err := p.IsFile(root, rel)
	if err != nil || !ok {
		return nil, false, err
	}
	h, err := p.handle(loc, root, rel)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}

// IsFile reports whether rel names a regular file under root.
func (p *Provider) IsFile(root, rel string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	root = fileobject.Canonical(root)
	if fileobject.IsArchive(root) {
		a, err := p.archive(root)
		if err != nil || a == nil {
			return false, err
		}
		return a.Has(rel) && !strings.HasSuffix(rel, "/"), nil
	}
	info, err := p.fs.Stat(joinRel(root, rel))
	if err != nil {
		return false, nil
	}
	return !info.IsDir(), nil
}

// IsDir reports whether rel names a directory under root.
func (p *Provider) IsDir(root, rel string) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	root = fileobject.Canonical(root)
	if fileobject.IsArchive(root) {
		a, err := p.archive(root)
		if err != nil || a == nil {
			return false, err
		}
		return a.IsDir(rel), nil
	}
	ok, err := afero.IsDir(p.fs, joinRel(root, rel))
	if err != nil {
		return false, nil
	}
	return ok, nil
}

func (p *Provider) check() error {
	if p.probe == nil {
		return nil
	}
	return p.probe()
}

// Children returns the names of the directories directly below root.
func (p *Provider) Children(root string) ([]string, error) {
	entries, err := p.entries(fileobject.Canonical(root), "")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.dir {
			names = append(names, e.name)
		}
	}
	return names, nil
}

// Invalidate drops the cached listings of every directory that contains
// the written path, so the next List observes it.
func (p *Provider) Invalidate(written string) {
	written = fileobject.Canonical(written)
	for key := range p.dirs {
		if fileobject.IsUnder(written, joinRel(key.root, key.dir)) {
			delete(p.dirs, key)
			p.stats.Invalidations++
		}
	}
	for id, h := range p.handles {
		if h.Path() == written {
			delete(p.handles, id)
		}
	}
}

// Close releases archives and drops every cache.
func (p *Provider) Close() error {
	var errs []error
	for root, a := range p.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.archives, root)
	}
	clear(p.badRoots)
	clear(p.dirs)
	clear(p.handles)
	return errors.Join(errs...)
}

func joinRel(root, rel string) string {
	if rel == "" {
		return root
	}
	return path.Join(root, rel)
}
