package fileobject

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// ArchiveExtensions are the suffixes of roots treated as archives.
var ArchiveExtensions = []string{".jar", ".zip"}

// IsArchive reports whether p names an archive root.
func IsArchive(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range ArchiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Archive is an opened zip/jar file with an entry index.
type Archive struct {
	path    string
	file    afero.File
	reader  *zip.Reader
	entries map[string]*zip.File
	names   []string
}

// OpenArchive opens the archive at p on fsys.
func OpenArchive(fsys afero.Fs, p string) (*Archive, error) {
	p = Canonical(p)
	f, err := fsys.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", p, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive %s: %w", p, err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read archive %s: %w", p, err)
	}
	a := &Archive{
		path:    p,
		file:    f,
		reader:  zr,
		entries: make(map[string]*zip.File, len(zr.File)),
	}
	for _, zf := range zr.File {
		name := strings.TrimPrefix(zf.Name, "/")
		a.entries[name] = zf
		a.names = append(a.names, name)
	}
	sort.Strings(a.names)
	return a, nil
}

// Path returns the canonical path of the archive.
func (a *Archive) Path() string { return a.path }

// Names returns every entry name in sorted order. Directory entries end in
// a slash.
func (a *Archive) Names() []string { return a.names }

// Has reports whether the archive contains the entry.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// IsDir reports whether name is a directory inside the archive, either as
// an explicit entry or implied by a deeper entry.
func (a *Archive) IsDir(name string) bool {
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return true
	}
	if _, ok := a.entries[name+"/"]; ok {
		return true
	}
	i := sort.SearchStrings(a.names, name+"/")
	return i < len(a.names) && strings.HasPrefix(a.names[i], name+"/")
}

// ReadEntry returns the uncompressed content of an entry.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	zf, ok := a.entries[name]
	if !ok || strings.HasSuffix(name, "/") {
		return nil, &compiler.NotFoundError{Name: a.path + "!/" + name}
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s!/%s: %w", a.path, name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.file.Close()
}

// ArchiveEntry is a read-only handle over one entry of an archive.
type ArchiveEntry struct {
	archive  *Archive
	entry    string
	kind     compiler.Kind
	encoding string
	location compiler.Location
}

var _ Handle = (*ArchiveEntry)(nil)

// NewArchiveEntry returns a handle over entry inside a.
func NewArchiveEntry(a *Archive, entry, encoding string, loc compiler.Location) *ArchiveEntry {
	return &ArchiveEntry{
		archive:  a,
		entry:    entry,
		kind:     compiler.KindOf(entry),
		encoding: encoding,
		location: loc,
	}
}

func (e *ArchiveEntry) URI() string                 { return "jar:file://" + e.archive.path + "!/" + e.entry }
func (e *ArchiveEntry) Name() string                { return e.archive.path + "(" + e.entry + ")" }
func (e *ArchiveEntry) Path() string                { return e.archive.path + "!/" + e.entry }
func (e *ArchiveEntry) Entry() string               { return e.entry }
func (e *ArchiveEntry) ArchivePath() string         { return e.archive.path }
func (e *ArchiveEntry) Kind() compiler.Kind         { return e.kind }
func (e *ArchiveEntry) Location() compiler.Location { return e.location }

func (e *ArchiveEntry) OpenInput() (io.ReadCloser, error) {
	data, err := e.archive.ReadEntry(e.entry)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (e *ArchiveEntry) OpenOutput() (io.WriteCloser, error) {
	return nil, compiler.ErrUnsupported
}

func (e *ArchiveEntry) CharContent(ignoreEncodingErrors bool) (string, error) {
	data, err := e.archive.ReadEntry(e.entry)
	if err != nil {
		return "", err
	}
	return Decode(data, e.encoding, ignoreEncodingErrors)
}

func (e *ArchiveEntry) LastModified() time.Time {
	if zf, ok := e.archive.entries[e.entry]; ok {
		return zf.Modified
	}
	return time.Time{}
}

func (e *ArchiveEntry) Delete() bool { return false }

func (e *ArchiveEntry) IsNameCompatible(simpleName string, kind compiler.Kind) bool {
	return compiler.NameCompatible(path.Base(e.entry), simpleName, kind)
}

// Equal compares archive entries by archive path and entry name.
func (e *ArchiveEntry) Equal(other compiler.FileObject) bool {
	switch o := other.(type) {
	case *ArchiveEntry:
		return e.archive.path == o.archive.path && e.entry == o.entry
	case *Transformed:
		return e.Equal(o.FileObject)
	}
	return false
}

// InferBinaryName treats the archive itself as the root: any root equal
// to the archive path yields the entry's binary name.
func (e *ArchiveEntry) InferBinaryName(roots []string) (string, bool) {
	for _, root := range roots {
		if Canonical(root) == e.archive.path {
			return binaryName(e.entry), true
		}
	}
	return "", false
}

func (e *ArchiveEntry) String() string { return e.Name() }
