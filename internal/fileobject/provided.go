package fileobject

import (
	"bytes"
	"io"
	"path"
	"time"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// ContentFunc supplies the bytes of a host-provided file. A nil slice
// with a nil error means the content is not available.
type ContentFunc func() ([]byte, error)

// ProvidedFile is an input whose bytes come from the host rather than
// from disk.
type ProvidedFile struct {
	path     string
	content  ContentFunc
	kind     compiler.Kind
	encoding string
	location compiler.Location
	modified time.Time
}

var _ Handle = (*ProvidedFile)(nil)

// NewProvided returns a handle over host-supplied content at the logical
// path p.
func NewProvided(p string, content ContentFunc, encoding string, loc compiler.Location) *ProvidedFile {
	p = Canonical(p)
	return &ProvidedFile{
		path:     p,
		content:  content,
		kind:     compiler.KindOf(p),
		encoding: encoding,
		location: loc,
		modified: time.Now(),
	}
}

// NewProvidedBytes is NewProvided over a fixed byte slice.
func NewProvidedBytes(p string, data []byte, encoding string, loc compiler.Location) *ProvidedFile {
	return NewProvided(p, func() ([]byte, error) { return data, nil }, encoding, loc)
}

func (f *ProvidedFile) URI() string                 { return "file://" + f.path }
func (f *ProvidedFile) Name() string                { return f.path }
func (f *ProvidedFile) Path() string                { return f.path }
func (f *ProvidedFile) Kind() compiler.Kind         { return f.kind }
func (f *ProvidedFile) Location() compiler.Location { return f.location }
func (f *ProvidedFile) LastModified() time.Time     { return f.modified }
func (f *ProvidedFile) Delete() bool                { return false }

func (f *ProvidedFile) bytes() ([]byte, error) {
	if f.content == nil {
		return nil, &compiler.NotFoundError{Name: f.path}
	}
	data, err := f.content()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, &compiler.NotFoundError{Name: f.path}
	}
	return data, nil
}

func (f *ProvidedFile) OpenInput() (io.ReadCloser, error) {
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *ProvidedFile) OpenOutput() (io.WriteCloser, error) {
	return nil, compiler.ErrUnsupported
}

func (f *ProvidedFile) CharContent(ignoreEncodingErrors bool) (string, error) {
	data, err := f.bytes()
	if err != nil {
		return "", err
	}
	return Decode(data, f.encoding, ignoreEncodingErrors)
}

func (f *ProvidedFile) IsNameCompatible(simpleName string, kind compiler.Kind) bool {
	return compiler.NameCompatible(path.Base(f.path), simpleName, kind)
}

// Equal compares by canonical path, so a provided file equals the disk
// file it stands in for.
func (f *ProvidedFile) Equal(other compiler.FileObject) bool {
	switch o := other.(type) {
	case *ProvidedFile:
		return f.path == o.path
	case *InputFile:
		return f.path == o.path
	case *Transformed:
		return f.Equal(o.FileObject)
	}
	return false
}

func (f *ProvidedFile) InferBinaryName(roots []string) (string, bool) {
	return inferFromRoots(f.path, roots)
}

func (f *ProvidedFile) String() string { return f.path }
