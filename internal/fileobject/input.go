package fileobject

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"time"
	"weak"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// text holds decoded content behind a weak pointer so that the collector
// may drop it between reads.
type text struct {
	s string
}

// InputFile is a read-only handle over a file on an afero.Fs.
type InputFile struct {
	fs       afero.Fs
	path     string
	kind     compiler.Kind
	encoding string
	location compiler.Location
	cached   weak.Pointer[text]
}

var _ Handle = (*InputFile)(nil)

// NewInput returns a handle for the file at p. The path is canonicalised.
func NewInput(fsys afero.Fs, p, encoding string, loc compiler.Location) *InputFile {
	p = Canonical(p)
	return &InputFile{
		fs:       fsys,
		path:     p,
		kind:     compiler.KindOf(p),
		encoding: encoding,
		location: loc,
	}
}

func (f *InputFile) URI() string                 { return "file://" + f.path }
func (f *InputFile) Name() string                { return f.path }
func (f *InputFile) Path() string                { return f.path }
func (f *InputFile) Kind() compiler.Kind         { return f.kind }
func (f *InputFile) Location() compiler.Location { return f.location }

func (f *InputFile) OpenInput() (io.ReadCloser, error) {
	file, err := f.fs.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &compiler.NotFoundError{Name: f.path, Err: err}
		}
		return nil, err
	}
	return file, nil
}

func (f *InputFile) OpenOutput() (io.WriteCloser, error) {
	return nil, compiler.ErrUnsupported
}

// CharContent returns the decoded content. The file is re-read whenever
// the cached copy has been collected.
func (f *InputFile) CharContent(ignoreEncodingErrors bool) (string, error) {
	if t := f.cached.Value(); t != nil {
		return t.s, nil
	}
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &compiler.NotFoundError{Name: f.path, Err: err}
		}
		return "", err
	}
	s, err := Decode(data, f.encoding, ignoreEncodingErrors)
	if err != nil {
		return "", err
	}
	f.cached = weak.Make(&text{s: s})
	return s, nil
}

func (f *InputFile) LastModified() time.Time {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (f *InputFile) Delete() bool {
	return f.fs.Remove(f.path) == nil
}

func (f *InputFile) IsNameCompatible(simpleName string, kind compiler.Kind) bool {
	return compiler.NameCompatible(path.Base(f.path), simpleName, kind)
}

// Equal compares input handles by canonical path.
func (f *InputFile) Equal(other compiler.FileObject) bool {
	switch o := other.(type) {
	case *InputFile:
		return f.path == o.path
	case *ProvidedFile:
		return f.path == o.path
	case *Transformed:
		return f.Equal(o.FileObject)
	}
	return false
}

func (f *InputFile) InferBinaryName(roots []string) (string, bool) {
	return inferFromRoots(f.path, roots)
}

func (f *InputFile) String() string { return f.path }
