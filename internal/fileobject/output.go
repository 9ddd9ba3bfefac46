package fileobject

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// CommitFunc receives the content of an output file once, when it is
// closed.
type CommitFunc func(f *OutputFile, content []byte) error

// OutputFile buffers compiler output in memory. On the first Close the
// buffer is handed to the commit callback and then written to the durable
// store; later Close calls are no-ops.
type OutputFile struct {
	store     afero.Fs
	path      string
	kind      compiler.Kind
	location  compiler.Location
	root      string
	className string
	onCommit  CommitFunc

	mu        sync.Mutex
	buf       bytes.Buffer
	opened    bool
	committed bool
	content   []byte
	err       error
	modified  time.Time
}

var _ Handle = (*OutputFile)(nil)

// OutputOptions describe where an output file belongs.
type OutputOptions struct {
	// Store receives the bytes on commit. Nil skips the durable write.
	Store afero.Fs
	// Root is the output directory the file was resolved against.
	Root     string
	Location compiler.Location
	// ClassName is the binary name the compiler asked for, if any.
	ClassName string
	OnCommit  CommitFunc
}

// NewOutput returns an empty output file at p.
func NewOutput(p string, opts OutputOptions) *OutputFile {
	p = Canonical(p)
	return &OutputFile{
		store:     opts.Store,
		path:      p,
		kind:      compiler.KindOf(p),
		location:  opts.Location,
		root:      Canonical(opts.Root),
		className: opts.ClassName,
		onCommit:  opts.OnCommit,
	}
}

func (f *OutputFile) URI() string                 { return "file://" + f.path }
func (f *OutputFile) Name() string                { return f.path }
func (f *OutputFile) Path() string                { return f.path }
func (f *OutputFile) Kind() compiler.Kind         { return f.kind }
func (f *OutputFile) Location() compiler.Location { return f.location }
func (f *OutputFile) Root() string                { return f.root }
func (f *OutputFile) ClassName() string           { return f.className }

// OpenOutput returns the single write stream of the file.
func (f *OutputFile) OpenOutput() (io.WriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened || f.committed {
		return nil, compiler.IllegalState("output %s already opened", f.path)
	}
	f.opened = true
	return &outputStream{f: f}, nil
}

// OpenInput reads back committed content.
func (f *OutputFile) OpenInput() (io.ReadCloser, error) {
	data, err := f.committedContent()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *OutputFile) CharContent(ignoreEncodingErrors bool) (string, error) {
	data, err := f.committedContent()
	if err != nil {
		return "", err
	}
	return Decode(data, "", ignoreEncodingErrors)
}

func (f *OutputFile) committedContent() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.committed {
		return nil, &compiler.NotFoundError{Name: f.path}
	}
	return f.content, nil
}

// Content returns the committed bytes, or nil before Close.
func (f *OutputFile) Content() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content
}

// Close commits the buffered content. It is safe to call more than once;
// only the first call commits and its error is returned again afterwards.
func (f *OutputFile) Close() error {
	f.mu.Lock()
	if f.committed {
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.committed = true
	f.content = append([]byte(nil), f.buf.Bytes()...)
	f.buf.Reset()
	f.modified = time.Now()
	content := f.content
	f.mu.Unlock()

	var err error
	if f.onCommit != nil {
		err = f.onCommit(f, content)
	}
	if err == nil && f.store != nil {
		err = f.persist(content)
	}

	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return err
}

// persist writes through a temporary sibling and renames it into place so
// readers never observe a partial file.
func (f *OutputFile) persist(content []byte) error {
	dir := path.Dir(f.path)
	if err := f.store.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.store, tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := f.store.Rename(tmp, f.path); err != nil {
		_ = f.store.Remove(tmp)
		return fmt.Errorf("rename %s: %w", f.path, err)
	}
	return nil
}

func (f *OutputFile) LastModified() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modified
}

func (f *OutputFile) Delete() bool {
	if f.store == nil {
		return false
	}
	return f.store.Remove(f.path) == nil
}

func (f *OutputFile) IsNameCompatible(simpleName string, kind compiler.Kind) bool {
	return compiler.NameCompatible(path.Base(f.path), simpleName, kind)
}

// Equal compares outputs by URI.
func (f *OutputFile) Equal(other compiler.FileObject) bool {
	if other == nil {
		return false
	}
	return f.URI() == other.URI()
}

func (f *OutputFile) InferBinaryName(roots []string) (string, bool) {
	return inferFromRoots(f.path, roots)
}

func (f *OutputFile) String() string { return f.path }

type outputStream struct {
	f *OutputFile
}

func (s *outputStream) Write(p []byte) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.committed {
		return 0, compiler.IllegalState("write to closed output %s", s.f.path)
	}
	return s.f.buf.Write(p)
}

func (s *outputStream) Close() error {
	return s.f.Close()
}
