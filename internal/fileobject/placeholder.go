package fileobject

import (
	"io"
	"time"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// Placeholder satisfies the FileObject contract where the compiler needs a
// value but no content exists. Every operation is a no-op.
type Placeholder struct {
	name string
}

// NewPlaceholder returns a placeholder with the given display name.
func NewPlaceholder(name string) *Placeholder {
	return &Placeholder{name: name}
}

func (p *Placeholder) URI() string         { return "placeholder:" + p.name }
func (p *Placeholder) Name() string        { return p.name }
func (p *Placeholder) Kind() compiler.Kind { return compiler.KindOther }

func (p *Placeholder) OpenInput() (io.ReadCloser, error) {
	return nil, &compiler.NotFoundError{Name: p.name}
}

func (p *Placeholder) OpenOutput() (io.WriteCloser, error) {
	return nil, compiler.ErrUnsupported
}

func (p *Placeholder) CharContent(bool) (string, error) { return "", nil }
func (p *Placeholder) LastModified() time.Time          { return time.Time{} }
func (p *Placeholder) Delete() bool                     { return false }

func (p *Placeholder) IsNameCompatible(string, compiler.Kind) bool { return false }
