package fileobject

import (
	"io"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// SourceTransformer may rewrite source text before the compiler sees it.
type SourceTransformer interface {
	Transform(fo compiler.FileObject, text string) (string, error)
}

// TransformerFunc adapts a function to SourceTransformer.
type TransformerFunc func(fo compiler.FileObject, text string) (string, error)

func (f TransformerFunc) Transform(fo compiler.FileObject, text string) (string, error) {
	return f(fo, text)
}

// Transformed wraps a source handle and applies transformers, in order, to
// its char content.
type Transformed struct {
	compiler.FileObject
	transformers []SourceTransformer
}

// WithTransformers wraps fo when there is anything to apply.
func WithTransformers(fo compiler.FileObject, transformers []SourceTransformer) compiler.FileObject {
	if len(transformers) == 0 || fo.Kind() != compiler.KindSource {
		return fo
	}
	return &Transformed{FileObject: fo, transformers: transformers}
}

// Unwrap returns the untransformed handle.
func (t *Transformed) Unwrap() compiler.FileObject { return t.FileObject }

func (t *Transformed) CharContent(ignoreEncodingErrors bool) (string, error) {
	text, err := t.FileObject.CharContent(ignoreEncodingErrors)
	if err != nil {
		return "", err
	}
	for _, tr := range t.transformers {
		if text, err = tr.Transform(t.FileObject, text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (t *Transformed) OpenInput() (io.ReadCloser, error) {
	text, err := t.CharContent(false)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

// Equal defers to the wrapped handle.
func (t *Transformed) Equal(other compiler.FileObject) bool {
	if o, ok := other.(*Transformed); ok {
		other = o.FileObject
	}
	return compiler.SameFile(t.FileObject, other)
}

// Unwrap strips a Transformed wrapper, if any.
func Unwrap(fo compiler.FileObject) compiler.FileObject {
	if t, ok := fo.(*Transformed); ok {
		return t.FileObject
	}
	return fo
}
