package refc

import (
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

type packageElement struct {
	name string
}

var _ compiler.QualifiedNameable = (*packageElement)(nil)

func (p *packageElement) Kind() compiler.ElementKind         { return compiler.ElementPackage }
func (p *packageElement) EnclosingElement() compiler.Element { return nil }
func (p *packageElement) QualifiedName() string              { return p.name }

func (p *packageElement) SimpleName() string {
	return p.name[strings.LastIndexByte(p.name, '.')+1:]
}

type typeElement struct {
	kind        compiler.ElementKind
	name        string
	qualified   string
	pkg         *packageElement
	annotations []string
	unit        *parsedUnit
	offset      int
}

var _ compiler.QualifiedNameable = (*typeElement)(nil)

func (t *typeElement) Kind() compiler.ElementKind         { return t.kind }
func (t *typeElement) SimpleName() string                 { return t.name }
func (t *typeElement) EnclosingElement() compiler.Element { return t.pkg }
func (t *typeElement) QualifiedName() string              { return t.qualified }

func (t *typeElement) AnnotatedWith(annotation string) bool {
	for _, a := range t.annotations {
		if a == annotation {
			return true
		}
	}
	return false
}

// Annotations returns the qualified names of the annotations on t.
func (t *typeElement) Annotations() []string {
	return append([]string(nil), t.annotations...)
}

type roundEnvironment struct {
	over        bool
	errorRaised bool
	types       []*typeElement
}

var _ compiler.RoundEnvironment = (*roundEnvironment)(nil)

func (r *roundEnvironment) ProcessingOver() bool { return r.over }
func (r *roundEnvironment) ErrorRaised() bool    { return r.errorRaised }

func (r *roundEnvironment) RootElements() []compiler.Element {
	out := make([]compiler.Element, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	return out
}

func (r *roundEnvironment) ElementsAnnotatedWith(annotation string) []compiler.Element {
	var out []compiler.Element
	for _, t := range r.types {
		if t.AnnotatedWith(annotation) {
			out = append(out, t)
		}
	}
	return out
}

// annotationsPresent returns the distinct annotations on the round's
// types, in first-seen order.
func (r *roundEnvironment) annotationsPresent() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range r.types {
		for _, a := range t.annotations {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}
