package compiler

import (
	"io"
	"time"
)

// FileObject is a handle over one unit of source, class or resource content.
type FileObject interface {
	// URI is the canonical identity of the file object.
	URI() string
	// Name is a user-friendly name, usually the path.
	Name() string
	Kind() Kind
	OpenInput() (io.ReadCloser, error)
	OpenOutput() (io.WriteCloser, error)
	// CharContent decodes the content using the file's declared encoding.
	CharContent(ignoreEncodingErrors bool) (string, error)
	LastModified() time.Time
	Delete() bool
	// IsNameCompatible reports whether the file could hold the given simple
	// name of the given kind ("Foo" + KindSource matches "Foo.java").
	IsNameCompatible(simpleName string, kind Kind) bool
}

// Pather is implemented by file objects backed by a path on some store.
type Pather interface {
	Path() string
}

// Equaler lets file object variants define their own equality.
type Equaler interface {
	Equal(other FileObject) bool
}

// SameFile reports whether a and b denote the same file: by the variant's
// own Equal method when available, else by URI.
func SameFile(a, b FileObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	if eq, ok := a.(Equaler); ok {
		return eq.Equal(b)
	}
	return a.URI() == b.URI()
}

// NameCompatible implements the common IsNameCompatible rule.
func NameCompatible(baseName, simpleName string, kind Kind) bool {
	return KindOf(baseName) == kind && baseName == simpleName+kind.Extension()
}
