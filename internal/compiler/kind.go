// Package compiler defines the narrow SPI between the driver and a wrapped
// batch compiler: file objects, file managers, locations, diagnostics,
// annotation processing collaborators and the tool/task pair that runs one
// compilation.
package compiler

import (
	"strings"
)

// Kind classifies the content of a file object.
type Kind int

const (
	KindOther Kind = iota
	KindSource
	KindClass
	KindHTML
)

var kindExtensions = map[Kind]string{
	KindSource: ".java",
	KindClass:  ".class",
	KindHTML:   ".html",
	KindOther:  "",
}

// Extension returns the filename suffix that identifies the kind, or the
// empty string for KindOther.
func (k Kind) Extension() string {
	return kindExtensions[k]
}

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "SOURCE"
	case KindClass:
		return "CLASS"
	case KindHTML:
		return "HTML"
	default:
		return "OTHER"
	}
}

// KindOf derives the kind of a file from its name.
func KindOf(name string) Kind {
	for _, k := range []Kind{KindSource, KindClass, KindHTML} {
		if strings.HasSuffix(name, k.Extension()) {
			return k
		}
	}
	return KindOther
}

// KindSet is a set of kinds used to filter listings.
type KindSet map[Kind]struct{}

// Kinds builds a KindSet from the given kinds.
func Kinds(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Only reports whether the set holds exactly the single kind k.
func (s KindSet) Only(k Kind) bool {
	return len(s) == 1 && s.Has(k)
}
