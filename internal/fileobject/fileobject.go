// Package fileobject provides the driver's file handles: one uniform
// compiler.FileObject over files on an afero.Fs, archive entries, bytes
// supplied by the host, and in-memory compiler output.
package fileobject

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// Handle is implemented by every variant in this package.
type Handle interface {
	compiler.FileObject
	compiler.Pather
	compiler.Equaler
	// Location is the location the handle was listed from, or the zero
	// Location when unknown.
	Location() compiler.Location
	// InferBinaryName derives the binary name relative to the first
	// matching root. It returns false when no root contains the handle,
	// leaving the decision to the caller's default inference.
	InferBinaryName(roots []string) (string, bool)
}

// Canonical returns the cleaned absolute slash-separated form of p.
func Canonical(p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) && !strings.HasPrefix(p, "/") {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// FileURI returns the file: URI of a canonical path.
func FileURI(p string) string {
	return "file://" + Canonical(p)
}

// IsUnder reports whether p equals root or lies below it. Both paths must
// be canonical.
func IsUnder(p, root string) bool {
	if root == "/" {
		return strings.HasPrefix(p, "/")
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

// binaryName maps a slash-separated relative path to a binary name by
// dropping the extension and turning separators into dots.
func binaryName(rel string) string {
	base := path.Base(rel)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		rel = rel[:len(rel)-(len(base)-i)]
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// inferFromRoots implements InferBinaryName for path-backed variants.
func inferFromRoots(p string, roots []string) (string, bool) {
	for _, root := range roots {
		root = Canonical(root)
		if p != root && IsUnder(p, root) {
			rel := strings.TrimPrefix(p[len(root):], "/")
			return binaryName(rel), true
		}
	}
	return "", false
}
