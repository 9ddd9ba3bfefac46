package compiler

import "io"

// FileManager is the pluggable file manager contract the compiler drives for
// every file it reads or writes.
type FileManager interface {
	io.Closer

	List(loc Location, pkg string, kinds KindSet, recurse bool) ([]FileObject, error)
	// InferBinaryName returns the binary name of fo within loc, or false
	// when the manager has no opinion.
	InferBinaryName(loc Location, fo FileObject) (string, bool)
	IsSameFile(a, b FileObject) bool

	// IsSupportedOption returns the number of arguments the option takes,
	// or -1 when the option is not recognised.
	IsSupportedOption(option string) int
	// HandleOption applies option with its argument (empty when the option
	// takes none) and reports whether it was consumed.
	HandleOption(option, value string) (bool, error)

	HasLocation(loc Location) bool
	FileForInput(loc Location, className string, kind Kind) (FileObject, error)
	FileForOutput(loc Location, className string, kind Kind, sibling FileObject) (FileObject, error)
	ResourceForInput(loc Location, pkg, relativeName string) (FileObject, error)
	ResourceForOutput(loc Location, pkg, relativeName string, sibling FileObject) (FileObject, error)
	ClassLoader(loc Location) (ClassLoader, error)
	Flush() error

	LocationForModule(loc Location, module string) (Location, error)
	InferModuleName(loc Location) (string, error)
	ListLocationsForModules(loc Location) ([]Location, error)
	Contains(loc Location, fo FileObject) (bool, error)
}

// StandardFileManager is a FileManager whose locations are configured from
// path lists.
type StandardFileManager interface {
	FileManager

	SetLocation(loc Location, paths []string) error
	Location(loc Location) []string
	// FileObjects turns raw paths into file objects suitable as
	// compilation units.
	FileObjects(paths ...string) ([]FileObject, error)
}

// Forwarding is implemented by file managers that wrap another one.
type Forwarding interface {
	Delegate() FileManager
}

// PathLister is an optional capability offered by newer base file managers
// and not by every wrapper.
type PathLister interface {
	PathsForLocation(loc Location) ([]string, error)
}

// ClassLoader resolves processors and resources against the roots of one
// location. Loaders hold open archives and must be closed.
type ClassLoader interface {
	io.Closer

	Roots() []string
	// LoadProcessor instantiates the processor registered under the fully
	// qualified name.
	LoadProcessor(name string) (Processor, error)
	// Resources returns the content of every resource with the given
	// slash-separated name, in root order.
	Resources(name string) ([][]byte, error)
}
