package filemanager

import (
	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// Output describes one file the compiler produced.
type Output struct {
	Kind compiler.Kind
	Path string
	// Generated is true when the file exists because an annotation
	// processor asked for it, directly or through a generated source.
	Generated bool
	// Sources are the URIs of the source files the output originates from.
	Sources  []string
	Content  []byte
	Root     string
	Location compiler.Location
	// ClassName is the binary name for class outputs, empty otherwise.
	ClassName string
}

// OutputSink receives compiler products as they are committed.
type OutputSink interface {
	OutputWritten(out Output) error
	SourceLoaded(uri string)
}

// ExternalLister is an optional host collaborator that lists and routes
// files without touching the local disk.
type ExternalLister interface {
	// List returns virtual entries for the package. It returns
	// compiler.ErrUnsupported when the host cannot serve the location.
	List(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error)
	// OutputDirectory routes an output. An empty result means the host
	// has no opinion.
	OutputDirectory(loc compiler.Location, name string, kind compiler.Kind, sibling compiler.FileObject) (string, error)
}

// HostFile is source content supplied by the host.
type HostFile struct {
	Path    string
	Content []byte
}

// DataProvider supplies file bytes for sources that live outside the
// local file system.
type DataProvider interface {
	Files(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]HostFile, error)
}

// AttributionRecorder is the part of the manager the interception layer
// records generated-file attribution into.
type AttributionRecorder interface {
	RecordAttribution(artifact string, sources []string)
}
