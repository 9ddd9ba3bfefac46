// Package filemanager implements the virtual file manager the wrapped
// compiler performs all of its I/O through. It routes every list, open and
// name inference call to the right backing store, attributes generated
// outputs to their originating sources and owns the per-invocation state.
package filemanager

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
	"github.com/efebarandurmaz/kiln/internal/listing"
	"github.com/efebarandurmaz/kiln/internal/observability"
)

// LoaderFactory builds the class loader of a location from its roots.
type LoaderFactory func(loc compiler.Location, roots []string) (compiler.ClassLoader, error)

// Options configure a Manager.
type Options struct {
	// Fs backs every file-system location and receives outputs. Defaults
	// to the OS file system.
	Fs       afero.Fs
	Encoding string

	// Canceled is sampled every CancelCheckInterval calls.
	Canceled            func() bool
	CancelCheckInterval int

	Sink         OutputSink
	Lister       ExternalLister
	Provider     DataProvider
	Transformers []fileobject.SourceTransformer
	Loaders      LoaderFactory

	Logger  *slog.Logger
	Metrics *observability.DriverMetrics
}

// Manager is the virtual file manager. It is open from construction until
// Close, after which every operation fails.
//
// A Manager serves one compilation thread and is not safe for concurrent
// use.
type Manager struct {
	base     compiler.StandardFileManager
	fs       afero.Fs
	listing  *listing.Provider
	encoding string
	cancel   *canceler

	locations   map[compiler.Location][]string
	outputs     map[string][]string
	outputOrder []string

	inputs      map[string]fileobject.Handle
	sourceIndex map[string]string
	attribution *Attribution
	loaded      map[string]bool

	sink         OutputSink
	lister       ExternalLister
	provider     DataProvider
	transformers []fileobject.SourceTransformer

	loaderFactory LoaderFactory
	loaders       map[compiler.Location]compiler.ClassLoader
	closeList     []io.Closer

	closed  bool
	logger  *slog.Logger
	metrics *observability.DriverMetrics
}

var (
	_ compiler.StandardFileManager = (*Manager)(nil)
	_ compiler.Forwarding          = (*Manager)(nil)
	_ AttributionRecorder          = (*Manager)(nil)
)

// New wraps base.
func New(base compiler.StandardFileManager, opts Options) *Manager {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		base:          base,
		fs:            opts.Fs,
		encoding:      opts.Encoding,
		cancel:        newCanceler(opts.Canceled, opts.CancelCheckInterval),
		locations:     make(map[compiler.Location][]string),
		outputs:       make(map[string][]string),
		inputs:        make(map[string]fileobject.Handle),
		attribution:   NewAttribution(),
		loaded:        make(map[string]bool),
		sink:          opts.Sink,
		lister:        opts.Lister,
		provider:      opts.Provider,
		transformers:  opts.Transformers,
		loaderFactory: opts.Loaders,
		loaders:       make(map[compiler.Location]compiler.ClassLoader),
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	m.listing = listing.New(opts.Fs, opts.Encoding,
		listing.WithProbe(func() error { return m.cancel.check(familyExistence) }),
		listing.WithLogger(opts.Logger),
	)
	return m
}

// Delegate returns the wrapped base manager.
func (m *Manager) Delegate() compiler.FileManager {
	return m.base
}

// Encoding returns the source encoding in effect.
func (m *Manager) Encoding() string {
	return m.encoding
}

// SetEncoding changes the source encoding. It must be called before any
// file is listed or opened.
func (m *Manager) SetEncoding(enc string) error {
	if _, err := fileobject.LookupEncoding(enc); err != nil {
		return err
	}
	m.encoding = enc
	m.listing.SetEncoding(enc)
	return nil
}

// Attribution exposes the generated-file attribution map.
func (m *Manager) Attribution() *Attribution {
	return m.attribution
}

// RecordAttribution records that artifact was generated on behalf of the
// given qualified source names.
func (m *Manager) RecordAttribution(artifact string, sources []string) {
	m.attribution.Record(artifact, sources...)
	m.logger.Debug("attribution recorded", "artifact", artifact, "sources", sources)
}

// ListingStats returns the listing cache counters.
func (m *Manager) ListingStats() listing.Stats {
	return m.listing.Stats()
}

// CancelSamples returns how many times the cancellation predicate has
// been consulted.
func (m *Manager) CancelSamples() int {
	return m.cancel.samples
}

func (m *Manager) ensureOpen() error {
	if m.closed {
		return compiler.IllegalState("file manager is closed")
	}
	return nil
}

// SetOutputDirectories validates every directory as a class output and
// records which source roots each one receives output for.
func (m *Manager) SetOutputDirectories(dirs map[string][]string) error {
	if err := m.ensureOpen(); err != nil {
		return err
	}
	outputs := make(map[string][]string, len(dirs))
	order := make([]string, 0, len(dirs))
	for dir, roots := range dirs {
		if strings.TrimSpace(dir) == "" {
			return compiler.IllegalArgument("empty output directory")
		}
		canonical := fileobject.Canonical(dir)
		if err := m.validateOutputDir(canonical); err != nil {
			return err
		}
		cr := make([]string, 0, len(roots))
		for _, r := range roots {
			cr = append(cr, fileobject.Canonical(r))
		}
		outputs[canonical] = cr
		order = append(order, canonical)
	}
	sort.Strings(order)
	m.outputs = outputs
	m.outputOrder = order
	m.sourceIndex = nil

	if len(order) > 0 && len(m.Location(compiler.ClassOutput)) == 0 {
		if err := m.SetLocation(compiler.ClassOutput, order[:1]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) validateOutputDir(dir string) error {
	info, err := m.fs.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return compiler.IllegalArgument("output directory %s: %v", dir, err)
	}
	if !info.IsDir() {
		return compiler.IllegalArgument("output directory %s is not a directory", dir)
	}
	return nil
}

// SetInputSources turns raw source paths into input handles and remembers
// them as the index used to find the source a generated file came from.
func (m *Manager) SetInputSources(paths []string) ([]compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	out := make([]compiler.FileObject, 0, len(paths))
	for _, p := range paths {
		canonical := fileobject.Canonical(p)
		h, ok := m.inputs[canonical]
		if !ok {
			h = fileobject.NewInput(m.fs, canonical, m.encoding, compiler.SourcePath)
			m.inputs[canonical] = h
		}
		out = append(out, m.wrapSource(h, true))
	}
	m.sourceIndex = nil
	return out, nil
}

// wrapSource applies the source transformers. Sources handed to the
// compiler as units or by explicit lookup are reported as loaded.
func (m *Manager) wrapSource(fo compiler.FileObject, loaded bool) compiler.FileObject {
	if loaded && fo.Kind() == compiler.KindSource {
		m.sourceLoaded(fo)
	}
	return fileobject.WithTransformers(fo, m.transformers)
}

func (m *Manager) sourceLoaded(fo compiler.FileObject) {
	uri := fo.URI()
	if m.loaded[uri] {
		return
	}
	m.loaded[uri] = true
	if m.sink != nil {
		m.sink.SourceLoaded(uri)
	}
}

// FileObjects implements compiler.StandardFileManager.
func (m *Manager) FileObjects(paths ...string) ([]compiler.FileObject, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	out := make([]compiler.FileObject, 0, len(paths))
	for _, p := range paths {
		canonical := fileobject.Canonical(p)
		if h, ok := m.inputs[canonical]; ok {
			out = append(out, m.wrapSource(h, true))
			continue
		}
		out = append(out, m.wrapSource(fileobject.NewInput(m.fs, canonical, m.encoding, compiler.Location{}), true))
	}
	return out, nil
}

// locationOptions are the path options the manager applies itself.
var locationOptions = map[string]compiler.Location{
	"-d":                      compiler.ClassOutput,
	"-s":                      compiler.SourceOutput,
	"-h":                      compiler.NativeHeaderOutput,
	"-processorpath":          compiler.AnnotationProcessorPath,
	"--processor-path":        compiler.AnnotationProcessorPath,
	"--processor-module-path": compiler.AnnotationProcessorModulePath,
}

// IsSupportedOption implements compiler.FileManager.
func (m *Manager) IsSupportedOption(option string) int {
	if option == "-encoding" {
		return 1
	}
	if _, ok := locationOptions[option]; ok {
		return 1
	}
	return m.base.IsSupportedOption(option)
}

// HandleOption implements compiler.FileManager. Options the manager does
// not own go to the base manager.
func (m *Manager) HandleOption(option, value string) (bool, error) {
	if err := m.ensureOpen(); err != nil {
		return false, err
	}
	if option == "-encoding" {
		if err := m.SetEncoding(value); err != nil {
			return false, err
		}
		_, _ = m.base.HandleOption(option, value)
		return true, nil
	}
	if loc, ok := locationOptions[option]; ok {
		paths := filepath.SplitList(value)
		if loc.Output && len(paths) != 1 {
			return false, compiler.IllegalArgument("%s takes exactly one directory", option)
		}
		if loc.Output {
			if err := m.validateOutputDir(fileobject.Canonical(paths[0])); err != nil {
				return false, err
			}
		}
		return true, m.SetLocation(loc, paths)
	}
	return m.base.HandleOption(option, value)
}

// Flush implements compiler.FileManager.
func (m *Manager) Flush() error {
	return m.base.Flush()
}

// ClassLoader returns the loader of loc, creating it on first use. Every
// loader is closed when the manager closes.
func (m *Manager) ClassLoader(loc compiler.Location) (compiler.ClassLoader, error) {
	if err := m.ensureOpen(); err != nil {
		return nil, err
	}
	if cl, ok := m.loaders[loc]; ok {
		return cl, nil
	}
	var (
		cl  compiler.ClassLoader
		err error
	)
	if m.loaderFactory != nil {
		cl, err = m.loaderFactory(loc, m.Location(loc))
	} else {
		cl, err = m.base.ClassLoader(loc)
	}
	if err != nil {
		return nil, fmt.Errorf("class loader for %s: %w", loc, err)
	}
	if cl == nil {
		return nil, nil
	}
	m.loaders[loc] = cl
	m.closeList = append(m.closeList, cl)
	m.metrics.ClassLoaderOpened()
	return cl, nil
}

// Close releases all per-invocation state. It is idempotent.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, c := range m.closeList {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		m.metrics.ClassLoaderClosed()
	}
	m.closeList = nil
	clear(m.loaders)
	stats := m.listing.Stats()
	m.metrics.RecordListing(stats.Hits, stats.Misses, stats.Invalidations)
	clear(m.outputs)
	m.outputOrder = nil
	clear(m.inputs)
	m.sourceIndex = nil
	clear(m.loaded)
	m.attribution.Clear()
	if err := m.listing.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.base.Close(); err != nil {
		errs = append(errs, err)
	}
	m.logger.Debug("file manager closed")
	return errors.Join(errs...)
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	return m.closed
}
