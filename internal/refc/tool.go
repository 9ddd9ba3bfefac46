// Package refc is a small reference compiler for Java-like sources. It
// outlines compilation units, runs annotation processing rounds and writes
// one class file per top-level type, performing all I/O through the file
// manager it is given.
package refc

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// Name is the name the tool registers under.
const Name = "refc"

// Tool is the reference compiler descriptor.
type Tool struct {
	fs     afero.Fs
	logger *slog.Logger
}

var (
	_ compiler.Tool             = (*Tool)(nil)
	_ compiler.GlobalCacheOwner = (*Tool)(nil)
)

// New returns the tool reading and writing through fsys.
func New(fsys afero.Fs, logger *slog.Logger) *Tool {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{fs: fsys, logger: logger}
}

func (t *Tool) Name() string  { return Name }
func (t *Tool) Primary() bool { return true }

// StandardFileManager returns a fresh base manager.
func (t *Tool) StandardFileManager(listener compiler.DiagnosticListener, locale, encoding string) (compiler.StandardFileManager, error) {
	if encoding == "" {
		encoding = fileobject.DefaultEncoding
	}
	if _, err := fileobject.LookupEncoding(encoding); err != nil {
		return nil, err
	}
	return NewBaseManager(t.fs, encoding), nil
}

// GlobalCaches returns the caches the compiler keeps across invocations.
func (t *Tool) GlobalCaches() (compiler.CacheResetter, error) {
	return GlobalCaches{}, nil
}

var (
	flagOptions = map[string]bool{
		"-g": true, "-g:none": true, "-nowarn": true, "-verbose": true,
		"-deprecation": true, "-parameters": true, "-Werror": true,
		"-proc:none": true, "-proc:only": true, "-proc:full": true,
		"-implicit:none": true, "-implicit:class": true, "-Xlint": true,
		"-XprintRounds": true, "-XprintProcessorInfo": true,
	}
	valueOptions = map[string]bool{
		"-source": true, "--source": true, "-target": true, "--target": true,
		"--release": true, "-processor": true, "-Xmaxerrs": true, "-Xmaxwarns": true,
	}
	flagPrefixes = []string{"-A", "-Xlint:", "-g:"}
)

// IsSupportedOption returns the number of arguments option takes, or -1.
func (t *Tool) IsSupportedOption(option string) int {
	switch {
	case flagOptions[option]:
		return 0
	case valueOptions[option]:
		return 1
	}
	for _, p := range flagPrefixes {
		if strings.HasPrefix(option, p) && len(option) > len(p) {
			return 0
		}
	}
	return -1
}

// Task creates a compilation of units. Options are validated here;
// unknown options are an illegal argument.
func (t *Tool) Task(out io.Writer, fm compiler.FileManager, listener compiler.DiagnosticListener, options, classes []string, units []compiler.FileObject) (compiler.Task, error) {
	if fm == nil {
		return nil, compiler.IllegalArgument("no file manager")
	}
	if len(classes) > 0 {
		return nil, compiler.IllegalArgument("class names for annotation processing are not supported: %s", strings.Join(classes, ", "))
	}
	if out == nil {
		out = io.Discard
	}
	if listener == nil {
		listener = compiler.DiagnosticListenerFunc(func(compiler.Diagnostic) {})
	}
	task := &Task{
		tool:     t,
		out:      out,
		listener: listener,
		units:    units,
		context:  compiler.NewContext(),
		slot:     &compiler.LoaderSlot{},
		locale:   "en",
		release:  "21",
		procOpts: make(map[string]string),
		procMode: "full",
		maxErrs:  100,
	}
	if err := task.applyOptions(options); err != nil {
		return nil, err
	}
	task.context.Put(compiler.FileManagerKey, fm)
	task.context.Put("diagnosticListener", listener)
	task.context.Put("options", append([]string(nil), options...))
	return task, nil
}
