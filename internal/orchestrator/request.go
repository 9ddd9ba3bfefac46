package orchestrator

import (
	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// Request describes one compiler invocation. It must not be modified
// while Compile runs.
type Request struct {
	// Options are compiler flags in order. Path flags the driver owns
	// (-encoding, -extdirs, -processorpath, -d, -s) may appear here too.
	Options []string
	Sources []string

	PlatformClassPath []string
	UpgradeModulePath []string
	ModulePath        []string
	ClassPath         []string
	// SourcePath defaults to the source roots of Outputs.
	SourcePath []string
	// ProcessorPath defaults to ClassPath, or to ModulePath when a module
	// path is set.
	ProcessorPath []string

	// Outputs maps each output directory to the source roots it receives
	// output for.
	Outputs map[string][]string

	// Canceled is sampled by the file manager. Nil never cancels.
	Canceled func() bool

	Sink         Sink
	Lister       filemanager.ExternalLister
	Provider     filemanager.DataProvider
	Transformers []fileobject.SourceTransformer
}

// Sink receives everything the compiler produces.
type Sink interface {
	filemanager.OutputSink
	compiler.DiagnosticListener
	// OutputLine receives one line of free-text compiler output.
	OutputLine(line string)
	// CustomData receives named blobs produced by compiler extensions.
	CustomData(name string, data []byte)
}

// Outcome is the result of a compilation.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	// Canceled means the compilation did not complete.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of an Orchestrator.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func stateOf(o Outcome) State {
	switch o {
	case Succeeded:
		return StateSucceeded
	case Canceled:
		return StateCanceled
	default:
		return StateFailed
	}
}

type discardSink struct{}

func (discardSink) OutputWritten(filemanager.Output) error { return nil }
func (discardSink) SourceLoaded(string)                    {}
func (discardSink) Report(compiler.Diagnostic)             {}
func (discardSink) OutputLine(string)                      {}
func (discardSink) CustomData(string, []byte)              {}
