package plugins

import (
	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// ExtensionSink is what an extension may report through: diagnostics and
// named binary blobs.
type ExtensionSink interface {
	compiler.DiagnosticListener
	CustomData(name string, data []byte)
}

// Extension is a third-party compiler extension. Install runs once per
// compilation, after the task is created and before it is called. An
// extension's failure never aborts the compilation.
type Extension interface {
	Name() string
	Install(tool compiler.Tool, task compiler.Task, options []string, sink ExtensionSink) error
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc struct {
	ExtName string
	Fn      func(tool compiler.Tool, task compiler.Task, options []string, sink ExtensionSink) error
}

func (e ExtensionFunc) Name() string { return e.ExtName }

func (e ExtensionFunc) Install(tool compiler.Tool, task compiler.Task, options []string, sink ExtensionSink) error {
	return e.Fn(tool, task, options, sink)
}
