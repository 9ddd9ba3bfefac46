package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/orchestrator"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	noteColor  = color.New(color.FgCyan)
	faintColor = color.New(color.Faint)
)

// console prints compiler products the way javac does on a terminal.
type console struct {
	w           io.Writer
	logger      *slog.Logger
	locale      string
	listOutputs bool
	// record, when set, sees every committed output.
	record func(filemanager.Output)

	errors   int
	warnings int
}

var _ orchestrator.Sink = (*console)(nil)

func (c *console) Report(d compiler.Diagnostic) {
	msg, err := d.Message(c.locale)
	if err != nil {
		msg = d.Code()
	}
	label, col := severity(d.Kind())
	switch d.Kind() {
	case compiler.DiagnosticError:
		c.errors++
	case compiler.DiagnosticWarning, compiler.DiagnosticMandatoryWarning:
		c.warnings++
	}
	fmt.Fprintf(c.w, "%s%s %s\n", location(d), col.Sprint(label+":"), msg)
}

func severity(kind compiler.DiagnosticKind) (string, *color.Color) {
	switch kind {
	case compiler.DiagnosticError:
		return "error", errorColor
	case compiler.DiagnosticWarning, compiler.DiagnosticMandatoryWarning:
		return "warning", warnColor
	case compiler.DiagnosticNote:
		return "Note", noteColor
	default:
		return "info", faintColor
	}
}

func location(d compiler.Diagnostic) string {
	src := d.Source()
	if src == nil {
		return ""
	}
	if line := d.LineNumber(); line > 0 {
		return fmt.Sprintf("%s:%d: ", src.Name(), line)
	}
	return src.Name() + ": "
}

func (c *console) OutputWritten(out filemanager.Output) error {
	if c.record != nil {
		c.record(out)
	}
	if !c.listOutputs {
		return nil
	}
	mark := ""
	if out.Generated {
		mark = faintColor.Sprint(" (generated)")
	}
	fmt.Fprintf(c.w, "wrote %s%s\n", out.Path, mark)
	return nil
}

func (c *console) SourceLoaded(uri string) {
	c.logger.Debug("source loaded", "uri", uri)
}

func (c *console) OutputLine(line string) {
	fmt.Fprintln(c.w, line)
}

func (c *console) CustomData(name string, data []byte) {
	c.logger.Debug("extension data", "name", name, "bytes", len(data))
}

// summary is javac's trailing count line, empty when nothing was reported.
func (c *console) summary() string {
	var s string
	if c.errors > 0 {
		s = plural(c.errors, "error")
	}
	if c.warnings > 0 {
		if s != "" {
			s += "\n"
		}
		s += plural(c.warnings, "warning")
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
