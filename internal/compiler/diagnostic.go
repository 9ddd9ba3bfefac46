package compiler

// DiagnosticKind is the severity of a diagnostic.
type DiagnosticKind int

const (
	DiagnosticOther DiagnosticKind = iota
	DiagnosticNote
	DiagnosticWarning
	DiagnosticMandatoryWarning
	DiagnosticError
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticError:
		return "ERROR"
	case DiagnosticWarning:
		return "WARNING"
	case DiagnosticMandatoryWarning:
		return "MANDATORY_WARNING"
	case DiagnosticNote:
		return "NOTE"
	default:
		return "OTHER"
	}
}

// NoPosition marks an unknown offset, line or column.
const NoPosition int64 = -1

// Diagnostic is a structured compiler message.
type Diagnostic interface {
	Kind() DiagnosticKind
	// Source is the file the diagnostic refers to, or nil.
	Source() FileObject
	Position() int64
	StartPosition() int64
	EndPosition() int64
	LineNumber() int64
	ColumnNumber() int64
	Code() string
	// Message renders the text for the locale. Rendering may need symbol
	// information and can fail.
	Message(locale string) (string, error)
}

// DiagnosticListener receives diagnostics as the compiler reports them.
type DiagnosticListener interface {
	Report(d Diagnostic)
}

// DiagnosticListenerFunc adapts a function to DiagnosticListener.
type DiagnosticListenerFunc func(d Diagnostic)

func (f DiagnosticListenerFunc) Report(d Diagnostic) { f(d) }

// BasicDiagnostic is a plain Diagnostic value.
type BasicDiagnostic struct {
	DiagKind DiagnosticKind
	File     FileObject
	Pos      int64
	Start    int64
	End      int64
	Line     int64
	Column   int64
	DiagCode string
	Text     string
}

var _ Diagnostic = (*BasicDiagnostic)(nil)

// NewDiagnostic returns a diagnostic with no position information.
func NewDiagnostic(kind DiagnosticKind, text string) *BasicDiagnostic {
	return &BasicDiagnostic{
		DiagKind: kind,
		Pos:      NoPosition,
		Start:    NoPosition,
		End:      NoPosition,
		Line:     NoPosition,
		Column:   NoPosition,
		Text:     text,
	}
}

func (d *BasicDiagnostic) Kind() DiagnosticKind                  { return d.DiagKind }
func (d *BasicDiagnostic) Source() FileObject                    { return d.File }
func (d *BasicDiagnostic) Position() int64                       { return d.Pos }
func (d *BasicDiagnostic) StartPosition() int64                  { return d.Start }
func (d *BasicDiagnostic) EndPosition() int64                    { return d.End }
func (d *BasicDiagnostic) LineNumber() int64                     { return d.Line }
func (d *BasicDiagnostic) ColumnNumber() int64                   { return d.Column }
func (d *BasicDiagnostic) Code() string                          { return d.DiagCode }
func (d *BasicDiagnostic) Message(locale string) (string, error) { return d.Text, nil }
