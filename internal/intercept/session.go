package intercept

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
)

// Session is the interception state of one compilation: the attribution
// target, the wrapped processors and the name registry derived from them.
//
// A Session is confined to the compilation thread.
type Session struct {
	recorder filemanager.AttributionRecorder
	logger   *slog.Logger

	processors []*ProcessorProxy
	names      *ProcessorNames
	current    string
	listener   compiler.DiagnosticListener
	warned     map[string]bool
	slot       *compiler.LoaderSlot
}

// NewSession returns a session recording attribution into recorder. A nil
// recorder disables attribution.
func NewSession(recorder filemanager.AttributionRecorder, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		recorder: recorder,
		logger:   logger,
		warned:   make(map[string]bool),
	}
	s.names = newProcessorNames(s.wrapped)
	return s
}

// Names returns the synthetic to real processor name registry.
func (s *Session) Names() *ProcessorNames {
	return s.names
}

// Current returns the real class name of the most recently invoked
// processor, or the empty string.
func (s *Session) Current() string {
	return s.current
}

func (s *Session) wrapped() []*ProcessorProxy {
	return s.processors
}

// record stores attribution for artifact. Elements without a qualified
// name anywhere up their enclosing chain are skipped.
func (s *Session) record(artifact string, originating []compiler.Element) {
	if s.recorder == nil || artifact == "" {
		return
	}
	var sources []string
	for _, e := range originating {
		if e == nil {
			continue
		}
		if name := compiler.QualifiedNameOf(e); name != "" {
			sources = append(sources, name)
		}
	}
	s.recorder.RecordAttribution(artifact, sources)
}

// warn reports a warning through the wrapped diagnostic listener, or the
// log when no listener has been wrapped yet.
func (s *Session) warn(text string) {
	if s.listener == nil {
		s.logger.Warn(text)
		return
	}
	s.listener.Report(compiler.NewDiagnostic(compiler.DiagnosticWarning, text))
}

// ProcessorNames maps the synthetic class names of processor stand-ins to
// the class names of the processors they wrap. The map is built from the
// session's processor list the first time a substitution is needed, and
// extended when processors are wrapped later.
type ProcessorNames struct {
	source func() []*ProcessorProxy
	names  map[string]string
	built  int
}

func newProcessorNames(source func() []*ProcessorProxy) *ProcessorNames {
	return &ProcessorNames{source: source}
}

func (n *ProcessorNames) load() {
	procs := n.source()
	if n.names != nil && n.built == len(procs) {
		return
	}
	if n.names == nil {
		n.names = make(map[string]string, len(procs))
	}
	for _, p := range procs {
		n.names[p.ClassName()] = p.RealName()
	}
	n.built = len(procs)
}

// Real returns the real name for a synthetic name.
func (n *ProcessorNames) Real(synthetic string) (string, bool) {
	n.load()
	name, ok := n.names[synthetic]
	return name, ok
}

// Len returns the number of known stand-ins.
func (n *ProcessorNames) Len() int {
	n.load()
	return len(n.names)
}

// Rewrite replaces every synthetic name in text with the real name.
// Longer names are replaced first so that no name is a prefix of another
// replacement.
func (n *ProcessorNames) Rewrite(text string) string {
	if !strings.Contains(text, syntheticPrefix) {
		return text
	}
	n.load()
	keys := make([]string, 0, len(n.names))
	for k := range n.names {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		text = strings.ReplaceAll(text, k, n.names[k])
	}
	return text
}

// LineWriter splits compiler output into lines, rewrites processor names
// and hands each line to emit. Partial lines are held until the next
// newline or Flush.
type LineWriter struct {
	names *ProcessorNames
	emit  func(line string)
	buf   bytes.Buffer
}

// OutputWriter returns a writer for the compiler's free-text output.
func (s *Session) OutputWriter(emit func(line string)) *LineWriter {
	return &LineWriter{names: s.names, emit: emit}
}

var _ io.Writer = (*LineWriter)(nil)

func (w *LineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(w.buf.Next(i + 1)[:i]), "\r")
		w.emit(w.names.Rewrite(line))
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *LineWriter) Flush() {
	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.emit(w.names.Rewrite(line))
}

// syntheticPrefix starts the class name of every processor stand-in.
const syntheticPrefix = "kiln.intercept.ProcessorProxy$"

func syntheticName(seq int) string {
	return fmt.Sprintf("%s%d", syntheticPrefix, seq)
}
