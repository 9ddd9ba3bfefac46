package intercept

import (
	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// UnexpectedErrorMessage replaces a diagnostic text that could not be
// rendered.
const UnexpectedErrorMessage = "unexpected error while rendering diagnostic"

// ListenerProxy stands in for the compiler's diagnostic listener. Every
// diagnostic it forwards is itself wrapped so that its rendered text names
// real processors instead of their stand-ins.
type ListenerProxy struct {
	handler *Handler
	session *Session
	target  compiler.DiagnosticListener
}

var (
	_ compiler.DiagnosticListener = (*ListenerProxy)(nil)
	_ Proxy                       = (*ListenerProxy)(nil)
)

// WrapDiagnosticListener wraps l. Warnings raised by the session itself are
// reported through the returned listener.
func (s *Session) WrapDiagnosticListener(l compiler.DiagnosticListener) *ListenerProxy {
	p := &ListenerProxy{session: s, target: l}
	p.handler = NewHandler(l, listenerLayer{p})
	s.listener = p
	return p
}

func (p *ListenerProxy) ProxyHandler() *Handler { return p.handler }

// Report forwards d wrapped.
func (p *ListenerProxy) Report(d compiler.Diagnostic) {
	if d == nil {
		return
	}
	if _, ok := d.(*DiagnosticProxy); !ok {
		d = p.session.wrapDiagnostic(d)
	}
	p.target.Report(d)
}

// listenerLayer is the custom layer of a ListenerProxy.
type listenerLayer struct {
	p *ListenerProxy
}

func (l listenerLayer) Report(d compiler.Diagnostic) { l.p.Report(d) }

// DiagnosticProxy stands in for one diagnostic. Message is retried once
// when rendering fails and falls back to UnexpectedErrorMessage; the
// result has processor names rewritten. Everything else is the wrapped
// diagnostic's.
type DiagnosticProxy struct {
	compiler.Diagnostic
	handler   *Handler
	session   *Session
	processor string
}

var (
	_ compiler.Diagnostic = (*DiagnosticProxy)(nil)
	_ Proxy               = (*DiagnosticProxy)(nil)
)

func (s *Session) wrapDiagnostic(d compiler.Diagnostic) *DiagnosticProxy {
	p := &DiagnosticProxy{Diagnostic: d, session: s, processor: s.current}
	p.handler = NewHandler(d, diagnosticLayer{p})
	return p
}

func (p *DiagnosticProxy) ProxyHandler() *Handler { return p.handler }

// Processor returns the real name of the processor that was running when
// the diagnostic was reported, or the empty string.
func (p *DiagnosticProxy) Processor() string { return p.processor }

// Message renders the wrapped diagnostic's text.
func (p *DiagnosticProxy) Message(locale string) (string, error) {
	text, err := p.Diagnostic.Message(locale)
	if err != nil {
		p.session.logger.Debug("diagnostic rendering failed, retrying", "error", err)
		text, err = p.Diagnostic.Message(locale)
	}
	if err != nil {
		p.session.logger.Warn("diagnostic rendering failed", "error", err)
		return UnexpectedErrorMessage + ": " + err.Error(), nil
	}
	return p.session.names.Rewrite(text), nil
}

// diagnosticLayer is the custom layer of a DiagnosticProxy.
type diagnosticLayer struct {
	p *DiagnosticProxy
}

func (l diagnosticLayer) Message(locale string) (string, error) { return l.p.Message(locale) }
