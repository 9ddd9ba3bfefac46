package intercept

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// proxySeq numbers processor stand-ins process wide so that no two share a
// synthetic name.
var proxySeq atomic.Int64

// ProcessorProxy stands in for a processor. Around Init and Process it
// installs the processor's own class loader in the compilation thread's
// loader slot and restores the previous one afterwards. It declares a
// synthetic class name that diagnostics are rewritten from.
type ProcessorProxy struct {
	handler   *Handler
	session   *Session
	target    compiler.Processor
	loader    compiler.ClassLoader
	realName  string
	synthetic string
}

var (
	_ compiler.Processor = (*ProcessorProxy)(nil)
	_ compiler.Named     = (*ProcessorProxy)(nil)
	_ Proxy              = (*ProcessorProxy)(nil)
)

// WrapProcessor wraps p, which was defined by loader. slot is the loader
// slot of the compilation thread; a nil slot leaves it untouched.
func (s *Session) WrapProcessor(p compiler.Processor, loader compiler.ClassLoader, slot *compiler.LoaderSlot) *ProcessorProxy {
	if pp, ok := p.(*ProcessorProxy); ok {
		return pp
	}
	pp := &ProcessorProxy{
		session:   s,
		target:    p,
		loader:    loader,
		realName:  compiler.ProcessorName(p),
		synthetic: syntheticName(int(proxySeq.Add(1))),
	}
	pp.handler = NewHandler(p, processorLayer{pp})
	if slot != nil {
		s.slot = slot
	}
	s.processors = append(s.processors, pp)
	return pp
}

// WrapProcessors wraps every processor in ps with the same loader.
func (s *Session) WrapProcessors(ps []compiler.Processor, loader compiler.ClassLoader, slot *compiler.LoaderSlot) []compiler.Processor {
	out := make([]compiler.Processor, 0, len(ps))
	for _, p := range ps {
		out = append(out, s.WrapProcessor(p, loader, slot))
	}
	return out
}

func (p *ProcessorProxy) ProxyHandler() *Handler { return p.handler }

// ClassName returns the synthetic name the compiler knows the stand-in by.
func (p *ProcessorProxy) ClassName() string { return p.synthetic }

// RealName returns the class name of the wrapped processor.
func (p *ProcessorProxy) RealName() string { return p.realName }

// Delegate returns the wrapped processor.
func (p *ProcessorProxy) Delegate() any { return p.target }

// Init hands the processor a recording environment.
func (p *ProcessorProxy) Init(env compiler.ProcessingEnvironment) error {
	restore := p.enter()
	defer restore()
	err := p.target.Init(p.session.WrapProcessingEnvironment(env))
	if err != nil && errors.Is(err, compiler.ErrIllegalArgument) {
		p.warnInitMisuse()
	}
	return err
}

func (p *ProcessorProxy) Process(annotations []string, round compiler.RoundEnvironment) (bool, error) {
	restore := p.enter()
	defer restore()
	return p.target.Process(annotations, round)
}

func (p *ProcessorProxy) SupportedAnnotationTypes() []string {
	return p.target.SupportedAnnotationTypes()
}

func (p *ProcessorProxy) SupportedOptions() []string {
	return p.target.SupportedOptions()
}

// enter swaps in the processor's loader and returns the function that
// swaps the previous one back.
func (p *ProcessorProxy) enter() func() {
	p.session.current = p.realName
	slot := p.session.slot
	if slot == nil || p.loader == nil {
		return func() {}
	}
	prev := slot.Swap(p.loader)
	return func() { slot.Swap(prev) }
}

// warnInitMisuse explains, once per processor, that the environment a
// processor receives is a stand-in.
func (p *ProcessorProxy) warnInitMisuse() {
	if p.session.warned[p.realName] {
		return
	}
	p.session.warned[p.realName] = true
	p.session.warn(fmt.Sprintf(
		"processor %s rejected the processing environment it was given. "+
			"The environment passed to Init is wrapped for dependency tracking; "+
			"a processor that needs the compiler's own environment must unwrap it first:\n"+
			"    original := intercept.Unwrap[compiler.ProcessingEnvironment](env)",
		p.realName))
}

type processorLayer struct {
	p *ProcessorProxy
}

func (l processorLayer) Init(env compiler.ProcessingEnvironment) error { return l.p.Init(env) }

func (l processorLayer) Process(annotations []string, round compiler.RoundEnvironment) (bool, error) {
	return l.p.Process(annotations, round)
}

func (l processorLayer) ClassName() string { return l.p.synthetic }
