package intercept

import (
	"path"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// EnvironmentProxy stands in for the processing environment handed to
// processors. Its Filer records attribution.
type EnvironmentProxy struct {
	compiler.ProcessingEnvironment
	handler *Handler
	filer   *FilerProxy
}

var (
	_ compiler.ProcessingEnvironment = (*EnvironmentProxy)(nil)
	_ Proxy                          = (*EnvironmentProxy)(nil)
)

// WrapProcessingEnvironment wraps env. Wrapping a stand-in returns it
// unchanged.
func (s *Session) WrapProcessingEnvironment(env compiler.ProcessingEnvironment) compiler.ProcessingEnvironment {
	if p, ok := env.(*EnvironmentProxy); ok {
		return p
	}
	p := &EnvironmentProxy{ProcessingEnvironment: env}
	p.filer = &FilerProxy{session: s, target: env.Filer()}
	p.filer.handler = NewHandler(p.filer.target, filerLayer{p.filer})
	p.handler = NewHandler(env, environmentLayer{p})
	return p
}

func (p *EnvironmentProxy) ProxyHandler() *Handler { return p.handler }

// Filer returns the recording filer.
func (p *EnvironmentProxy) Filer() compiler.Filer { return p.filer }

type environmentLayer struct {
	p *EnvironmentProxy
}

func (l environmentLayer) Filer() compiler.Filer { return l.p.filer }

// FilerProxy records, for every file a processor creates, which source
// elements it originates from. The record is made before the file is
// created so it survives a failed creation.
type FilerProxy struct {
	handler *Handler
	session *Session
	target  compiler.Filer
}

var (
	_ compiler.Filer = (*FilerProxy)(nil)
	_ Proxy          = (*FilerProxy)(nil)
)

func (f *FilerProxy) ProxyHandler() *Handler { return f.handler }

func (f *FilerProxy) CreateSourceFile(name string, originating ...compiler.Element) (compiler.FileObject, error) {
	f.session.record(name, originating)
	return f.target.CreateSourceFile(name, originating...)
}

func (f *FilerProxy) CreateClassFile(name string, originating ...compiler.Element) (compiler.FileObject, error) {
	f.session.record(name, originating)
	return f.target.CreateClassFile(name, originating...)
}

func (f *FilerProxy) CreateResource(loc compiler.Location, pkg, relativeName string, originating ...compiler.Element) (compiler.FileObject, error) {
	f.session.record(resourceName(pkg, relativeName), originating)
	return f.target.CreateResource(loc, pkg, relativeName, originating...)
}

func (f *FilerProxy) GetResource(loc compiler.Location, pkg, relativeName string) (compiler.FileObject, error) {
	return f.target.GetResource(loc, pkg, relativeName)
}

// resourceName is the slash-separated path of a resource relative to its
// output root.
func resourceName(pkg, relativeName string) string {
	dir := strings.ReplaceAll(pkg, ".", "/")
	return strings.TrimPrefix(path.Join(dir, relativeName), "/")
}

type filerLayer struct {
	f *FilerProxy
}

func (l filerLayer) CreateSourceFile(name string, originating ...compiler.Element) (compiler.FileObject, error) {
	return l.f.CreateSourceFile(name, originating...)
}

func (l filerLayer) CreateClassFile(name string, originating ...compiler.Element) (compiler.FileObject, error) {
	return l.f.CreateClassFile(name, originating...)
}

func (l filerLayer) CreateResource(loc compiler.Location, pkg, relativeName string, originating ...compiler.Element) (compiler.FileObject, error) {
	return l.f.CreateResource(loc, pkg, relativeName, originating...)
}
