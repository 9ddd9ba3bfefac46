package refc

import (
	"fmt"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// environment is the processing environment handed to processors.
type environment struct {
	task    *Task
	options map[string]string
	filer   *filer
}

var _ compiler.ProcessingEnvironment = (*environment)(nil)

func (e *environment) Options() map[string]string  { return e.options }
func (e *environment) Filer() compiler.Filer       { return e.filer }
func (e *environment) Messager() compiler.Messager { return messager{e.task} }
func (e *environment) SourceVersion() string       { return e.task.release }
func (e *environment) Locale() string              { return e.task.locale }

type messager struct {
	task *Task
}

func (m messager) PrintMessage(kind compiler.DiagnosticKind, msg string, e compiler.Element) {
	d := compiler.NewDiagnostic(kind, msg)
	if t, ok := e.(*typeElement); ok && t.unit != nil {
		m.task.locate(d, t.unit, t.offset)
	}
	m.task.report(d)
}

// filer creates files through the task's file manager. Generated sources
// are compiled in the next round.
type filer struct {
	task    *Task
	created map[string]bool
	pending []compiler.FileObject
}

var _ compiler.Filer = (*filer)(nil)

func newFiler(t *Task) *filer {
	return &filer{task: t, created: make(map[string]bool)}
}

func (f *filer) claim(key string) error {
	if f.created[key] {
		return fmt.Errorf("attempt to recreate a file for %s", key)
	}
	f.created[key] = true
	return nil
}

func (f *filer) CreateSourceFile(name string, originating ...compiler.Element) (compiler.FileObject, error) {
	if err := f.claim("type " + name); err != nil {
		return nil, err
	}
	fo, err := f.task.fm.FileForOutput(compiler.SourceOutput, name, compiler.KindSource, nil)
	if err != nil {
		return nil, err
	}
	f.pending = append(f.pending, fo)
	return fo, nil
}

func (f *filer) CreateClassFile(name string, originating ...compiler.Element) (compiler.FileObject, error) {
	if err := f.claim("type " + name); err != nil {
		return nil, err
	}
	return f.task.fm.FileForOutput(compiler.ClassOutput, name, compiler.KindClass, nil)
}

func (f *filer) CreateResource(loc compiler.Location, pkg, relativeName string, originating ...compiler.Element) (compiler.FileObject, error) {
	if err := f.claim("resource " + loc.String() + "/" + pkg + "/" + relativeName); err != nil {
		return nil, err
	}
	return f.task.fm.ResourceForOutput(loc, pkg, relativeName, nil)
}

func (f *filer) GetResource(loc compiler.Location, pkg, relativeName string) (compiler.FileObject, error) {
	return f.task.fm.ResourceForInput(loc, pkg, relativeName)
}

// takePending returns and forgets the sources generated since the last
// call.
func (f *filer) takePending() []compiler.FileObject {
	out := f.pending
	f.pending = nil
	return out
}
