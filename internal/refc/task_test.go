package refc

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
)

type collector struct {
	diags []compiler.Diagnostic
}

func (c *collector) Report(d compiler.Diagnostic) { c.diags = append(c.diags, d) }

func (c *collector) codes() []string {
	var out []string
	for _, d := range c.diags {
		out = append(out, d.Code())
	}
	return out
}

func (c *collector) count(kind compiler.DiagnosticKind) int {
	n := 0
	for _, d := range c.diags {
		if d.Kind() == kind {
			n++
		}
	}
	return n
}

type recordingSink struct {
	outputs []filemanager.Output
	loaded  []string
}

func (s *recordingSink) OutputWritten(out filemanager.Output) error {
	s.outputs = append(s.outputs, out)
	return nil
}

func (s *recordingSink) SourceLoaded(uri string) { s.loaded = append(s.loaded, uri) }

type fixture struct {
	fs       afero.Fs
	vfm      *filemanager.Manager
	sink     *recordingSink
	listener *collector
	out      *bytes.Buffer
	units    []compiler.FileObject
}

func newFixture(t *testing.T, sources map[string]string) *fixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	var paths []string
	for p, text := range sources {
		require.NoError(t, afero.WriteFile(fsys, p, []byte(text), 0o644))
		paths = append(paths, p)
	}
	tool := New(fsys, nil)
	base, err := tool.StandardFileManager(nil, "en", "")
	require.NoError(t, err)
	sink := &recordingSink{}
	vfm := filemanager.New(base, filemanager.Options{Fs: fsys, Sink: sink})
	t.Cleanup(func() { _ = vfm.Close() })
	require.NoError(t, vfm.SetOutputDirectories(map[string][]string{"/out": {"/src"}}))
	require.NoError(t, vfm.SetLocation(compiler.SourcePath, []string{"/src"}))
	units, err := vfm.SetInputSources(paths)
	require.NoError(t, err)
	return &fixture{fs: fsys, vfm: vfm, sink: sink, listener: &collector{}, out: &bytes.Buffer{}, units: units}
}

func (f *fixture) task(t *testing.T, options ...string) *Task {
	t.Helper()
	task, err := New(f.fs, nil).Task(f.out, f.vfm, f.listener, options, nil, f.units)
	require.NoError(t, err)
	return task.(*Task)
}

func TestCall_WritesOneClassPerType(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/p/A.java": "package p;\n\npublic class A {}\n\ninterface B {}\n",
	})

	ok, err := f.task(t).Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.listener.diags)

	for _, name := range []string{"/out/p/A.class", "/out/p/B.class"} {
		data, err := afero.ReadFile(f.fs, name)
		require.NoError(t, err, name)
		assert.Equal(t, uint32(0xCAFEBABE), binary.BigEndian.Uint32(data))
	}
	require.Len(t, f.sink.outputs, 2)
	assert.Equal(t, "p.A", f.sink.outputs[0].ClassName)
	assert.Equal(t, []string{"file:///src/p/A.java"}, f.sink.outputs[0].Sources)
	assert.False(t, f.sink.outputs[0].Generated)
	assert.Contains(t, f.sink.loaded, "file:///src/p/A.java")
}

func TestCall_ReportsSyntaxErrors(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/A.java": "class A {\n  void run() {\n}\n",
	})

	ok, err := f.task(t).Call(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.Equal(t, []string{"compiler.err.premature.eof"}, f.listener.codes())
	assert.Equal(t, int64(3), f.listener.diags[0].LineNumber())
	assert.Empty(t, f.sink.outputs)
}

func TestCall_ReportsUnresolvedImports(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/q/A.java": "package q;\nimport r.Missing;\nimport s.*;\nimport java.util.List;\nimport q.B;\nclass A {}\n",
		"/src/q/B.java": "package q;\nclass B {}\n",
	})

	ok, err := f.task(t).Call(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"compiler.err.cant.resolve.location", "compiler.err.doesnt.exist"}, f.listener.codes())
	msg, _ := f.listener.diags[0].Message("en")
	assert.Contains(t, msg, "symbol: class Missing")
	assert.Equal(t, int64(2), f.listener.diags[0].LineNumber())
	msg, _ = f.listener.diags[1].Message("en")
	assert.Equal(t, "package s does not exist", msg)
}

func TestCall_ImportsResolveAgainstSourcePath(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/q/A.java": "package q;\nimport lib.Util;\nclass A {}\n",
	})
	require.NoError(t, afero.WriteFile(f.fs, "/lib/lib/Util.java", []byte("package lib; class Util {}"), 0o644))
	require.NoError(t, f.vfm.SetLocation(compiler.SourcePath, []string{"/src", "/lib"}))

	ok, err := f.task(t).Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCall_DuplicateClass(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/A.java": "class A {}",
		"/src/B.java": "class A {}",
	})

	ok, err := f.task(t).Call(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"compiler.err.duplicate.class"}, f.listener.codes())
}

// generator creates a companion source for every element annotated with
// p.Gen.
type generator struct {
	env    compiler.ProcessingEnvironment
	rounds []bool
}

func (g *generator) Init(env compiler.ProcessingEnvironment) error {
	g.env = env
	return nil
}

func (g *generator) Process(annotations []string, round compiler.RoundEnvironment) (bool, error) {
	g.rounds = append(g.rounds, round.ProcessingOver())
	for _, e := range round.ElementsAnnotatedWith("p.Gen") {
		name := compiler.QualifiedNameOf(e) + "Gen"
		fo, err := g.env.Filer().CreateSourceFile(name, e)
		if err != nil {
			return false, err
		}
		w, err := fo.OpenOutput()
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "package p;\nclass %sGen {}\n", e.SimpleName())
		if err := w.Close(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (g *generator) SupportedAnnotationTypes() []string { return []string{"p.Gen"} }
func (g *generator) SupportedOptions() []string         { return []string{"debug"} }

func TestCall_ProcessorRoundsCompileGeneratedSources(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/src/p/A.java": "package p;\n@Gen\nclass A {}\n",
	})
	g := &generator{}
	task := f.task(t, "-XprintRounds", "-Adebug=true")
	task.SetProcessors([]compiler.Processor{g})

	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.listener.diags)

	// Round 1 sees A, round 2 the generated AGen, round 3 is the last.
	assert.Equal(t, []bool{false, false, true}, g.rounds)
	src, err := afero.ReadFile(f.fs, "/out/p/AGen.java")
	require.NoError(t, err)
	assert.Contains(t, string(src), "class AGen")
	for _, name := range []string{"/out/p/A.class", "/out/p/AGen.class"} {
		exists, _ := afero.Exists(f.fs, name)
		assert.True(t, exists, name)
	}
	assert.Contains(t, f.out.String(), "Round 1:\n\tinput files: {/src/p/A.java}\n\tannotations: [p.Gen]\n\tlast round: false")
	assert.Contains(t, f.out.String(), "last round: true")
}

func TestCall_ProcOnlySkipsClassGeneration(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/p/A.java": "package p;\n@Gen class A {}\n"})
	task := f.task(t, "-proc:only")
	task.SetProcessors([]compiler.Processor{&generator{}})

	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	exists, _ := afero.Exists(f.fs, "/out/p/AGen.java")
	assert.True(t, exists)
	exists, _ = afero.Exists(f.fs, "/out/p/A.class")
	assert.False(t, exists)
}

func TestCall_ProcNoneSkipsProcessors(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/p/A.java": "package p;\n@Gen class A {}\n"})
	g := &generator{}
	task := f.task(t, "-proc:none")
	task.SetProcessors([]compiler.Processor{g})

	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, g.rounds)
}

type badTypes struct{ generator }

func (badTypes) SupportedAnnotationTypes() []string { return []string{"p.Gen", "not a name"} }

func TestCall_WarnsOnMalformedSupportedTypes(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/p/A.java": "package p; class A {}"})
	task := f.task(t)
	task.SetProcessors([]compiler.Processor{&badTypes{}})

	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.Equal(t, []string{"compiler.warn.proc.malformed.supported.string"}, f.listener.codes())
	msg, _ := f.listener.diags[0].Message("en")
	assert.Equal(t, "Malformed string 'not a name' for a supported annotation interface returned by processor 'github.com.efebarandurmaz.kiln.internal.refc.badTypes'", msg)
}

func TestCall_WarnsOnUnusedProcessorOptions(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/p/A.java": "package p; class A {}"})
	task := f.task(t, "-Adebug", "-Azeta=1", "-Aalpha")
	task.SetProcessors([]compiler.Processor{&generator{}})

	_, err := task.Call(context.Background())
	require.NoError(t, err)
	require.Len(t, f.listener.diags, 1)
	msg, _ := f.listener.diags[0].Message("en")
	assert.Equal(t, "The following options were not recognized by any processor: '[alpha, zeta]'", msg)
}

func TestCall_WerrorAndNowarn(t *testing.T) {
	src := map[string]string{"/src/p/A.java": "package p; class A {}"}

	f := newFixture(t, src)
	task := f.task(t, "-Werror", "-Afoo")
	task.SetProcessors([]compiler.Processor{&generator{}})
	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.listener.count(compiler.DiagnosticError))

	f = newFixture(t, src)
	task = f.task(t, "-nowarn", "-Afoo")
	task.SetProcessors([]compiler.Processor{&generator{}})
	ok, err = task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.listener.diags)
}

type failingInit struct{ generator }

func (failingInit) Init(compiler.ProcessingEnvironment) error {
	return compiler.IllegalArgument("boom")
}

func TestCall_ProcessorErrorsAbort(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/p/A.java": "package p; class A {}"})
	task := f.task(t)
	task.SetProcessors([]compiler.Processor{&failingInit{}})

	_, err := task.Call(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)
	assert.Contains(t, err.Error(), "annotation processor")
}

func TestCall_Canceled(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/A.java": "class A {}"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.task(t).Call(ctx)
	require.Error(t, err)
	assert.True(t, compiler.IsCanceled(err))
}

func TestCall_ObservesFileManagerCancellation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/A.java", []byte("class A {}"), 0o644))
	base := NewBaseManager(fsys, "UTF-8")
	vfm := filemanager.New(base, filemanager.Options{
		Fs:                  fsys,
		Canceled:            func() bool { return true },
		CancelCheckInterval: 1,
	})
	defer vfm.Close()
	require.NoError(t, vfm.SetOutputDirectories(map[string][]string{"/out": {"/src"}}))
	units, err := vfm.SetInputSources([]string{"/src/A.java"})
	require.NoError(t, err)

	task, err := New(fsys, nil).Task(nil, vfm, nil, nil, nil, units)
	require.NoError(t, err)
	_, err = task.Call(context.Background())
	require.Error(t, err)
	assert.True(t, compiler.IsCanceled(err))
}

func TestCall_SingleUse(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/A.java": "class A {}"})
	task := f.task(t)
	_, err := task.Call(context.Background())
	require.NoError(t, err)
	_, err = task.Call(context.Background())
	assert.ErrorIs(t, err, compiler.ErrIllegalState)
}

func TestCall_UsesFileManagerFromContext(t *testing.T) {
	f := newFixture(t, map[string]string{"/src/A.java": "class A {}"})
	task := f.task(t)
	other := filemanager.New(NewBaseManager(f.fs, "UTF-8"), filemanager.Options{Fs: f.fs})
	require.NoError(t, other.SetOutputDirectories(map[string][]string{"/elsewhere": nil}))
	task.Context().Put(compiler.FileManagerKey, other)

	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	exists, _ := afero.Exists(f.fs, "/elsewhere/A.class")
	assert.True(t, exists)
}

func TestCall_VerbosePrintsSearchPaths(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/A.java", []byte("class A {}"), 0o644))
	base := NewBaseManager(fsys, "UTF-8")
	require.NoError(t, base.SetLocation(compiler.ClassPath, []string{"/lib/a.jar"}))
	require.NoError(t, base.SetLocation(compiler.ClassOutput, []string{"/out"}))
	units, err := base.FileObjects("/src/A.java")
	require.NoError(t, err)

	var out bytes.Buffer
	task, err := New(fsys, nil).Task(&out, base, nil, []string{"-verbose"}, nil, units)
	require.NoError(t, err)
	ok, err := task.Call(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "[search path for CLASS_PATH: /lib/a.jar]")
	assert.Contains(t, out.String(), "[wrote /out/A.class]")
}

func TestTask_Options(t *testing.T) {
	tool := New(afero.NewMemMapFs(), nil)
	base := NewBaseManager(afero.NewMemMapFs(), "UTF-8")

	_, err := tool.Task(nil, base, nil, []string{"-bogus"}, nil, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)
	_, err = tool.Task(nil, base, nil, []string{"--release"}, nil, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)
	_, err = tool.Task(nil, base, nil, []string{"-Xmaxerrs", "zero"}, nil, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)
	_, err = tool.Task(nil, base, nil, nil, []string{"p.A"}, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)
	_, err = tool.Task(nil, nil, nil, nil, nil, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)

	task, err := tool.Task(nil, base, nil, []string{"--release", "17", "-Akey=v", "-Xlint:all"}, nil, nil)
	require.NoError(t, err)
	rt := task.(*Task)
	assert.Equal(t, "17", rt.release)
	assert.Equal(t, map[string]string{"key": "v"}, rt.procOpts)
	assert.Same(t, base, rt.Context().Get(compiler.FileManagerKey))
}

func TestIsSupportedOption(t *testing.T) {
	tool := New(nil, nil)
	assert.Equal(t, 0, tool.IsSupportedOption("-nowarn"))
	assert.Equal(t, 1, tool.IsSupportedOption("--release"))
	assert.Equal(t, 0, tool.IsSupportedOption("-Akey"))
	assert.Equal(t, -1, tool.IsSupportedOption("-A"))
	assert.Equal(t, -1, tool.IsSupportedOption("-d"))
}

func TestClassBytes(t *testing.T) {
	data := classBytes(&typeElement{qualified: "p.A", annotations: []string{"p.Gen"}}, "17")
	assert.Equal(t, uint16(61), binary.BigEndian.Uint16(data[6:8]))
	assert.True(t, strings.Contains(string(data), "p/A"))
	assert.True(t, strings.HasSuffix(string(data), "p.Gen"))
}
