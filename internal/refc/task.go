package refc

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// Task is one compilation. It is single use.
type Task struct {
	tool       *Tool
	out        io.Writer
	fm         compiler.FileManager
	listener   compiler.DiagnosticListener
	units      []compiler.FileObject
	processors []compiler.Processor
	context    *compiler.Context
	slot       *compiler.LoaderSlot

	locale      string
	release     string
	procOpts    map[string]string
	procMode    string
	verbose     bool
	nowarn      bool
	werror      bool
	printRounds bool
	printInfo   bool
	maxErrs     int

	called   bool
	errors   int
	warnings int
	parsed   []*parsedUnit
	declared map[string]*typeElement
	packages map[string]bool
	filer    *filer
	active   []bool
}

var _ compiler.Task = (*Task)(nil)

func (t *Task) applyOptions(options []string) error {
	for i := 0; i < len(options); i++ {
		opt := options[i]
		n := t.tool.IsSupportedOption(opt)
		if n < 0 {
			return compiler.IllegalArgument("invalid flag: %s", opt)
		}
		value := ""
		if n == 1 {
			if i+1 >= len(options) {
				return compiler.IllegalArgument("%s requires an argument", opt)
			}
			i++
			value = options[i]
		}
		switch {
		case strings.HasPrefix(opt, "-A"):
			k, v, _ := strings.Cut(opt[2:], "=")
			t.procOpts[k] = v
		case opt == "-proc:none", opt == "-proc:only", opt == "-proc:full":
			t.procMode = strings.TrimPrefix(opt, "-proc:")
		case opt == "-verbose":
			t.verbose = true
		case opt == "-nowarn":
			t.nowarn = true
		case opt == "-Werror":
			t.werror = true
		case opt == "-XprintRounds":
			t.printRounds = true
		case opt == "-XprintProcessorInfo":
			t.printInfo = true
		case opt == "--release", opt == "-source", opt == "--source":
			t.release = value
		case opt == "-Xmaxerrs":
			limit, err := strconv.Atoi(value)
			if err != nil || limit <= 0 {
				return compiler.IllegalArgument("bad value for -Xmaxerrs: %s", value)
			}
			t.maxErrs = limit
		}
	}
	return nil
}

func (t *Task) SetProcessors(ps []compiler.Processor) { t.processors = ps }
func (t *Task) SetLocale(locale string)               { t.locale = locale }

// Context returns the task's component registry. The file manager is read
// from it when the task is called.
func (t *Task) Context() *compiler.Context { return t.context }

func (t *Task) ContextLoader() *compiler.LoaderSlot { return t.slot }

// Call runs the compilation. It reports false when errors were reported.
// Cancellation observed by the file manager aborts the call with an error
// wrapping the *compiler.CanceledError.
func (t *Task) Call(ctx context.Context) (bool, error) {
	if t.called {
		return false, compiler.IllegalState("task already called")
	}
	t.called = true
	fm, ok := t.context.Get(compiler.FileManagerKey).(compiler.FileManager)
	if !ok {
		return false, compiler.IllegalState("no file manager in context")
	}
	t.fm = fm
	t.declared = make(map[string]*typeElement)
	t.packages = make(map[string]bool)
	t.filer = newFiler(t)
	t.active = make([]bool, len(t.processors))

	if t.verbose {
		t.printSearchPaths()
	}

	units := t.units
	processing := t.procMode != "none" && len(t.processors) > 0
	var env compiler.ProcessingEnvironment
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("refc: %w", &compiler.CanceledError{Reason: err.Error()})
		}
		types, err := t.parse(units)
		if err != nil {
			return false, err
		}
		if !processing {
			break
		}
		if env == nil {
			if env, err = t.initProcessors(); err != nil {
				return false, err
			}
		}
		if err := t.round(round, env, &roundEnvironment{types: types, errorRaised: t.errors > 0}, units); err != nil {
			return false, err
		}
		units = t.filer.takePending()
		if len(units) == 0 {
			if err := t.round(round+1, env, &roundEnvironment{over: true, errorRaised: t.errors > 0}, nil); err != nil {
				return false, err
			}
			t.warnUnusedOptions()
			break
		}
	}

	if err := t.resolveImports(); err != nil {
		return false, err
	}
	if t.errors == 0 && t.procMode != "only" {
		if err := t.generate(); err != nil {
			return false, err
		}
	}
	if t.werror && t.warnings > 0 && t.errors == 0 {
		t.report(compiler.NewDiagnostic(compiler.DiagnosticError, "warnings found and -Werror specified"))
	}
	return t.errors == 0, nil
}

func (t *Task) printSearchPaths() {
	pl, ok := t.fm.(compiler.PathLister)
	if !ok {
		return
	}
	for _, loc := range []compiler.Location{compiler.SourcePath, compiler.ClassPath} {
		paths, err := pl.PathsForLocation(loc)
		if err != nil {
			continue
		}
		fmt.Fprintf(t.out, "[search path for %s: %s]\n", loc, strings.Join(paths, ","))
	}
}

// parse outlines units and returns their top-level types.
func (t *Task) parse(units []compiler.FileObject) ([]*typeElement, error) {
	var types []*typeElement
	for _, fo := range units {
		if t.verbose {
			fmt.Fprintf(t.out, "[parsing started %s]\n", fo.Name())
		}
		text, err := fo.CharContent(false)
		if err != nil {
			if compiler.IsCanceled(err) {
				return nil, fmt.Errorf("refc: reading %s: %w", fo.Name(), err)
			}
			d := compiler.NewDiagnostic(compiler.DiagnosticError, "error reading "+fo.Name()+"; "+err.Error())
			d.DiagCode = "compiler.err.error.reading.file"
			if compiler.IsNotFound(err) {
				d.Text = "file not found: " + fo.Name()
				d.DiagCode = "compiler.err.file.not.found"
			}
			t.report(d)
			continue
		}
		u, syntaxErrs := outline(fo, text)
		for _, se := range syntaxErrs {
			d := compiler.NewDiagnostic(compiler.DiagnosticError, se.text)
			d.DiagCode = se.code
			t.locate(d, u, se.offset)
			t.report(d)
		}
		t.parsed = append(t.parsed, u)
		t.packages[u.pkg.name] = true
		for _, ty := range u.types {
			if prev, dup := t.declared[ty.qualified]; dup && prev.unit.file.URI() != fo.URI() {
				d := compiler.NewDiagnostic(compiler.DiagnosticError, "duplicate class: "+ty.qualified)
				d.DiagCode = "compiler.err.duplicate.class"
				t.locate(d, u, ty.offset)
				t.report(d)
				continue
			}
			t.declared[ty.qualified] = ty
			types = append(types, ty)
		}
		if t.verbose {
			fmt.Fprintf(t.out, "[parsing completed %s]\n", fo.Name())
		}
	}
	return types, nil
}

var supportedTypeRe = regexp.MustCompile(`^(\*|[\w$]+(\.[\w$]+)*(\.\*)?)$`)

func (t *Task) initProcessors() (compiler.ProcessingEnvironment, error) {
	env := &environment{task: t, options: t.procOpts, filer: t.filer}
	for _, p := range t.processors {
		name := compiler.ProcessorName(p)
		for _, s := range p.SupportedAnnotationTypes() {
			if !supportedTypeRe.MatchString(s) {
				d := compiler.NewDiagnostic(compiler.DiagnosticWarning,
					fmt.Sprintf("Malformed string '%s' for a supported annotation interface returned by processor '%s'", s, name))
				d.DiagCode = "compiler.warn.proc.malformed.supported.string"
				t.report(d)
			}
		}
		if err := p.Init(env); err != nil {
			return nil, fmt.Errorf("annotation processor %s: %w", name, err)
		}
	}
	return env, nil
}

// round runs one processing round. A processor sees the unclaimed
// annotations it supports; once called it is called in every later round.
func (t *Task) round(n int, env compiler.ProcessingEnvironment, re *roundEnvironment, inputs []compiler.FileObject) error {
	present := re.annotationsPresent()
	if t.printRounds {
		names := make([]string, 0, len(inputs))
		for _, fo := range inputs {
			names = append(names, fo.Name())
		}
		fmt.Fprintf(t.out, "Round %d:\n\tinput files: {%s}\n\tannotations: [%s]\n\tlast round: %t\n",
			n, strings.Join(names, ", "), strings.Join(present, ", "), re.over)
	}
	unclaimed := append([]string(nil), present...)
	for i, p := range t.processors {
		matched, all := matchSupported(p.SupportedAnnotationTypes(), unclaimed)
		if len(matched) == 0 && !all && !t.active[i] {
			continue
		}
		t.active[i] = true
		claimed, err := p.Process(matched, re)
		if err != nil {
			return fmt.Errorf("annotation processor %s: %w", compiler.ProcessorName(p), err)
		}
		if t.printInfo {
			fmt.Fprintf(t.out, "Processor %s matches [%s] and returns %t.\n",
				compiler.ProcessorName(p), strings.Join(matched, ", "), claimed)
		}
		if claimed {
			unclaimed = without(unclaimed, matched)
		}
	}
	return nil
}

// matchSupported returns the annotations matched by the supported types
// and whether "*" is among them.
func matchSupported(supported, annotations []string) ([]string, bool) {
	all := false
	var out []string
	for _, a := range annotations {
		for _, s := range supported {
			if s == "*" || s == a || strings.HasSuffix(s, ".*") && strings.HasPrefix(a, strings.TrimSuffix(s, "*")) {
				out = append(out, a)
				break
			}
		}
	}
	for _, s := range supported {
		if s == "*" {
			all = true
		}
	}
	return out, all
}

func without(from, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}
	var out []string
	for _, s := range from {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}

func (t *Task) warnUnusedOptions() {
	if len(t.procOpts) == 0 {
		return
	}
	known := make(map[string]bool)
	for _, p := range t.processors {
		for _, o := range p.SupportedOptions() {
			known[o] = true
		}
	}
	var unused []string
	for k := range t.procOpts {
		if !known[k] {
			unused = append(unused, k)
		}
	}
	if len(unused) == 0 {
		return
	}
	sort.Strings(unused)
	d := compiler.NewDiagnostic(compiler.DiagnosticWarning,
		fmt.Sprintf("The following options were not recognized by any processor: '[%s]'", strings.Join(unused, ", ")))
	d.DiagCode = "compiler.warn.proc.unmatched.processor.options"
	t.report(d)
}

// resolveImports checks every import against the declared types and the
// source and class paths.
func (t *Task) resolveImports() error {
	for _, u := range t.parsed {
		for _, imp := range u.imports {
			name := imp.name
			if imp.static {
				name = name[:max(strings.LastIndexByte(name, '.'), 0)]
			}
			if platformPackage(name) {
				continue
			}
			found, err := t.lookupImport(name)
			if err != nil {
				return fmt.Errorf("refc: resolving %s: %w", imp.name, err)
			}
			if found {
				continue
			}
			var d *compiler.BasicDiagnostic
			if pkg, ok := strings.CutSuffix(name, ".*"); ok {
				d = compiler.NewDiagnostic(compiler.DiagnosticError, "package "+pkg+" does not exist")
				d.DiagCode = "compiler.err.doesnt.exist"
			} else {
				d = compiler.NewDiagnostic(compiler.DiagnosticError, "cannot find symbol\n  symbol: class "+name[strings.LastIndexByte(name, '.')+1:])
				d.DiagCode = "compiler.err.cant.resolve.location"
			}
			t.locate(d, u, imp.offset)
			t.report(d)
		}
	}
	return nil
}

func platformPackage(name string) bool {
	return strings.HasPrefix(name, "java.") || strings.HasPrefix(name, "javax.")
}

func (t *Task) lookupImport(name string) (bool, error) {
	if pkg, ok := strings.CutSuffix(name, ".*"); ok {
		if t.packages[pkg] || t.declared[pkg] != nil {
			return true, nil
		}
		for _, probe := range []struct {
			loc  compiler.Location
			kind compiler.Kind
		}{{compiler.SourcePath, compiler.KindSource}, {compiler.ClassPath, compiler.KindClass}} {
			fos, err := t.fm.List(probe.loc, pkg, compiler.Kinds(probe.kind), false)
			if err != nil {
				if compiler.IsCanceled(err) {
					return false, err
				}
				continue
			}
			if len(fos) > 0 {
				return true, nil
			}
		}
		return false, nil
	}
	if t.declared[name] != nil {
		return true, nil
	}
	for _, probe := range []struct {
		loc  compiler.Location
		kind compiler.Kind
	}{{compiler.SourcePath, compiler.KindSource}, {compiler.ClassPath, compiler.KindClass}} {
		fo, err := t.fm.FileForInput(probe.loc, name, probe.kind)
		if err == nil && fo != nil {
			return true, nil
		}
		if compiler.IsCanceled(err) {
			return false, err
		}
	}
	return false, nil
}

// generate writes one class file per declared type with the unit as
// sibling.
func (t *Task) generate() error {
	for _, u := range t.parsed {
		for _, ty := range u.types {
			if t.declared[ty.qualified] != ty {
				continue
			}
			if err := t.writeClass(u, ty); err != nil {
				if compiler.IsCanceled(err) {
					return fmt.Errorf("refc: writing %s: %w", ty.qualified, err)
				}
				d := compiler.NewDiagnostic(compiler.DiagnosticError, "error while writing "+ty.qualified+": "+err.Error())
				d.DiagCode = "compiler.err.error.writing.class"
				t.locate(d, u, ty.offset)
				t.report(d)
			}
		}
	}
	return nil
}

func (t *Task) writeClass(u *parsedUnit, ty *typeElement) error {
	fo, err := t.fm.FileForOutput(compiler.ClassOutput, ty.qualified, compiler.KindClass, u.file)
	if err != nil {
		return err
	}
	w, err := fo.OpenOutput()
	if err != nil {
		return err
	}
	if _, err := w.Write(classBytes(ty, t.release)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if t.verbose {
		fmt.Fprintf(t.out, "[wrote %s]\n", fo.Name())
	}
	return nil
}

// classBytes renders a minimal class file: magic, version, then the
// binary name and annotations as length-prefixed UTF-8 strings.
func classBytes(ty *typeElement, release string) []byte {
	major := uint16(44)
	if r, err := strconv.Atoi(strings.TrimPrefix(release, "1.")); err == nil {
		major += uint16(r)
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(0xCAFEBABE))
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))
	_ = binary.Write(&buf, binary.BigEndian, major)
	writeString := func(s string) {
		_ = binary.Write(&buf, binary.BigEndian, uint16(len(s)))
		buf.WriteString(s)
	}
	writeString(strings.ReplaceAll(ty.qualified, ".", "/"))
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(ty.annotations)))
	for _, a := range ty.annotations {
		writeString(a)
	}
	return buf.Bytes()
}

func (t *Task) locate(d *compiler.BasicDiagnostic, u *parsedUnit, offset int) {
	d.File = u.file
	d.Pos = int64(offset)
	d.Start = int64(offset)
	d.End = int64(offset)
	d.Line, d.Column = u.position(offset)
}

// report counts and forwards d. Warnings are dropped under -nowarn;
// errors past -Xmaxerrs are counted but not forwarded.
func (t *Task) report(d compiler.Diagnostic) {
	switch d.Kind() {
	case compiler.DiagnosticError:
		t.errors++
		if t.errors > t.maxErrs {
			return
		}
	case compiler.DiagnosticWarning:
		if t.nowarn {
			return
		}
		t.warnings++
	case compiler.DiagnosticMandatoryWarning:
		t.warnings++
	}
	t.listener.Report(d)
}
