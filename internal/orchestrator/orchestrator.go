// Package orchestrator runs one compiler invocation end to end. It builds
// the virtual file manager for a request, installs dependency tracking,
// drives the compiler task and turns however the task ended into an
// Outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/intercept"
	"github.com/efebarandurmaz/kiln/internal/metrics"
	"github.com/efebarandurmaz/kiln/internal/observability"
	"github.com/efebarandurmaz/kiln/internal/plugins"
)

var dependencyTracking atomic.Bool

func init() {
	dependencyTracking.Store(true)
}

// SetDependencyTracking turns output attribution on or off for every
// compilation started afterwards.
func SetDependencyTracking(enabled bool) {
	dependencyTracking.Store(enabled)
}

// DependencyTracking reports whether output attribution is on.
func DependencyTracking() bool {
	return dependencyTracking.Load()
}

// Options configure an Orchestrator.
type Options struct {
	Registry *plugins.Registry
	// Tool names the compiler to run. Empty selects the primary tool.
	Tool string
	Fs   afero.Fs

	Logger  *slog.Logger
	Metrics *observability.DriverMetrics
	Audit   *observability.AuditLogger

	Encoding            string
	CancelCheckInterval int
	// Extensions restricts the registered extensions that are installed.
	// Empty installs all of them.
	Extensions []string
	Locale     string
}

// Orchestrator performs a single compilation.
type Orchestrator struct {
	opts   Options
	state  atomic.Int32
	report *metrics.CompileReport
}

// New returns an idle Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	return &Orchestrator{opts: opts}
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Report returns the report of the compilation, or nil before Compile.
func (o *Orchestrator) Report() *metrics.CompileReport {
	return o.report
}

// Compile runs req. Failures of the compilation itself are reported to the
// request's sink and yield Failed with a nil error; a non-nil error is an
// *InternalError or a second call on the same Orchestrator.
func (o *Orchestrator) Compile(ctx context.Context, req Request) (outcome Outcome, err error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Failed, compiler.IllegalState("orchestrator can only compile once")
	}
	outcome = Failed

	id := uuid.NewString()
	logger := o.opts.Logger.With("invocation", id)
	o.report = metrics.New(id, o.opts.Tool)
	o.report.Units = len(req.Sources)

	ctx, span := observability.StartCompileSpan(ctx, o.opts.Tool, id, len(req.Sources))
	defer span.End()

	sink := req.Sink
	if sink == nil {
		sink = discardSink{}
	}
	rec := &recorder{
		Sink:         sink,
		invocationID: id,
		report:       o.report,
		metrics:      o.opts.Metrics,
		audit:        o.opts.Audit,
		span:         span,
	}

	o.opts.Audit.LogCompileStart(id, o.opts.Tool, len(req.Sources), req.Options)
	logger.Debug("compilation started", "units", len(req.Sources), "options", len(req.Options))
	start := time.Now()

	defer func() {
		elapsed := time.Since(start)
		o.report.Finish(outcome.String(), rec.failures)
		o.opts.Metrics.RecordCompilation(elapsed, outcome.String())
		observability.RecordCompileResult(span, outcome.String(), rec.errors, rec.warnings, o.report.Outputs.Files)
		if err != nil {
			observability.RecordError(span, err)
			o.opts.Audit.LogCompileError(id, o.report.Tool, err)
		}
		o.opts.Audit.LogCompileEnd(id, o.report.Tool, outcome.String(), elapsed, o.report.Outputs.Files, rec.errors)
		logger.Info("compilation finished",
			"tool", o.report.Tool,
			"outcome", outcome.String(),
			"errors", rec.errors,
			"warnings", rec.warnings,
			"outputs", o.report.Outputs.Files,
			"duration", elapsed,
		)
		o.state.Store(int32(stateOf(outcome)))
	}()

	return o.guard(ctx, req, rec, logger)
}

// guard runs the compilation and turns a panic anywhere in it into an
// internal fault.
func (o *Orchestrator) guard(ctx context.Context, req Request, rec *recorder, logger *slog.Logger) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = o.settle(&PanicError{Value: r}, rec, logger)
		}
	}()
	return o.run(ctx, req, rec, logger)
}

func (o *Orchestrator) run(ctx context.Context, req Request, rec *recorder, logger *slog.Logger) (Outcome, error) {
	if o.opts.Registry == nil {
		rec.fail("no compiler tools registered")
		return Failed, nil
	}
	tool, err := o.opts.Registry.Tool(o.opts.Tool)
	if err != nil {
		rec.fail("compiler unavailable: " + err.Error())
		return Failed, nil
	}
	o.report.Tool = tool.Name()

	for dir := range req.Outputs {
		if err := o.opts.Fs.MkdirAll(dir, 0o755); err != nil {
			rec.fail(fmt.Sprintf("cannot create output directory %s: %v", dir, err))
			return Failed, nil
		}
	}

	base, err := tool.StandardFileManager(rec, o.opts.Locale, o.opts.Encoding)
	if err != nil {
		rec.fail("cannot create file manager: " + err.Error())
		return Failed, nil
	}
	vfm := filemanager.New(base, filemanager.Options{
		Fs:                  o.opts.Fs,
		Encoding:            o.opts.Encoding,
		Canceled:            req.Canceled,
		CancelCheckInterval: o.opts.CancelCheckInterval,
		Sink:                rec,
		Lister:              req.Lister,
		Provider:            req.Provider,
		Transformers:        req.Transformers,
		Loaders:             o.opts.Registry.Loaders(o.opts.Fs),
		Logger:              logger,
		Metrics:             o.opts.Metrics,
	})
	defer func() {
		if err := vfm.Close(); err != nil {
			logger.Warn("closing file manager", "error", err)
		}
		if tool.Primary() {
			caches.clean(tool, logger)
		}
	}()

	taskOptions, flags, units, err := configure(vfm, o.opts.Fs, tool, req)
	if err != nil {
		return o.settle(err, rec, logger)
	}

	session := intercept.NewSession(vfm, logger)
	tracking := DependencyTracking()
	var listener compiler.DiagnosticListener = rec
	if tracking {
		listener = session.WrapDiagnosticListener(rec)
		rec.rewrite = session.Names().Rewrite
	}
	out := session.OutputWriter(rec.OutputLine)
	defer out.Flush()

	task, err := tool.Task(out, vfm, listener, taskOptions, nil, units)
	if err != nil {
		if classify(err) == classInternal {
			rec.fail("cannot create compiler task: " + err.Error())
			return Failed, nil
		}
		return o.settle(err, rec, logger)
	}
	task.SetLocale(o.opts.Locale)

	if !flags.procNone {
		procs, loader, err := discoverProcessors(vfm, flags.processors)
		if err != nil {
			if classify(err) == classCanceled {
				return o.settle(err, rec, logger)
			}
			rec.fail(err.Error())
			return Failed, nil
		}
		if len(procs) > 0 {
			for _, p := range procs {
				o.report.Processors = append(o.report.Processors, compiler.ProcessorName(p))
			}
			if tracking {
				procs = session.WrapProcessors(procs, loader, task.ContextLoader())
			}
			task.SetProcessors(procs)
			logger.Debug("annotation processors installed", "count", len(procs), "tracking", tracking)
		}
	}

	o.installExtensions(ctx, tool, task, taskOptions, rec, logger)
	intercept.InstallPassthrough(task.Context(), vfm, base, logger)

	ok, err := call(ctx, task)
	if err != nil {
		return o.settle(err, rec, logger)
	}
	if !ok {
		return Failed, nil
	}
	return Succeeded, nil
}

// configure applies req to vfm in the order the compiler expects and
// returns the options left for the task.
func configure(vfm *filemanager.Manager, fsys afero.Fs, tool compiler.Tool, req Request) ([]string, *flagSet, []compiler.FileObject, error) {
	flags, err := splitOptions(req.Options, vfm, tool)
	if err != nil {
		return nil, nil, nil, err
	}
	extJars, err := applyEarly(vfm, fsys, flags.early)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := vfm.SetOutputDirectories(req.Outputs); err != nil {
		return nil, nil, nil, err
	}
	if err := setLocations(vfm, req, extJars); err != nil {
		return nil, nil, nil, err
	}
	taskOptions, err := applyLate(vfm, flags.late)
	if err != nil {
		return nil, nil, nil, err
	}
	if req.Lister == nil && !vfm.HasLocation(compiler.ClassOutput) {
		return nil, nil, nil, compiler.IllegalState("no output directory for %s", compiler.ClassOutput)
	}
	units, err := vfm.SetInputSources(req.Sources)
	if err != nil {
		return nil, nil, nil, err
	}
	return taskOptions, flags, units, nil
}

// setLocations sets the search paths of req. The module path goes in
// before the class path so that it wins when both are present.
func setLocations(vfm *filemanager.Manager, req Request, extJars []string) error {
	sourcePath := req.SourcePath
	if len(sourcePath) == 0 {
		sourcePath = sourceRoots(req.Outputs)
	}
	platform := append(append([]string(nil), req.PlatformClassPath...), extJars...)
	steps := []struct {
		loc   compiler.Location
		paths []string
	}{
		{compiler.PlatformClassPath, platform},
		{compiler.UpgradeModulePath, req.UpgradeModulePath},
		{compiler.ModulePath, req.ModulePath},
		{compiler.ClassPath, req.ClassPath},
		{compiler.SourcePath, sourcePath},
	}
	for _, s := range steps {
		if len(s.paths) == 0 {
			continue
		}
		if err := vfm.SetLocation(s.loc, s.paths); err != nil {
			return fmt.Errorf("%s: %w", s.loc, err)
		}
	}

	if vfm.HasLocation(compiler.AnnotationProcessorPath) || vfm.HasLocation(compiler.AnnotationProcessorModulePath) {
		return nil
	}
	loc, paths := compiler.AnnotationProcessorPath, req.ProcessorPath
	switch {
	case len(paths) > 0:
	case len(req.ModulePath) > 0:
		loc, paths = compiler.AnnotationProcessorModulePath, req.ModulePath
	default:
		paths = req.ClassPath
	}
	if len(paths) == 0 {
		return nil
	}
	if err := vfm.SetLocation(loc, paths); err != nil {
		return fmt.Errorf("%s: %w", loc, err)
	}
	return nil
}

func sourceRoots(outputs map[string][]string) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, rs := range outputs {
		for _, r := range rs {
			if !seen[r] {
				seen[r] = true
				roots = append(roots, r)
			}
		}
	}
	sort.Strings(roots)
	return roots
}

func (o *Orchestrator) installExtensions(ctx context.Context, tool compiler.Tool, task compiler.Task, options []string, rec *recorder, logger *slog.Logger) {
	for _, ext := range o.opts.Registry.Extensions(o.opts.Extensions...) {
		start := time.Now()
		err := installExtension(ctx, ext, tool, task, options, rec)
		o.report.AddExtension(ext.Name(), time.Since(start), err != nil)
		if err != nil {
			logger.Warn("compiler extension failed", "extension", ext.Name(), "error", err)
			o.opts.Metrics.ExtensionFailed()
			o.opts.Audit.LogExtensionError(o.report.InvocationID, ext.Name(), err)
		}
	}
}

// installExtension runs one extension. A failing extension never fails the
// compilation.
func installExtension(ctx context.Context, ext plugins.Extension, tool compiler.Tool, task compiler.Task, options []string, sink plugins.ExtensionSink) (err error) {
	_, span := observability.StartExtensionSpan(ctx, ext.Name())
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		if err != nil {
			observability.RecordError(span, err)
		}
	}()
	return ext.Install(tool, task, options, sink)
}

func call(ctx context.Context, task compiler.Task) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &PanicError{Value: r}
		}
	}()
	return task.Call(ctx)
}

// settle maps a failure to its outcome and reports it.
func (o *Orchestrator) settle(err error, rec *recorder, logger *slog.Logger) (Outcome, error) {
	switch classify(err) {
	case classCanceled:
		logger.Info("compilation canceled", "reason", err)
		rec.note("compilation canceled")
		return Canceled, nil
	case classUsage:
		rec.fail(usageMessage(err))
		return Failed, nil
	default:
		logger.Error("internal compiler error", "error", err)
		rec.fail(strings.Join(causalMessages(err), "\n"))
		return Failed, &InternalError{Err: err, Message: rec.text(err.Error())}
	}
}

// usageMessage strips the sentinel prefix from a usage error.
func usageMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{compiler.ErrIllegalArgument, compiler.ErrIllegalState} {
		if errors.Is(err, sentinel) {
			msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
		}
	}
	return msg
}
