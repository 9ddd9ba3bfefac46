package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/kiln/internal/config"
	"github.com/efebarandurmaz/kiln/internal/lifecycle"
	"github.com/efebarandurmaz/kiln/internal/observability"
	"github.com/efebarandurmaz/kiln/internal/orchestrator"
	"github.com/efebarandurmaz/kiln/internal/plugins"
)

type compileOptions struct {
	outputs     []string
	tool        string
	extensions  []string
	jsonReport  bool
	summary     bool
	noTracking  bool
	noColor     bool
	listOutputs bool
	logLevel    string
	stateFile   string
}

func newCompileCmd(configPath *string, registry func() *plugins.Registry) *cobra.Command {
	opts := &compileOptions{}
	cmd := &cobra.Command{
		Use:   "compile [flags] -- [compiler options] <sources>",
		Short: "Compile sources through the virtual file manager",
		Example: `  kiln compile --out build/classes=src -- -cp lib/dep.jar src/p/A.java
  kiln compile --json -- -d out -sourcepath src src/p/A.java`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, *configPath, registry(), opts, args)
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.outputs, "out", nil, "Output directory and the source roots it serves, as DIR[=ROOT,...] (repeatable)")
	f.StringVar(&opts.tool, "tool", "", "Compiler tool (default: the primary tool)")
	f.StringSliceVar(&opts.extensions, "extension", nil, "Compiler extensions to run (default: all)")
	f.BoolVar(&opts.jsonReport, "json", false, "Print the compile report as JSON")
	f.BoolVar(&opts.summary, "summary", false, "Print a compile report summary")
	f.BoolVar(&opts.noTracking, "no-tracking", false, "Disable dependency tracking of generated outputs")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored diagnostics")
	f.BoolVar(&opts.listOutputs, "list-outputs", false, "Print every file written")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	f.StringVar(&opts.stateFile, "state", "", "Build state file; skips the compilation when no source changed")
	return cmd
}

// parseOutputs turns DIR[=ROOT,...] arguments into an output map.
func parseOutputs(args []string) (map[string][]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(args))
	for _, arg := range args {
		dir, roots, _ := strings.Cut(arg, "=")
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return nil, fmt.Errorf("--out %q: empty output directory", arg)
		}
		dir = absPath(dir)
		for _, r := range strings.Split(roots, ",") {
			if r = strings.TrimSpace(r); r != "" {
				out[dir] = append(out[dir], absPath(r))
			}
		}
		if _, ok := out[dir]; !ok {
			out[dir] = nil
		}
	}
	return out, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func runCompile(cmd *cobra.Command, configPath string, registry *plugins.Registry, opts *compileOptions, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := observability.NewLogger(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return err
	}
	if opts.noColor {
		color.NoColor = true
	}

	tool, err := registry.Tool(firstNonEmpty(opts.tool, cfg.Compiler.Tool))
	if err != nil {
		return err
	}
	req, err := orchestrator.ParseArgs(tool, args)
	if err != nil {
		return err
	}
	if req.Outputs, err = parseOutputs(opts.outputs); err != nil {
		return err
	}
	if len(req.Sources) == 0 {
		return fmt.Errorf("no source files")
	}

	extensions := firstNonEmptySlice(opts.extensions, cfg.Compiler.Extensions)
	inc, err := openIncremental(afero.NewOsFs(), firstNonEmpty(opts.stateFile, cfg.Compiler.StateFile), tool.Name(), req, extensions, logger)
	if err != nil {
		return err
	}
	if inc.upToDate() {
		fmt.Fprintln(cmd.ErrOrStderr(), "up to date")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown := lifecycle.New(&lifecycle.Config{
		Signals: lifecycle.DefaultConfig().Signals,
		Logger:  logger,
	})

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "kiln",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	shutdown.Register(lifecycle.TracingHook(tp.Shutdown))

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Path,
	})
	if err != nil {
		return err
	}
	shutdown.Register(lifecycle.AuditLoggerHook(audit.Close))

	driverMetrics := observability.Metrics()
	if cfg.Metrics.Path != "" {
		shutdown.Register(lifecycle.MetricsHook(func(context.Context) error {
			return writeMetrics(cfg.Metrics.Path, driverMetrics)
		}))
	}

	shutdown.Start()
	defer func() {
		shutdown.Shutdown()
		shutdown.Wait()
	}()
	ctx, cancel := shutdown.Context(ctx)
	defer cancel()

	orchestrator.SetDependencyTracking(cfg.Compiler.DependencyTracking && !opts.noTracking)
	out := &console{w: cmd.ErrOrStderr(), logger: logger, locale: "en", listOutputs: opts.listOutputs, record: inc.record}
	req.Sink = out
	req.Canceled = shutdown.Canceled

	o := orchestrator.New(orchestrator.Options{
		Registry:            registry,
		Tool:                tool.Name(),
		Logger:              logger,
		Metrics:             driverMetrics,
		Audit:               audit,
		Encoding:            cfg.Compiler.Encoding,
		CancelCheckInterval: cfg.Compiler.CancelCheckInterval,
		Extensions:          extensions,
	})
	outcome, compileErr := o.Compile(ctx, req)
	if outcome == orchestrator.Succeeded {
		if err := inc.save(); err != nil {
			logger.Warn("build state not saved", "error", err)
		}
	}

	if s := out.summary(); s != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), s)
	}
	if report := o.Report(); report != nil {
		switch {
		case opts.jsonReport:
			data, err := report.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		case opts.summary:
			report.PrintSummary(cmd.OutOrStdout())
		}
	}

	switch {
	case compileErr != nil:
		return &exitError{code: 3, msg: compileErr.Error()}
	case outcome == orchestrator.Canceled:
		return &exitError{code: 130}
	case outcome == orchestrator.Failed:
		return &exitError{code: 1}
	}
	return nil
}

func writeMetrics(path string, m *observability.DriverMetrics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := m.Registry.WritePrometheus(f); err != nil {
		f.Close()
		return fmt.Errorf("metrics: %w", err)
	}
	return f.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
