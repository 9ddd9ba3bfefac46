package main

import (
	"log/slog"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/buildstate"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
	"github.com/efebarandurmaz/kiln/internal/orchestrator"
)

// incremental tracks source fingerprints between runs. A nil value
// disables every check.
type incremental struct {
	fs       afero.Fs
	path     string
	prev     *buildstate.State
	next     *buildstate.State
	current  map[string]string
	analysis *buildstate.Analysis
}

// settingsDigest covers every input of req besides source content that
// changes what the compiler writes.
func settingsDigest(tool string, req orchestrator.Request, extensions []string) string {
	groups := map[string][]string{
		"tool":          {tool},
		"options":       req.Options,
		"platform":      req.PlatformClassPath,
		"upgrade":       req.UpgradeModulePath,
		"modulepath":    req.ModulePath,
		"classpath":     req.ClassPath,
		"sourcepath":    req.SourcePath,
		"processorpath": req.ProcessorPath,
		"extensions":    extensions,
	}
	for dir, roots := range req.Outputs {
		groups["out "+dir] = roots
	}
	return buildstate.Digest(groups)
}

// openIncremental loads the previous state and removes outputs whose
// sources changed or disappeared.
func openIncremental(fsys afero.Fs, path, tool string, req orchestrator.Request, extensions []string, logger *slog.Logger) (*incremental, error) {
	if path == "" {
		return nil, nil
	}
	canonical := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		canonical[i] = fileobject.Canonical(s)
	}
	current, err := buildstate.Fingerprint(fsys, canonical)
	if err != nil {
		return nil, err
	}
	prev, err := buildstate.Load(fsys, path, tool)
	if err != nil {
		return nil, err
	}
	settings := settingsDigest(tool, req, extensions)
	a := buildstate.Analyze(fsys, prev, current, settings)
	logger.Debug("build state analyzed",
		"first_run", a.FirstRun,
		"settings_changed", a.SettingsChanged,
		"changed", len(a.Changed),
		"new", len(a.New),
		"deleted", len(a.Deleted),
		"stale_outputs", len(a.Stale))

	removed, err := buildstate.RemoveStale(fsys, a)
	if err != nil {
		logger.Warn("stale outputs not removed", "error", err)
	}
	if removed > 0 {
		logger.Info("removed stale outputs", "count", removed)
	}
	return &incremental{
		fs:       fsys,
		path:     path,
		prev:     prev,
		next:     buildstate.New(tool, settings),
		current:  current,
		analysis: a,
	}, nil
}

func (i *incremental) upToDate() bool {
	return i != nil && i.analysis.UpToDate()
}

func (i *incremental) record(out filemanager.Output) {
	if i != nil {
		i.next.Record(out)
	}
}

func (i *incremental) save() error {
	if i == nil {
		return nil
	}
	i.next.Next(i.prev, i.analysis, i.current)
	return i.next.Save(i.fs, i.path)
}
