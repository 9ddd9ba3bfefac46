// Package buildstate keeps the manifest a caller needs to skip or clean up
// compilations between invocations. The driver itself never caches
// anything across calls; the CLI owns this file.
package buildstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/filemanager"
)

const stateVersion = "1"

// State is the persisted result of the last successful compilation.
type State struct {
	Version string    `json:"version"`
	LastRun time.Time `json:"last_run"`
	Tool    string    `json:"tool"`
	// Settings is the Digest of everything besides source content that
	// shapes the outputs.
	Settings string `json:"settings"`
	// Sources maps source path to the SHA-256 of its content.
	Sources map[string]string `json:"sources"`
	// Outputs maps output path to the source paths it was produced from.
	// Unattributed outputs map to an empty list.
	Outputs map[string][]string `json:"outputs"`
}

// New returns an empty state for tool compiled with settings.
func New(tool, settings string) *State {
	return &State{
		Version:  stateVersion,
		Tool:     tool,
		Settings: settings,
		Sources:  make(map[string]string),
		Outputs:  make(map[string][]string),
	}
}

// Digest hashes named groups of values, such as compiler options, search
// paths and the output map. The order of values within a group matters;
// the order of groups does not.
func Digest(groups map[string][]string) string {
	h := sha256.New()
	for _, name := range sortedKeys(groups) {
		fmt.Fprintf(h, "%d:%s", len(name), name)
		for _, v := range groups[name] {
			fmt.Fprintf(h, "|%d:%s", len(v), v)
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Load reads the state at path. It returns nil without error on the first
// run, or when the file was written by another version or tool.
func Load(fsys afero.Fs, path, tool string) (*State, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read build state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse build state %s: %w", path, err)
	}
	if s.Version != stateVersion || s.Tool != tool {
		return nil, nil
	}
	if s.Sources == nil {
		s.Sources = make(map[string]string)
	}
	if s.Outputs == nil {
		s.Outputs = make(map[string][]string)
	}
	return &s, nil
}

// Save writes the state to path, creating parent directories.
func (s *State) Save(fsys afero.Fs, path string) error {
	s.LastRun = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write build state: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write build state: %w", err)
	}
	return nil
}

// Record notes a committed output. Source URIs outside the local file
// system are dropped.
func (s *State) Record(out filemanager.Output) {
	var sources []string
	for _, uri := range out.Sources {
		if p, ok := strings.CutPrefix(uri, "file://"); ok {
			sources = append(sources, p)
		}
	}
	sort.Strings(sources)
	s.Outputs[out.Path] = sources
}

// Fingerprint hashes the content of every path.
func Fingerprint(fsys afero.Fs, paths []string) (map[string]string, error) {
	sums := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := afero.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %s: %w", p, err)
		}
		h := sha256.Sum256(data)
		sums[p] = hex.EncodeToString(h[:])
	}
	return sums, nil
}

// Analysis compares the current sources against a previous state.
type Analysis struct {
	FirstRun bool `json:"first_run"`
	// SettingsChanged is set when the settings differ from the previous run.
	SettingsChanged bool `json:"settings_changed,omitempty"`

	Changed   []string `json:"changed,omitempty"`
	New       []string `json:"new,omitempty"`
	Deleted   []string `json:"deleted,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
	// Stale are previous outputs produced from changed or deleted sources.
	Stale []string `json:"stale,omitempty"`
	// Missing are previous outputs no longer on disk.
	Missing []string `json:"missing,omitempty"`
}

// UpToDate reports whether nothing needs compiling.
func (a *Analysis) UpToDate() bool {
	return !a.FirstRun && !a.SettingsChanged && len(a.Changed) == 0 && len(a.New) == 0 &&
		len(a.Deleted) == 0 && len(a.Missing) == 0
}

// Analyze classifies current, compiled with settings, against prev, which
// may be nil.
func Analyze(fsys afero.Fs, prev *State, current map[string]string, settings string) *Analysis {
	a := &Analysis{}
	if prev == nil {
		a.FirstRun = true
		a.New = sortedKeys(current)
		return a
	}
	a.SettingsChanged = prev.Settings != settings

	dirty := make(map[string]bool)
	for _, p := range sortedKeys(current) {
		old, ok := prev.Sources[p]
		switch {
		case !ok:
			a.New = append(a.New, p)
		case old != current[p]:
			a.Changed = append(a.Changed, p)
			dirty[p] = true
		default:
			a.Unchanged = append(a.Unchanged, p)
		}
	}
	for _, p := range sortedKeys(prev.Sources) {
		if _, ok := current[p]; !ok {
			a.Deleted = append(a.Deleted, p)
			dirty[p] = true
		}
	}

	for _, out := range sortedKeys(prev.Outputs) {
		stale := false
		for _, src := range prev.Outputs[out] {
			if dirty[src] {
				stale = true
				break
			}
		}
		if stale {
			a.Stale = append(a.Stale, out)
			continue
		}
		if ok, _ := afero.Exists(fsys, out); !ok {
			a.Missing = append(a.Missing, out)
		}
	}
	return a
}

// RemoveStale deletes the stale outputs and returns how many were removed.
// Outputs already gone are not an error.
func RemoveStale(fsys afero.Fs, a *Analysis) (int, error) {
	var errs []error
	removed := 0
	for _, p := range a.Stale {
		err := fsys.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// Next builds the state to persist after a successful compilation of
// current. Outputs of unchanged sources carry over unless they went stale.
func (s *State) Next(prev *State, a *Analysis, current map[string]string) {
	s.Sources = current
	if prev == nil {
		return
	}
	gone := make(map[string]bool, len(a.Stale)+len(a.Missing))
	for _, p := range a.Stale {
		gone[p] = true
	}
	for _, p := range a.Missing {
		gone[p] = true
	}
	for out, sources := range prev.Outputs {
		if _, seen := s.Outputs[out]; seen || gone[out] {
			continue
		}
		s.Outputs[out] = sources
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
