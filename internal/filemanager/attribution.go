package filemanager

import (
	"sort"
	"strings"
)

// Attribution maps the external name of a generated artifact to the
// qualified names of the source elements that caused it. Names are stored
// in the dotted and the slashed form so either lookup convention matches.
//
// Attribution is confined to the compilation thread.
type Attribution struct {
	sources map[string]map[string]struct{}
}

// NewAttribution returns an empty map.
func NewAttribution() *Attribution {
	return &Attribution{sources: make(map[string]map[string]struct{})}
}

func attributionKeys(artifact string) []string {
	keys := []string{artifact}
	if dotted := strings.ReplaceAll(artifact, "/", "."); dotted != artifact {
		keys = append(keys, dotted)
	}
	if slashed := strings.ReplaceAll(artifact, ".", "/"); slashed != artifact {
		keys = append(keys, slashed)
	}
	return keys
}

// Record adds originating sources for artifact. Empty names are ignored.
func (a *Attribution) Record(artifact string, sources ...string) {
	if artifact == "" {
		return
	}
	for _, key := range attributionKeys(artifact) {
		set, ok := a.sources[key]
		if !ok {
			set = make(map[string]struct{})
			a.sources[key] = set
		}
		for _, s := range sources {
			if s != "" {
				set[s] = struct{}{}
			}
		}
	}
}

// Sources returns the sorted originating names of artifact. Nested class
// names ("a.Outer$Inner") fall back to their top-level class.
func (a *Attribution) Sources(artifact string) []string {
	set, ok := a.sources[artifact]
	if !ok {
		if i := strings.IndexByte(artifact, '$'); i > 0 {
			set, ok = a.sources[artifact[:i]]
		}
	}
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Has reports whether artifact was recorded.
func (a *Attribution) Has(artifact string) bool {
	return len(a.Sources(artifact)) > 0
}

// Len returns the number of stored keys.
func (a *Attribution) Len() int {
	return len(a.sources)
}

// Clear drops every entry.
func (a *Attribution) Clear() {
	clear(a.sources)
}
