// Package plugins holds the tools, compiler extensions and processor
// implementations a driver process can use. Processors are registered by
// fully qualified class name; a class loader makes a registered processor
// visible when the processor path names it.
package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// ProcessorFactory creates a fresh processor instance.
type ProcessorFactory func() compiler.Processor

// Registry stores available tools, extensions and processor factories.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]compiler.Tool
	extensions []Extension
	processors map[string]ProcessorFactory
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]compiler.Tool),
		processors: make(map[string]ProcessorFactory),
	}
}

func (r *Registry) RegisterTool(t compiler.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// RegisterExtension adds e. Extensions run in registration order; a later
// extension with the same name replaces the earlier one in place.
func (r *Registry) RegisterExtension(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, have := range r.extensions {
		if have.Name() == e.Name() {
			r.extensions[i] = e
			return
		}
	}
	r.extensions = append(r.extensions, e)
}

// RegisterProcessor makes the processor class name available to class
// loaders.
func (r *Registry) RegisterProcessor(className string, f ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[className] = f
}

// Tool returns the tool registered under name. An empty name selects the
// primary tool.
func (r *Registry) Tool(name string) (compiler.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		for _, n := range sortedNames(r.tools) {
			if r.tools[n].Primary() {
				return r.tools[n], nil
			}
		}
		return nil, fmt.Errorf("no primary tool registered")
	}
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("no tool registered as %q", name)
	}
	return t, nil
}

// Tools returns every registered tool sorted by name.
func (r *Registry) Tools() []compiler.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]compiler.Tool, 0, len(r.tools))
	for _, n := range sortedNames(r.tools) {
		out = append(out, r.tools[n])
	}
	return out
}

// Extensions returns the registered extensions in order, restricted to
// names when any are given. Unknown names are ignored.
func (r *Registry) Extensions(names ...string) []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(names) == 0 {
		return append([]Extension(nil), r.extensions...)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Extension
	for _, e := range r.extensions {
		if want[e.Name()] {
			out = append(out, e)
		}
	}
	return out
}

// Processor returns the factory of className.
func (r *Registry) Processor(className string) (ProcessorFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.processors[className]
	return f, ok
}

// Processors returns the registered processor class names, sorted.
func (r *Registry) Processors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.processors)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
