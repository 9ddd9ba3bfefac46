package compiler

import (
	"context"
	"io"
	"reflect"
	"strings"
)

// Tool is a pluggable compiler descriptor.
type Tool interface {
	Name() string
	// Primary reports whether this is the built-in tool whose
	// process-global caches the driver cleans after each invocation.
	Primary() bool
	StandardFileManager(listener DiagnosticListener, locale, encoding string) (StandardFileManager, error)
	Task(out io.Writer, fm FileManager, listener DiagnosticListener, options, classes []string, units []FileObject) (Task, error)
	IsSupportedOption(option string) int
}

// Task runs one compilation.
type Task interface {
	SetProcessors(ps []Processor)
	SetLocale(locale string)
	// Context exposes the compiler's internal component registry.
	Context() *Context
	// ContextLoader is the class loader slot of the compilation thread.
	ContextLoader() *LoaderSlot
	Call(ctx context.Context) (bool, error)
}

// CacheResetter clears process-global caches a tool accumulates across
// invocations.
type CacheResetter interface {
	ResetInternTable() error
	ResetArchiveIndex() error
}

// GlobalCacheOwner is an optional Tool capability. GlobalCaches fails when
// the running tool build does not expose its caches.
type GlobalCacheOwner interface {
	GlobalCaches() (CacheResetter, error)
}

// Key identifies a component in a Context.
type Key string

// FileManagerKey is the Context key under which a task keeps the file
// manager it reads and writes through.
const FileManagerKey Key = "fileManager"

// Context is the compiler's component registry. It is confined to the
// compilation thread.
type Context struct {
	keys   []Key
	values map[Key]any
}

// NewContext returns an empty registry.
func NewContext() *Context {
	return &Context{values: make(map[Key]any)}
}

// Put registers or replaces the component under key.
func (c *Context) Put(key Key, v any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Get returns the component under key, or nil.
func (c *Context) Get(key Key) any {
	return c.values[key]
}

// Range calls fn for each component in registration order until fn
// returns false.
func (c *Context) Range(fn func(key Key, v any) bool) {
	for _, k := range c.keys {
		if !fn(k, c.values[k]) {
			return
		}
	}
}

// LoaderSlot holds the context class loader of the compilation thread.
type LoaderSlot struct {
	current ClassLoader
}

// Current returns the loader in the slot.
func (s *LoaderSlot) Current() ClassLoader {
	return s.current
}

// Swap installs cl and returns the previous loader.
func (s *LoaderSlot) Swap(cl ClassLoader) ClassLoader {
	prev := s.current
	s.current = cl
	return prev
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return strings.ReplaceAll(t.PkgPath(), "/", ".") + "." + t.Name()
}
