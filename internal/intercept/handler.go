// Package intercept builds stand-ins that sit between the compiler and the
// collaborators it calls: the diagnostic listener, the processing
// environment and its filer, processors and the file manager. A stand-in
// sends each call to the first custom layer that declares the method and
// everything else to a fallback delegate.
package intercept

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// Proxy is implemented by every stand-in built by this package.
type Proxy interface {
	ProxyHandler() *Handler
}

// Delegator is implemented by custom layers that wrap an object of their
// own. Unwrap follows it in preference to the handler's fallback.
type Delegator interface {
	Delegate() any
}

// Handler holds the dispatch table of one stand-in: an ordered list of
// custom layers, most specific first, and the fallback delegate. The
// decision for a method is resolved once and cached.
//
// A Handler is confined to the compilation thread.
type Handler struct {
	layers    []any
	fallback  any
	decisions map[string]reflect.Value
}

// NewHandler returns a handler over fallback. Nil layers are skipped.
func NewHandler(fallback any, layers ...any) *Handler {
	h := &Handler{
		fallback:  fallback,
		decisions: make(map[string]reflect.Value),
	}
	for _, l := range layers {
		if l != nil {
			h.layers = append(h.layers, l)
		}
	}
	return h
}

// Fallback returns the delegate that receives undeclared calls.
func (h *Handler) Fallback() any {
	return h.fallback
}

// Has reports whether any layer or the fallback declares method.
func (h *Handler) Has(method string) bool {
	_, err := h.resolve(method)
	return err == nil
}

// Custom reports whether method is served by a custom layer.
func (h *Handler) Custom(method string) bool {
	for _, l := range h.layers {
		if methodIndex(reflect.TypeOf(l), method) >= 0 {
			return true
		}
	}
	return false
}

func (h *Handler) resolve(method string) (reflect.Value, error) {
	if fn, ok := h.decisions[method]; ok {
		return fn, nil
	}
	for _, target := range append(h.layers, h.fallback) {
		if target == nil {
			continue
		}
		v := reflect.ValueOf(target)
		if i := methodIndex(v.Type(), method); i >= 0 {
			fn := v.Method(i)
			h.decisions[method] = fn
			return fn, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: no target declares %s", compiler.ErrUnsupported, method)
}

// Invoke calls method with args on the resolved target. A trailing error
// result is returned as the error, exactly as the target produced it, and
// a panic raised by the target propagates with its original value. The
// other results are returned in order.
func (h *Handler) Invoke(method string, args ...any) ([]any, error) {
	fn, err := h.resolve(method)
	if err != nil {
		return nil, err
	}
	in, err := callArgs(fn.Type(), method, args)
	if err != nil {
		return nil, err
	}
	return splitResults(fn.Type(), fn.Call(in))
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callArgs(ft reflect.Type, method string, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, compiler.IllegalArgument("%s takes at least %d arguments, got %d", method, fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, compiler.IllegalArgument("%s takes %d arguments, got %d", method, fixed, len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if i < fixed {
			pt = ft.In(i)
		} else {
			pt = ft.In(fixed).Elem()
		}
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		v := reflect.ValueOf(a)
		if !v.Type().AssignableTo(pt) {
			return nil, compiler.IllegalArgument("%s argument %d: %s is not assignable to %s", method, i, v.Type(), pt)
		}
		in[i] = v
	}
	return in, nil
}

func splitResults(ft reflect.Type, out []reflect.Value) ([]any, error) {
	var err error
	results := make([]any, 0, len(out))
	for i, o := range out {
		if i == len(out)-1 && ft.Out(i) == errorType {
			if !o.IsNil() {
				err = o.Interface().(error)
			}
			continue
		}
		results = append(results, o.Interface())
	}
	return results, err
}

type methodKey struct {
	t    reflect.Type
	name string
}

// methods caches method lookups per type; they are process wide.
var methods sync.Map

func methodIndex(t reflect.Type, name string) int {
	if t == nil {
		return -1
	}
	key := methodKey{t: t, name: name}
	if i, ok := methods.Load(key); ok {
		return i.(int)
	}
	i := -1
	if m, ok := t.MethodByName(name); ok {
		i = m.Index
	}
	methods.Store(key, i)
	return i
}

const maxUnwrapDepth = 32

// Unwrap returns the original delegate behind v, following nested
// stand-ins and layers that expose their own delegate. It never returns a
// stand-in: when nothing behind v satisfies T, the zero T is returned.
// Values that are not stand-ins are returned unchanged.
func Unwrap[T any](v T) T {
	cur := any(v)
	if _, ok := cur.(Proxy); !ok {
		return v
	}
	for i := 0; i < maxUnwrapDepth; i++ {
		p, ok := cur.(Proxy)
		if !ok {
			break
		}
		cur = next(p.ProxyHandler())
	}
	if _, ok := cur.(Proxy); ok {
		var zero T
		return zero
	}
	if t, ok := cur.(T); ok {
		return t
	}
	var zero T
	return zero
}

func next(h *Handler) any {
	for _, l := range h.layers {
		switch d := l.(type) {
		case Delegator:
			if inner := d.Delegate(); inner != nil {
				return inner
			}
		case compiler.Forwarding:
			if inner := d.Delegate(); inner != nil {
				return inner
			}
		}
	}
	return h.fallback
}
