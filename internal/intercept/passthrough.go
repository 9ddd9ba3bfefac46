package intercept

import (
	"fmt"
	"log/slog"
	"reflect"
	"unsafe"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

// Passthrough stands in for the virtual file manager. The file manager
// contract goes to the wrapped manager. Methods it does not declare, such
// as capabilities added by newer base managers, go to the real base
// manager instead of failing as unsupported.
type Passthrough struct {
	handler *Handler
	inner   compiler.FileManager
	base    compiler.StandardFileManager
}

var (
	_ compiler.StandardFileManager = (*Passthrough)(nil)
	_ compiler.PathLister          = (*Passthrough)(nil)
	_ compiler.Forwarding          = (*Passthrough)(nil)
	_ Proxy                        = (*Passthrough)(nil)
)

// NewPassthrough wraps inner, forwarding what it lacks to base.
func NewPassthrough(inner compiler.FileManager, base compiler.StandardFileManager) *Passthrough {
	return &Passthrough{
		handler: NewHandler(base, inner),
		inner:   inner,
		base:    base,
	}
}

func (p *Passthrough) ProxyHandler() *Handler { return p.handler }

// Delegate returns the wrapped manager.
func (p *Passthrough) Delegate() compiler.FileManager { return p.inner }

// Invoke calls any method by name on the wrapped manager, or on the base
// manager when the wrapped one does not declare it.
func (p *Passthrough) Invoke(method string, args ...any) ([]any, error) {
	return p.handler.Invoke(method, args...)
}

func (p *Passthrough) Close() error { return p.inner.Close() }

func (p *Passthrough) List(loc compiler.Location, pkg string, kinds compiler.KindSet, recurse bool) ([]compiler.FileObject, error) {
	return p.inner.List(loc, pkg, kinds, recurse)
}

func (p *Passthrough) InferBinaryName(loc compiler.Location, fo compiler.FileObject) (string, bool) {
	return p.inner.InferBinaryName(loc, fo)
}

func (p *Passthrough) IsSameFile(a, b compiler.FileObject) bool { return p.inner.IsSameFile(a, b) }
func (p *Passthrough) IsSupportedOption(option string) int      { return p.inner.IsSupportedOption(option) }

func (p *Passthrough) HandleOption(option, value string) (bool, error) {
	return p.inner.HandleOption(option, value)
}

func (p *Passthrough) HasLocation(loc compiler.Location) bool { return p.inner.HasLocation(loc) }

func (p *Passthrough) FileForInput(loc compiler.Location, className string, kind compiler.Kind) (compiler.FileObject, error) {
	return p.inner.FileForInput(loc, className, kind)
}

func (p *Passthrough) FileForOutput(loc compiler.Location, className string, kind compiler.Kind, sibling compiler.FileObject) (compiler.FileObject, error) {
	return p.inner.FileForOutput(loc, className, kind, sibling)
}

func (p *Passthrough) ResourceForInput(loc compiler.Location, pkg, relativeName string) (compiler.FileObject, error) {
	return p.inner.ResourceForInput(loc, pkg, relativeName)
}

func (p *Passthrough) ResourceForOutput(loc compiler.Location, pkg, relativeName string, sibling compiler.FileObject) (compiler.FileObject, error) {
	return p.inner.ResourceForOutput(loc, pkg, relativeName, sibling)
}

func (p *Passthrough) ClassLoader(loc compiler.Location) (compiler.ClassLoader, error) {
	return p.inner.ClassLoader(loc)
}

func (p *Passthrough) Flush() error { return p.inner.Flush() }

func (p *Passthrough) LocationForModule(loc compiler.Location, module string) (compiler.Location, error) {
	return p.inner.LocationForModule(loc, module)
}

func (p *Passthrough) InferModuleName(loc compiler.Location) (string, error) {
	return p.inner.InferModuleName(loc)
}

func (p *Passthrough) ListLocationsForModules(loc compiler.Location) ([]compiler.Location, error) {
	return p.inner.ListLocationsForModules(loc)
}

func (p *Passthrough) Contains(loc compiler.Location, fo compiler.FileObject) (bool, error) {
	return p.inner.Contains(loc, fo)
}

func (p *Passthrough) SetLocation(loc compiler.Location, paths []string) error {
	_, err := p.Invoke("SetLocation", loc, paths)
	return err
}

func (p *Passthrough) Location(loc compiler.Location) []string {
	res, err := p.Invoke("Location", loc)
	if err != nil || len(res) == 0 {
		return nil
	}
	roots, _ := res[0].([]string)
	return roots
}

func (p *Passthrough) FileObjects(paths ...string) ([]compiler.FileObject, error) {
	args := make([]any, len(paths))
	for i, s := range paths {
		args[i] = s
	}
	res, err := p.Invoke("FileObjects", args...)
	if err != nil {
		return nil, err
	}
	fos, _ := res[0].([]compiler.FileObject)
	return fos, nil
}

// PathsForLocation is served by whichever manager declares it.
func (p *Passthrough) PathsForLocation(loc compiler.Location) ([]string, error) {
	res, err := p.Invoke("PathsForLocation", loc)
	if err != nil {
		return nil, err
	}
	roots, _ := res[0].([]string)
	return roots, nil
}

const maxScanDepth = 8

// InstallPassthrough puts a Passthrough in front of every file manager in
// ctx that is, or wraps, vfm. When no registry entry qualifies, the
// fields of the installed file manager are scanned for nested managers
// wrapping vfm and those fields are replaced instead. It returns the
// number of replacements. Every failure is logged and swallowed.
func InstallPassthrough(ctx *compiler.Context, vfm compiler.FileManager, base compiler.StandardFileManager, logger *slog.Logger) (installed int) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("file manager passthrough not installed", "error", fmt.Sprint(r))
		}
	}()
	if ctx == nil || vfm == nil || base == nil {
		return 0
	}

	var keys []compiler.Key
	present := false
	ctx.Range(func(key compiler.Key, v any) bool {
		fm, ok := v.(compiler.FileManager)
		if !ok || !wraps(fm, vfm) {
			return true
		}
		if isPassthrough(fm) {
			present = true
		} else {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		ctx.Put(key, NewPassthrough(ctx.Get(key).(compiler.FileManager), base))
		installed++
	}
	if installed > 0 {
		logger.Debug("file manager passthrough installed", "entries", installed)
		return installed
	}
	if present {
		return 0
	}

	root := ctx.Get(compiler.FileManagerKey)
	if root == nil {
		return 0
	}
	installed = scanFields(reflect.ValueOf(root), vfm, base, 0, make(map[uintptr]bool))
	if installed > 0 {
		logger.Debug("file manager passthrough installed in nested fields", "fields", installed)
	}
	return installed
}

var (
	fileManagerType = reflect.TypeOf((*compiler.FileManager)(nil)).Elem()
	passthroughType = reflect.TypeOf((*Passthrough)(nil))
)

// scanFields walks the struct behind v and replaces file manager fields
// that wrap vfm.
func scanFields(v reflect.Value, vfm compiler.FileManager, base compiler.StandardFileManager, depth int, seen map[uintptr]bool) int {
	if depth > maxScanDepth {
		return 0
	}
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if v.Type() == passthroughType {
		return 0
	}
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return 0
	}
	if seen[v.Pointer()] {
		return 0
	}
	seen[v.Pointer()] = true

	count := 0
	s := v.Elem()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			f = reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
		}
		if !f.Type().Implements(fileManagerType) {
			continue
		}
		if k := f.Kind(); (k != reflect.Interface && k != reflect.Pointer) || f.IsNil() {
			continue
		}
		fm, ok := f.Interface().(compiler.FileManager)
		if !ok || isPassthrough(fm) {
			continue
		}
		pt := reflect.ValueOf(NewPassthrough(fm, base))
		if wraps(fm, vfm) && pt.Type().AssignableTo(f.Type()) {
			f.Set(pt)
			count++
			continue
		}
		count += scanFields(f, vfm, base, depth+1, seen)
	}
	return count
}

func isPassthrough(fm compiler.FileManager) bool {
	_, ok := fm.(*Passthrough)
	return ok
}

// wraps reports whether fm is vfm or forwards to it.
func wraps(fm, vfm compiler.FileManager) bool {
	for i := 0; fm != nil && i < maxUnwrapDepth; i++ {
		if sameObject(fm, vfm) {
			return true
		}
		fwd, ok := fm.(compiler.Forwarding)
		if !ok {
			return false
		}
		fm = fwd.Delegate()
	}
	return false
}

func sameObject(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return va.Comparable() && va.Equal(vb)
}
