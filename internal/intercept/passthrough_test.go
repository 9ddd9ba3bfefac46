package intercept

import (
	"reflect"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
)

func newVirtual(t *testing.T, base compiler.StandardFileManager) *filemanager.Manager {
	t.Helper()
	vfm := filemanager.New(base, filemanager.Options{Fs: afero.NewMemMapFs()})
	t.Cleanup(func() { _ = vfm.Close() })
	return vfm
}

func TestPassthrough_ForwardsUndeclaredMethodsToBase(t *testing.T) {
	base := newBaseManager()
	vfm := newVirtual(t, base)
	pt := NewPassthrough(vfm, base)

	require.NoError(t, pt.SetLocation(compiler.ClassPath, []string{"/lib"}))
	assert.Equal(t, []string{"/lib"}, pt.Location(compiler.ClassPath))

	roots, err := pt.PathsForLocation(compiler.ClassPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "/lib"}, roots)

	_, err = pt.Invoke("Frobnicate")
	assert.ErrorIs(t, err, compiler.ErrUnsupported)
	assert.Same(t, vfm, pt.Delegate())
}

// compilerState holds the file manager in an unexported field the way a
// compiler's internal state would.
type compilerState struct {
	label string
	fm    compiler.FileManager
}

func TestInstallPassthrough_ReplacesRegistryEntry(t *testing.T) {
	base := newBaseManager()
	vfm := newVirtual(t, base)
	ctx := compiler.NewContext()
	ctx.Put(compiler.FileManagerKey, vfm)
	ctx.Put("unrelated", base)

	assert.Equal(t, 1, InstallPassthrough(ctx, vfm, base, nil))
	pt, ok := ctx.Get(compiler.FileManagerKey).(*Passthrough)
	require.True(t, ok)
	assert.Same(t, vfm, pt.Delegate())
	assert.Same(t, base, ctx.Get("unrelated"))

	assert.Zero(t, InstallPassthrough(ctx, vfm, base, nil))
}

func TestInstallPassthrough_RepeatedInstallKeepsOneLayer(t *testing.T) {
	base := newBaseManager()
	vfm := newVirtual(t, base)
	ctx := compiler.NewContext()
	ctx.Put(compiler.FileManagerKey, vfm)

	for i := 0; i < 3; i++ {
		InstallPassthrough(ctx, vfm, base, nil)
	}
	pt, ok := ctx.Get(compiler.FileManagerKey).(*Passthrough)
	require.True(t, ok)
	assert.Same(t, vfm, pt.Delegate())
	_, nested := pt.Delegate().(*Passthrough)
	assert.False(t, nested)
}

func TestScanFields_SkipsPassthrough(t *testing.T) {
	base := newBaseManager()
	vfm := newVirtual(t, base)
	pt := NewPassthrough(vfm, base)

	assert.Zero(t, scanFields(reflect.ValueOf(pt), vfm, base, 0, make(map[uintptr]bool)))
	assert.Same(t, vfm, pt.Delegate())
}

func TestInstallPassthrough_ReplacesNestedField(t *testing.T) {
	base := newBaseManager()
	vfm := newVirtual(t, base)
	state := &compilerState{label: "javac", fm: vfm}
	ctx := compiler.NewContext()
	ctx.Put(compiler.FileManagerKey, state)

	assert.Equal(t, 1, InstallPassthrough(ctx, vfm, base, nil))
	pt, ok := state.fm.(*Passthrough)
	require.True(t, ok)
	assert.Same(t, vfm, pt.Delegate())
	assert.Equal(t, "javac", state.label)

	assert.Zero(t, InstallPassthrough(ctx, vfm, base, nil))
}

func TestInstallPassthrough_NothingToReplace(t *testing.T) {
	base := newBaseManager()
	vfm := newVirtual(t, base)

	assert.Zero(t, InstallPassthrough(nil, vfm, base, nil))
	assert.Zero(t, InstallPassthrough(compiler.NewContext(), vfm, base, nil))

	ctx := compiler.NewContext()
	ctx.Put(compiler.FileManagerKey, &compilerState{fm: newBaseManager()})
	assert.Zero(t, InstallPassthrough(ctx, vfm, base, nil))
}
