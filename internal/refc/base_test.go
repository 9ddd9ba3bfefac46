package refc

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

func writeJar(t *testing.T, fsys afero.Fs, p string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fsys, p, buf.Bytes(), 0o644))
}

func names(fos []compiler.FileObject) []string {
	out := make([]string, 0, len(fos))
	for _, fo := range fos {
		out = append(out, fo.Name())
	}
	sort.Strings(out)
	return out
}

func TestBaseManager_ListDirectoriesAndArchives(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/classes/p/A.class", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/classes/p/q/B.class", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/classes/p/notes.txt", []byte("x"), 0o644))
	writeJar(t, fsys, "/lib/list-test.jar", map[string]string{
		"p/C.class":   "x",
		"p/q/D.class": "x",
	})
	b := NewBaseManager(fsys, "UTF-8")
	defer b.Close()
	require.NoError(t, b.SetLocation(compiler.ClassPath, []string{"/classes", "/lib/list-test.jar", "/missing.jar"}))

	fos, err := b.List(compiler.ClassPath, "p", compiler.Kinds(compiler.KindClass), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/classes/p/A.class", "/lib/list-test.jar(p/C.class)"}, names(fos))

	fos, err = b.List(compiler.ClassPath, "p", compiler.Kinds(compiler.KindClass), true)
	require.NoError(t, err)
	assert.Len(t, fos, 4)

	name, ok := b.InferBinaryName(compiler.ClassPath, fos[0])
	require.True(t, ok)
	assert.Contains(t, []string{"p.A", "p.q.B", "p.C", "p.q.D"}, name)
}

func TestBaseManager_FindInput(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/p/A.java", []byte("package p; class A {}"), 0o644))
	writeJar(t, fsys, "/lib/find-test.jar", map[string]string{"META-INF/x.properties": "k=v"})
	b := NewBaseManager(fsys, "UTF-8")
	require.NoError(t, b.SetLocation(compiler.SourcePath, []string{"/src"}))
	require.NoError(t, b.SetLocation(compiler.ClassPath, []string{"/lib/find-test.jar"}))

	fo, err := b.FileForInput(compiler.SourcePath, "p.A", compiler.KindSource)
	require.NoError(t, err)
	text, err := fo.CharContent(false)
	require.NoError(t, err)
	assert.Equal(t, "package p; class A {}", text)

	fo, err = b.ResourceForInput(compiler.ClassPath, "META-INF", "x.properties")
	require.NoError(t, err)
	text, err = fo.CharContent(false)
	require.NoError(t, err)
	assert.Equal(t, "k=v", text)

	_, err = b.FileForInput(compiler.SourcePath, "p.Missing", compiler.KindSource)
	assert.True(t, compiler.IsNotFound(err))
}

func TestBaseManager_Outputs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	b := NewBaseManager(fsys, "UTF-8")

	_, err := b.FileForOutput(compiler.ClassOutput, "p.A", compiler.KindClass, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalState)
	_, err = b.FileForOutput(compiler.ClassPath, "p.A", compiler.KindClass, nil)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)

	require.NoError(t, b.SetLocation(compiler.ClassOutput, []string{"/out"}))
	fo, err := b.FileForOutput(compiler.SourceOutput, "p.Gen", compiler.KindSource, nil)
	require.NoError(t, err)
	assert.Equal(t, "/out/p/Gen.java", fo.Name())

	w, err := fo.OpenOutput()
	require.NoError(t, err)
	_, err = io.WriteString(w, "class Gen {}")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	data, err := afero.ReadFile(fsys, "/out/p/Gen.java")
	require.NoError(t, err)
	assert.Equal(t, "class Gen {}", string(data))

	fo, err = b.ResourceForOutput(compiler.ClassOutput, "p", "x.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "/out/p/x.txt", fo.Name())
}

func TestBaseManager_Modules(t *testing.T) {
	b := NewBaseManager(afero.NewMemMapFs(), "UTF-8")

	loc, err := b.LocationForModule(compiler.ModulePath, "m")
	require.NoError(t, err)
	name, err := b.InferModuleName(loc)
	require.NoError(t, err)
	assert.Equal(t, "m", name)

	_, err = b.LocationForModule(compiler.ClassPath, "m")
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)
	_, err = b.InferModuleName(compiler.ClassPath)
	assert.ErrorIs(t, err, compiler.ErrIllegalArgument)

	_, err = b.ClassLoader(compiler.ClassPath)
	assert.ErrorIs(t, err, compiler.ErrUnsupported)
}

func TestGlobalCaches_Reset(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeJar(t, fsys, "/lib/cache-test.jar", map[string]string{"p/A.class": "x"})
	b := NewBaseManager(fsys, "UTF-8")
	defer b.Close()
	require.NoError(t, b.SetLocation(compiler.ClassPath, []string{"/lib/cache-test.jar"}))
	_, err := b.List(compiler.ClassPath, "p", compiler.Kinds(compiler.KindClass), false)
	require.NoError(t, err)
	outline(fileFor("/src/Interned.java"), "class Interned {}")

	caches, err := New(fsys, nil).GlobalCaches()
	require.NoError(t, err)
	gc := caches.(GlobalCaches)
	assert.Positive(t, gc.InternedNames())
	assert.Positive(t, gc.IndexedArchives())

	require.NoError(t, caches.ResetInternTable())
	require.NoError(t, caches.ResetArchiveIndex())
	assert.Zero(t, gc.InternedNames())
	assert.Zero(t, gc.IndexedArchives())
}
