package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/plugins"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(defaultRegistry)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeSource(t *testing.T, dir, rel, text string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
	return p
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "kiln "+version+"\n", out)
}

func TestTools(t *testing.T) {
	out, _, err := run(t, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "refc (primary)")
}

func TestCompile_WritesClassesAndReport(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "src/p/A.java", "package p;\nclass A {}\n")
	outDir := filepath.Join(dir, "out")

	out, _, err := run(t, "compile", "--no-color", "--json",
		"--out", outDir+"="+filepath.Join(dir, "src"), "--", src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "p", "A.class"))
	assert.Contains(t, out, `"outcome": "succeeded"`)
}

func TestCompile_StateSkipsUnchangedSources(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "src/p/A.java", "package p;\nclass A {}\n")
	outDir := filepath.Join(dir, "out")
	state := filepath.Join(dir, "build", "state.json")
	args := []string{"compile", "--no-color", "--state", state,
		"--out", outDir + "=" + filepath.Join(dir, "src"), "--", src}

	_, stderr, err := run(t, args...)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "up to date")
	assert.FileExists(t, state)

	_, stderr, err = run(t, args...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "up to date")

	moved := []string{"compile", "--no-color", "--state", state,
		"--out", filepath.Join(dir, "classes") + "=" + filepath.Join(dir, "src"), "--", src}
	_, stderr, err = run(t, moved...)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "up to date")
	assert.FileExists(t, filepath.Join(dir, "classes", "p", "A.class"))

	_, stderr, err = run(t, moved...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "up to date")

	writeSource(t, dir, "src/p/A.java", "package p;\nclass A { int x; }\n")
	_, stderr, err = run(t, args...)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "up to date")
	assert.FileExists(t, filepath.Join(outDir, "p", "A.class"))
}

func TestCompile_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "src/A.java", "class A {\n")

	_, stderr, err := run(t, "compile", "--no-color", "--log-level", "error",
		"--out", filepath.Join(dir, "out")+"="+filepath.Join(dir, "src"), "--", src)
	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, stderr, "A.java:")
	assert.Contains(t, stderr, "error:")
	assert.Contains(t, stderr, "1 error")
}

func TestCompile_RequiresSources(t *testing.T) {
	_, _, err := run(t, "compile", "--", "-verbose")
	assert.EqualError(t, err, "no source files")
}

func TestParseOutputs(t *testing.T) {
	got, err := parseOutputs([]string{"/out=/src, /gen", "/other"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"/out":   {"/src", "/gen"},
		"/other": nil,
	}, got)

	_, err = parseOutputs([]string{"=/src"})
	assert.Error(t, err)

	got, err = parseOutputs(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsole(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := &console{w: &buf, locale: "en"}

	d := compiler.NewDiagnostic(compiler.DiagnosticError, "cannot find symbol")
	c.Report(d)
	c.Report(compiler.NewDiagnostic(compiler.DiagnosticWarning, "deprecated"))
	c.Report(compiler.NewDiagnostic(compiler.DiagnosticWarning, "unchecked"))
	c.OutputLine("[parsing started]")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"error: cannot find symbol",
		"warning: deprecated",
		"warning: unchecked",
		"[parsing started]",
	}, lines)
	assert.Equal(t, "1 error\n2 warnings", c.summary())
}

func TestToolsListsExtensions(t *testing.T) {
	registry := func() *plugins.Registry {
		r := defaultRegistry()
		r.RegisterExtension(plugins.ExtensionFunc{ExtName: "stats", Fn: func(compiler.Tool, compiler.Task, []string, plugins.ExtensionSink) error { return nil }})
		r.RegisterProcessor("p.GenProcessor", func() compiler.Processor { return nil })
		return r
	}
	var stdout bytes.Buffer
	cmd := newRootCmd(registry)
	cmd.SetArgs([]string{"tools"})
	cmd.SetOut(&stdout)
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Extensions:\n  stats")
	assert.Contains(t, stdout.String(), "Processors:\n  p.GenProcessor")
}
