package refc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

func fileFor(p string) compiler.FileObject {
	return fileobject.NewProvidedBytes(p, nil, "UTF-8", compiler.SourcePath)
}

func TestOutline(t *testing.T) {
	src := `package com.acme;

import com.acme.ann.Entity;
import static java.util.Objects.requireNonNull;

/* class Commented {} */
@Entity
@Deprecated
public final class Order {
    String s = "class InString {";
    class Inner {}
}

@Local enum Status { OPEN }
`
	u, errs := outline(fileFor("/src/com/acme/Order.java"), src)
	require.Empty(t, errs)
	assert.Equal(t, "com.acme", u.pkg.QualifiedName())
	assert.Equal(t, "acme", u.pkg.SimpleName())

	require.Len(t, u.imports, 2)
	assert.Equal(t, "com.acme.ann.Entity", u.imports[0].name)
	assert.True(t, u.imports[1].static)

	require.Len(t, u.types, 2)
	order := u.types[0]
	assert.Equal(t, "com.acme.Order", order.QualifiedName())
	assert.Equal(t, compiler.ElementClass, order.Kind())
	assert.Equal(t, []string{"com.acme.ann.Entity", "java.lang.Deprecated"}, order.Annotations())
	assert.Same(t, u.pkg, order.EnclosingElement())

	status := u.types[1]
	assert.Equal(t, compiler.ElementEnum, status.Kind())
	assert.Equal(t, []string{"com.acme.Local"}, status.Annotations())
	line, col := u.position(status.offset)
	assert.Equal(t, int64(14), line)
	assert.Equal(t, int64(13), col)
}

func TestOutline_SyntaxErrors(t *testing.T) {
	_, errs := outline(fileFor("/src/A.java"), "class A {}\n}\n")
	require.Len(t, errs, 1)
	assert.Equal(t, "compiler.err.expected4", errs[0].code)
	assert.Equal(t, 11, errs[0].offset)

	_, errs = outline(fileFor("/src/Empty.java"), "// nothing here\n")
	require.Len(t, errs, 1)
	assert.Equal(t, "refc.err.no.type", errs[0].code)

	_, errs = outline(fileFor("/src/p/package-info.java"), "package p;\n")
	assert.Empty(t, errs)
}

func TestBlank(t *testing.T) {
	src := "a // c\nb /* x\ny */ \"s{\" '}' \"\"\"\n{\n\"\"\" c"
	out := blank(src)
	assert.Len(t, out, len(src))
	sp := strings.Repeat
	assert.Equal(t, "a"+sp(" ", 5)+"\nb"+sp(" ", 5)+"\n"+sp(" ", 17)+"\n \n"+sp(" ", 4)+"c", out)
}

func TestRoundEnvironment(t *testing.T) {
	u, _ := outline(fileFor("/src/p/A.java"), "package p;\n@X class A {}\n@X @Y class B {}\nclass C {}\n")
	re := &roundEnvironment{types: u.types}

	assert.Equal(t, []string{"p.X", "p.Y"}, re.annotationsPresent())
	assert.Len(t, re.RootElements(), 3)
	annotated := re.ElementsAnnotatedWith("p.X")
	require.Len(t, annotated, 2)
	assert.Equal(t, "A", annotated[0].SimpleName())
	assert.False(t, re.ProcessingOver())
}

func TestMatchSupported(t *testing.T) {
	matched, all := matchSupported([]string{"p.*"}, []string{"p.X", "q.Y"})
	assert.Equal(t, []string{"p.X"}, matched)
	assert.False(t, all)

	matched, all = matchSupported([]string{"*"}, nil)
	assert.Empty(t, matched)
	assert.True(t, all)
}
