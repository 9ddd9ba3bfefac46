package refc

import (
	"path"
	"regexp"
	"strings"

	"github.com/efebarandurmaz/kiln/internal/compiler"
)

var (
	packageRe    = regexp.MustCompile(`\bpackage\s+([\w.]+)\s*;`)
	importRe     = regexp.MustCompile(`\bimport\s+(static\s+)?([\w.]+(?:\.\*)?)\s*;`)
	typeRe       = regexp.MustCompile(`((?:@[\w.]+(?:\s*\([^)]*\))?\s+)*)(?:(?:public|protected|private|abstract|final|static|sealed|non-sealed|strictfp)\s+)*(class|interface|enum|record|@interface)\s+(\w+)`)
	annotationRe = regexp.MustCompile(`@([\w.]+)`)
)

// implicitAnnotations resolve without an import.
var implicitAnnotations = map[string]bool{
	"Override":             true,
	"Deprecated":           true,
	"SuppressWarnings":     true,
	"FunctionalInterface":  true,
	"SafeVarargs":          true,
	"java.lang.Override":   true,
	"java.lang.Deprecated": true,
}

// parsedUnit is the outline of one compilation unit.
type parsedUnit struct {
	file    compiler.FileObject
	text    string
	pkg     *packageElement
	imports []importSpec
	types   []*typeElement
}

type importSpec struct {
	name   string
	static bool
	offset int
}

// syntaxError is one problem found while outlining a unit.
type syntaxError struct {
	code   string
	text   string
	offset int
}

// outline parses the package, imports and top-level type declarations of
// text. Comments and literals are blanked first so that offsets stay
// valid.
func outline(file compiler.FileObject, text string) (*parsedUnit, []syntaxError) {
	clean := blank(text)
	u := &parsedUnit{file: file, text: text}
	var errs []syntaxError

	depth := make([]int, len(clean)+1)
	d := 0
	for i := 0; i < len(clean); i++ {
		depth[i] = d
		switch clean[i] {
		case '{':
			d++
		case '}':
			d--
			if d < 0 {
				errs = append(errs, syntaxError{code: "compiler.err.expected4", text: "class, interface, enum, or record expected", offset: i})
				d = 0
			}
		}
	}
	depth[len(clean)] = d
	if d > 0 {
		errs = append(errs, syntaxError{code: "compiler.err.premature.eof", text: "reached end of file while parsing", offset: max(len(clean)-1, 0)})
	}

	pkgName := ""
	if m := packageRe.FindStringSubmatchIndex(clean); m != nil && depth[m[0]] == 0 {
		pkgName = clean[m[2]:m[3]]
	}
	u.pkg = &packageElement{name: internTable.intern(pkgName)}

	for _, m := range importRe.FindAllStringSubmatchIndex(clean, -1) {
		if depth[m[0]] != 0 {
			continue
		}
		u.imports = append(u.imports, importSpec{name: clean[m[4]:m[5]], static: m[2] >= 0, offset: m[0]})
	}

	for _, m := range typeRe.FindAllStringSubmatchIndex(clean, -1) {
		kwStart := m[4]
		if depth[kwStart] != 0 || !wordStart(clean, m[0]) {
			continue
		}
		name := clean[m[6]:m[7]]
		qualified := name
		if pkgName != "" {
			qualified = pkgName + "." + name
		}
		t := &typeElement{
			kind:      elementKind(clean[m[4]:m[5]]),
			name:      name,
			qualified: internTable.intern(qualified),
			pkg:       u.pkg,
			unit:      u,
			offset:    m[6],
		}
		if m[2] >= 0 {
			for _, a := range annotationRe.FindAllStringSubmatch(clean[m[2]:m[3]], -1) {
				t.annotations = append(t.annotations, u.resolve(a[1]))
			}
		}
		u.types = append(u.types, t)
	}

	if len(u.types) == 0 && !declarationOnly(file) {
		errs = append(errs, syntaxError{code: "refc.err.no.type", text: "compilation unit declares no type", offset: 0})
	}
	return u, errs
}

// resolve turns an annotation name as written into a qualified name.
func (u *parsedUnit) resolve(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	for _, imp := range u.imports {
		if !imp.static && strings.HasSuffix(imp.name, "."+name) {
			return imp.name
		}
	}
	if implicitAnnotations[name] {
		return "java.lang." + name
	}
	if u.pkg.name == "" {
		return name
	}
	return u.pkg.name + "." + name
}

// position converts an offset into 1-based line and column numbers.
func (u *parsedUnit) position(offset int) (line, column int64) {
	line, column = 1, 1
	for i := 0; i < offset && i < len(u.text); i++ {
		if u.text[i] == '\n' {
			line++
			column = 1
			continue
		}
		column++
	}
	return line, column
}

func declarationOnly(file compiler.FileObject) bool {
	switch path.Base(file.Name()) {
	case "package-info.java", "module-info.java":
		return true
	}
	return false
}

func wordStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	c := s[i-1]
	return !(c == '_' || c == '$' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}

func elementKind(keyword string) compiler.ElementKind {
	switch keyword {
	case "interface":
		return compiler.ElementInterface
	case "enum":
		return compiler.ElementEnum
	case "record":
		return compiler.ElementRecord
	case "@interface":
		return compiler.ElementAnnotationType
	default:
		return compiler.ElementClass
	}
}

// blank replaces comments and string, text block and char literals with
// spaces, keeping newlines and length.
func blank(src string) string {
	b := []byte(src)
	n := len(b)
	fill := func(from, to int) {
		for k := from; k < to && k < n; k++ {
			if b[k] != '\n' {
				b[k] = ' '
			}
		}
	}
	for i := 0; i < n; {
		switch {
		case b[i] == '/' && i+1 < n && b[i+1] == '/':
			j := i
			for j < n && b[j] != '\n' {
				j++
			}
			fill(i, j)
			i = j
		case b[i] == '/' && i+1 < n && b[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			j := n
			if end >= 0 {
				j = i + 2 + end + 2
			}
			fill(i, j)
			i = j
		case b[i] == '"' && strings.HasPrefix(src[i:], `"""`):
			end := strings.Index(src[i+3:], `"""`)
			j := n
			if end >= 0 {
				j = i + 3 + end + 3
			}
			fill(i, j)
			i = j
		case b[i] == '"' || b[i] == '\'':
			quote := b[i]
			j := i + 1
			for j < n && b[j] != quote && b[j] != '\n' {
				if b[j] == '\\' {
					j++
				}
				j++
			}
			if j < n && b[j] == quote {
				j++
			}
			fill(i, j)
			i = j
		default:
			i++
		}
	}
	return string(b)
}
