package compiler

// ElementKind classifies a program element.
type ElementKind int

const (
	ElementOther ElementKind = iota
	ElementPackage
	ElementClass
	ElementInterface
	ElementEnum
	ElementRecord
	ElementAnnotationType
	ElementMethod
	ElementField
	ElementModule
)

// IsType reports whether the kind denotes a declared type.
func (k ElementKind) IsType() bool {
	switch k {
	case ElementClass, ElementInterface, ElementEnum, ElementRecord, ElementAnnotationType:
		return true
	}
	return false
}

// Element is a program element seen by annotation processors.
type Element interface {
	Kind() ElementKind
	SimpleName() string
	// EnclosingElement is nil for top-level packages and modules.
	EnclosingElement() Element
}

// QualifiedNameable is implemented by elements that have a fully
// qualified name (types, packages, modules).
type QualifiedNameable interface {
	Element
	QualifiedName() string
}

// Filer creates new files on behalf of processors.
type Filer interface {
	CreateSourceFile(name string, originating ...Element) (FileObject, error)
	CreateClassFile(name string, originating ...Element) (FileObject, error)
	CreateResource(loc Location, pkg, relativeName string, originating ...Element) (FileObject, error)
	GetResource(loc Location, pkg, relativeName string) (FileObject, error)
}

// Messager reports processor diagnostics.
type Messager interface {
	PrintMessage(kind DiagnosticKind, msg string, e Element)
}

// ProcessingEnvironment is handed to every processor's Init.
type ProcessingEnvironment interface {
	Options() map[string]string
	Filer() Filer
	Messager() Messager
	SourceVersion() string
	Locale() string
}

// RoundEnvironment describes one processing round.
type RoundEnvironment interface {
	ProcessingOver() bool
	ErrorRaised() bool
	RootElements() []Element
	ElementsAnnotatedWith(annotation string) []Element
}

// Processor is an annotation processor.
type Processor interface {
	Init(env ProcessingEnvironment) error
	Process(annotations []string, round RoundEnvironment) (bool, error)
	SupportedAnnotationTypes() []string
	SupportedOptions() []string
}

// Named is implemented by processors that declare their class name. The
// compiler embeds that name in diagnostics it reports about the processor.
type Named interface {
	ClassName() string
}

// ProcessorName returns the class name under which the compiler knows p.
func ProcessorName(p Processor) string {
	if n, ok := p.(Named); ok {
		return n.ClassName()
	}
	return typeName(p)
}

// QualifiedNameOf walks up the enclosing chain of e and returns the first
// non-empty qualified name.
func QualifiedNameOf(e Element) string {
	for cur := e; cur != nil; cur = cur.EnclosingElement() {
		if q, ok := cur.(QualifiedNameable); ok {
			if name := q.QualifiedName(); name != "" {
				return name
			}
		}
	}
	return ""
}
