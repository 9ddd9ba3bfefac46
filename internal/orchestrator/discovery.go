package orchestrator

import (
	"fmt"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/plugins"
)

// processorLocation is where processors are loaded from: the processor
// module path when the compilation is modular, else the processor path.
func processorLocation(vfm *filemanager.Manager) compiler.Location {
	if len(vfm.Location(compiler.AnnotationProcessorModulePath)) > 0 {
		return compiler.AnnotationProcessorModulePath
	}
	return compiler.AnnotationProcessorPath
}

// discoverProcessors instantiates the named processors, or when names is
// empty every processor listed in a service descriptor on the processor
// path. It returns the loader the processors came from.
func discoverProcessors(vfm *filemanager.Manager, names []string) ([]compiler.Processor, compiler.ClassLoader, error) {
	loc := processorLocation(vfm)
	loader, err := vfm.ClassLoader(loc)
	if err != nil {
		return nil, nil, err
	}
	if loader == nil {
		if len(names) > 0 {
			return nil, nil, fmt.Errorf("no class loader for %s", loc)
		}
		return nil, nil, nil
	}
	if len(names) == 0 {
		if names, err = plugins.ServiceProcessors(loader); err != nil {
			return nil, nil, err
		}
	}
	out := make([]compiler.Processor, 0, len(names))
	for _, name := range names {
		p, err := loader.LoadProcessor(name)
		if err != nil {
			if compiler.IsNotFound(err) {
				return nil, nil, fmt.Errorf("annotation processor '%s' not found", name)
			}
			return nil, nil, fmt.Errorf("annotation processor %s could not be constructed: %w", name, err)
		}
		out = append(out, p)
	}
	return out, loader, nil
}
