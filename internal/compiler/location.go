package compiler

import "strings"

// Location is a named logical bucket of path roots.
//
// Location values are comparable and are used as map keys. A per-module
// variant carries the module name in Module and the parent's name in Name.
type Location struct {
	Name           string
	Output         bool
	ModuleOriented bool
	Module         string
}

// Standard locations understood by every tool.
var (
	ClassOutput                   = Location{Name: "CLASS_OUTPUT", Output: true}
	SourceOutput                  = Location{Name: "SOURCE_OUTPUT", Output: true}
	NativeHeaderOutput            = Location{Name: "NATIVE_HEADER_OUTPUT", Output: true}
	ClassPath                     = Location{Name: "CLASS_PATH"}
	SourcePath                    = Location{Name: "SOURCE_PATH"}
	PlatformClassPath             = Location{Name: "PLATFORM_CLASS_PATH"}
	AnnotationProcessorPath       = Location{Name: "ANNOTATION_PROCESSOR_PATH"}
	ModulePath                    = Location{Name: "MODULE_PATH", ModuleOriented: true}
	UpgradeModulePath             = Location{Name: "UPGRADE_MODULE_PATH", ModuleOriented: true}
	SystemModules                 = Location{Name: "SYSTEM_MODULES", ModuleOriented: true}
	AnnotationProcessorModulePath = Location{Name: "ANNOTATION_PROCESSOR_MODULE_PATH", ModuleOriented: true}
	ModuleSourcePath              = Location{Name: "MODULE_SOURCE_PATH", ModuleOriented: true}
	PatchModulePath               = Location{Name: "PATCH_MODULE_PATH", ModuleOriented: true}
)

// ModuleLocation returns the per-module variant of a module-oriented or
// output location.
func ModuleLocation(parent Location, module string) Location {
	return Location{Name: parent.Name, Output: parent.Output, Module: module}
}

// IsModule reports whether the location is a per-module variant.
func (l Location) IsModule() bool {
	return l.Module != ""
}

// Parent returns the location a per-module variant was derived from.
func (l Location) Parent() Location {
	if !l.IsModule() {
		return l
	}
	for _, std := range standardLocations {
		if std.Name == l.Name {
			return std
		}
	}
	return Location{Name: l.Name, Output: l.Output}
}

// FileSystemBacked reports whether the location's roots are plain
// directories or archives eligible for listing by the driver. System
// modules are served from the runtime image and are not.
func (l Location) FileSystemBacked() bool {
	if l.Name == SystemModules.Name {
		return false
	}
	return !l.ModuleOriented || l.IsModule()
}

func (l Location) String() string {
	if l.IsModule() {
		return l.Name + "[" + l.Module + "]"
	}
	return l.Name
}

var standardLocations = []Location{
	ClassOutput, SourceOutput, NativeHeaderOutput, ClassPath, SourcePath,
	PlatformClassPath, AnnotationProcessorPath, ModulePath, UpgradeModulePath,
	SystemModules, AnnotationProcessorModulePath, ModuleSourcePath, PatchModulePath,
}

// LocationByName resolves a standard location from its name, accepting the
// per-module "NAME[module]" form as well.
func LocationByName(name string) (Location, bool) {
	module := ""
	if i := strings.IndexByte(name, '['); i > 0 && strings.HasSuffix(name, "]") {
		module = name[i+1 : len(name)-1]
		name = name[:i]
	}
	for _, std := range standardLocations {
		if std.Name == name {
			if module != "" {
				return ModuleLocation(std, module), true
			}
			return std, true
		}
	}
	return Location{}, false
}
