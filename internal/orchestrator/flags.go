package orchestrator

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/efebarandurmaz/kiln/internal/compiler"
	"github.com/efebarandurmaz/kiln/internal/filemanager"
	"github.com/efebarandurmaz/kiln/internal/fileobject"
)

// earlyFlags must reach the file manager before any location is set.
var earlyFlags = map[string]bool{
	"-encoding":        true,
	"-extdirs":         true,
	"-processorpath":   true,
	"--processor-path": true,
	"-d":               true,
	"-s":               true,
}

type option struct {
	name  string
	value string
	arity int
}

func (o option) args() []string {
	if o.arity == 0 {
		return []string{o.name}
	}
	return []string{o.name, o.value}
}

// flagSet is a request's options split into the groups the driver applies
// separately.
type flagSet struct {
	early      []option
	late       []option
	processors []string
	procNone   bool
}

// splitOptions partitions options. The arity of an option comes from the
// driver, then the file manager, then the tool; options nobody knows take
// no argument and are left for the tool to reject.
func splitOptions(options []string, fm compiler.FileManager, tool compiler.Tool) (*flagSet, error) {
	set := &flagSet{}
	for i := 0; i < len(options); i++ {
		o := option{name: options[i]}
		switch {
		case earlyFlags[o.name] || o.name == "-processor":
			o.arity = 1
		case fm.IsSupportedOption(o.name) >= 0:
			o.arity = fm.IsSupportedOption(o.name)
		default:
			o.arity = max(tool.IsSupportedOption(o.name), 0)
		}
		if o.arity > 0 {
			if i+1 >= len(options) {
				return nil, compiler.IllegalArgument("%s requires an argument", o.name)
			}
			i++
			o.value = options[i]
		}
		switch {
		case o.name == "-processor":
			for _, name := range strings.Split(o.value, ",") {
				if name = strings.TrimSpace(name); name != "" {
					set.processors = append(set.processors, name)
				}
			}
		case earlyFlags[o.name]:
			set.early = append(set.early, o)
		default:
			if o.name == "-proc:none" {
				set.procNone = true
			}
			set.late = append(set.late, o)
		}
	}
	return set, nil
}

// applyEarly hands the early flags to the manager and returns the archives
// found in -extdirs directories.
func applyEarly(vfm *filemanager.Manager, fsys afero.Fs, early []option) ([]string, error) {
	var extJars []string
	for _, o := range early {
		if o.name == "-extdirs" {
			jars, err := extensionArchives(fsys, o.value)
			if err != nil {
				return nil, err
			}
			extJars = append(extJars, jars...)
			continue
		}
		if _, err := vfm.HandleOption(o.name, o.value); err != nil {
			return nil, fmt.Errorf("%s %s: %w", o.name, o.value, err)
		}
	}
	return extJars, nil
}

// applyLate gives the manager the options it supports and returns the rest
// as task options.
func applyLate(vfm *filemanager.Manager, late []option) ([]string, error) {
	var taskOptions []string
	for _, o := range late {
		if vfm.IsSupportedOption(o.name) >= 0 {
			handled, err := vfm.HandleOption(o.name, o.value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", o.name, err)
			}
			if handled {
				continue
			}
		}
		taskOptions = append(taskOptions, o.args()...)
	}
	return taskOptions, nil
}

// extensionArchives lists the archives directly inside each directory of
// a path list.
func extensionArchives(fsys afero.Fs, dirs string) ([]string, error) {
	var out []string
	for _, dir := range filepath.SplitList(dirs) {
		if dir == "" {
			continue
		}
		infos, err := afero.ReadDir(fsys, dir)
		if err != nil {
			if ok, _ := afero.Exists(fsys, dir); !ok {
				continue
			}
			return nil, compiler.IllegalArgument("-extdirs %s: %v", dir, err)
		}
		for _, info := range infos {
			p := path.Join(fileobject.Canonical(dir), info.Name())
			if !info.IsDir() && fileobject.IsArchive(p) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// pathFlags are the javac path options ParseArgs moves into request fields.
var pathFlags = map[string]func(*Request) *[]string{
	"-cp":                   func(r *Request) *[]string { return &r.ClassPath },
	"-classpath":            func(r *Request) *[]string { return &r.ClassPath },
	"--class-path":          func(r *Request) *[]string { return &r.ClassPath },
	"-sourcepath":           func(r *Request) *[]string { return &r.SourcePath },
	"--source-path":         func(r *Request) *[]string { return &r.SourcePath },
	"-bootclasspath":        func(r *Request) *[]string { return &r.PlatformClassPath },
	"--boot-class-path":     func(r *Request) *[]string { return &r.PlatformClassPath },
	"-p":                    func(r *Request) *[]string { return &r.ModulePath },
	"--module-path":         func(r *Request) *[]string { return &r.ModulePath },
	"--upgrade-module-path": func(r *Request) *[]string { return &r.UpgradeModulePath },
}

// ParseArgs turns a javac style command line into a request. Path options
// become request fields, arguments that are not options become sources and
// everything else stays an option.
func ParseArgs(tool compiler.Tool, args []string) (Request, error) {
	var req Request
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			req.Sources = append(req.Sources, arg)
			continue
		}
		if field, ok := pathFlags[arg]; ok {
			if i+1 >= len(args) {
				return Request{}, compiler.IllegalArgument("%s requires an argument", arg)
			}
			i++
			dst := field(&req)
			*dst = append(*dst, filepath.SplitList(args[i])...)
			continue
		}
		arity := 0
		switch {
		case earlyFlags[arg], arg == "-processor", arg == "-h", arg == "--processor-module-path":
			arity = 1
		default:
			arity = max(tool.IsSupportedOption(arg), 0)
		}
		req.Options = append(req.Options, arg)
		if arity > 0 {
			if i+1 >= len(args) {
				return Request{}, compiler.IllegalArgument("%s requires an argument", arg)
			}
			i++
			req.Options = append(req.Options, args[i])
		}
	}
	return req, nil
}
