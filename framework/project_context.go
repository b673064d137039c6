package framework

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RunArguments are the program and VM arguments registered for a run target.
type RunArguments struct {
	Program string `json:"program,omitempty" yaml:"program,omitempty"`
	VM      string `json:"vm,omitempty" yaml:"vm,omitempty"`
}

// ProjectConfig is the raw project metadata a ProjectContext is built from.
type ProjectConfig struct {
	Root              string
	JDK               string
	OutputDirectory   string
	SourcePath        string
	InternalLibraries []string
	ExternalLibraries []string
	// RunArguments is keyed by normalized run target, e.g. "com/x/Main".
	RunArguments map[string]RunArguments
}

// ToolchainResolver maps project metadata to a JDK root. An empty result
// means the bare tool names are used.
type ToolchainResolver func(ProjectConfig) string

// DefaultToolchainResolver prefers the project's JDK and falls back to
// JAVA_HOME.
func DefaultToolchainResolver(cfg ProjectConfig) string {
	if strings.TrimSpace(cfg.JDK) != "" {
		return cfg.JDK
	}
	return os.Getenv("JAVA_HOME")
}

// ProjectContext is a read-only snapshot of project metadata taken when a
// task starts. It is safe for concurrent reads.
type ProjectContext struct {
	root          string
	toolchainRoot string
	outputDir     string
	sourceRoot    string
	libraries     []string
	runArgs       map[string]RunArguments
}

// NewProjectContext snapshots cfg. Relative libraries, internal or external,
// are resolved against the project root. A nil resolver uses
// DefaultToolchainResolver.
func NewProjectContext(cfg ProjectConfig, resolve ToolchainResolver) (*ProjectContext, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("project root required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if resolve == nil {
		resolve = DefaultToolchainResolver
	}
	libs := make([]string, 0, len(cfg.InternalLibraries)+len(cfg.ExternalLibraries))
	for _, lib := range cfg.InternalLibraries {
		if strings.TrimSpace(lib) == "" {
			continue
		}
		if !filepath.IsAbs(lib) {
			lib = filepath.Join(root, lib)
		}
		libs = append(libs, lib)
	}
	for _, lib := range cfg.ExternalLibraries {
		if strings.TrimSpace(lib) == "" {
			continue
		}
		if !filepath.IsAbs(lib) {
			lib = filepath.Join(root, lib)
		}
		libs = append(libs, lib)
	}
	runArgs := make(map[string]RunArguments, len(cfg.RunArguments))
	for target, args := range cfg.RunArguments {
		runArgs[target] = args
	}
	return &ProjectContext{
		root:          root,
		toolchainRoot: resolve(cfg),
		outputDir:     cfg.OutputDirectory,
		sourceRoot:    cfg.SourcePath,
		libraries:     libs,
		runArgs:       runArgs,
	}, nil
}

// Root returns the absolute project directory.
func (p *ProjectContext) Root() string { return p.root }

// ToolchainRoot returns the resolved JDK root, possibly empty.
func (p *ProjectContext) ToolchainRoot() string { return p.toolchainRoot }

// OutputDirectory returns the configured class output directory.
func (p *ProjectContext) OutputDirectory() string { return p.outputDir }

// SourceRoot returns the configured source path.
func (p *ProjectContext) SourceRoot() string { return p.sourceRoot }

// Libraries returns internal then external libraries.
func (p *ProjectContext) Libraries() []string {
	return append([]string(nil), p.libraries...)
}

// RunArgumentsFor looks up registered arguments by exact run target.
func (p *ProjectContext) RunArgumentsFor(target string) (RunArguments, bool) {
	args, ok := p.runArgs[target]
	return args, ok
}

// RelativeTarget returns file relative to the project root.
func (p *ProjectContext) RelativeTarget(file string) (string, error) {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.root, file)
	}
	rel, err := filepath.Rel(p.root, filepath.Clean(abs))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s outside project %s", file, p.root)
	}
	return rel, nil
}

// RunTarget maps a source file, absolute or relative to the root, to the
// class name the run step launches. Run arguments are registered under it.
func (p *ProjectContext) RunTarget(file string) (string, error) {
	rel, err := p.RelativeTarget(file)
	if err != nil {
		return "", err
	}
	return NormalizeRunTarget(p.relativeSourceRoot(), rel), nil
}

func (p *ProjectContext) relativeSourceRoot() string {
	if !filepath.IsAbs(p.sourceRoot) {
		return p.sourceRoot
	}
	if rel, err := filepath.Rel(p.root, p.sourceRoot); err == nil {
		return rel
	}
	return p.sourceRoot
}

// RunWorkingDirectory is where compiled classes live. Without -d javac writes
// classes next to their sources, so the source root is used when no output
// directory is set, and the project root when neither is.
func (p *ProjectContext) RunWorkingDirectory() string {
	dir := p.outputDir
	if dir == "" {
		dir = p.sourceRoot
	}
	if dir == "" {
		return p.root
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.root, dir)
}
