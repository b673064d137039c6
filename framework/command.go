package framework

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// Tool selects which JDK executable a configuration drives.
type Tool int

const (
	ToolCompile Tool = iota
	ToolRun
)

// Executable returns the JDK binary name for the tool.
func (t Tool) Executable() string {
	if t == ToolRun {
		return "java"
	}
	return "javac"
}

func (t Tool) String() string {
	if t == ToolRun {
		return "run"
	}
	return "compile"
}

// ToolConfiguration describes one tool invocation. Build it with
// NewCompileConfiguration or NewRunConfiguration and treat it as immutable.
type ToolConfiguration struct {
	Tool          Tool
	ToolchainPath string
	// WorkingDirectory is where the process is spawned.
	WorkingDirectory string
	// OutputDirectory and SourcePath are only honoured for ToolCompile.
	OutputDirectory string
	SourcePath      string
	// Libraries are classpath entries, internal libraries first.
	Libraries []string
	// TargetPath is the source file for compile or the run target for run.
	TargetPath       string
	ProgramArguments string
	VMArguments      string
}

// NewCompileConfiguration builds a compile configuration.
func NewCompileConfiguration(toolchainPath, workdir, outputDir, sourcePath string, libraries []string, target string) ToolConfiguration {
	return ToolConfiguration{
		Tool:             ToolCompile,
		ToolchainPath:    toolchainPath,
		WorkingDirectory: workdir,
		OutputDirectory:  outputDir,
		SourcePath:       sourcePath,
		Libraries:        append([]string(nil), libraries...),
		TargetPath:       target,
	}
}

// NewRunConfiguration builds a run configuration. Run configurations never
// carry output directory or source path semantics.
func NewRunConfiguration(toolchainPath, workdir string, libraries []string, target, programArgs, vmArgs string) ToolConfiguration {
	return ToolConfiguration{
		Tool:             ToolRun,
		ToolchainPath:    toolchainPath,
		WorkingDirectory: workdir,
		Libraries:        append([]string(nil), libraries...),
		TargetPath:       target,
		ProgramArguments: programArgs,
		VMArguments:      vmArgs,
	}
}

// Command is a synthesized argument vector ready for spawning.
type Command struct {
	Path string
	Args []string
	Dir  string
}

// Argv returns the full argument vector including the executable.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Path)
	return append(argv, c.Args...)
}

// String renders the command as a single shell-like line.
func (c Command) String() string {
	argv := c.Argv()
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			parts[i] = strconv.Quote(a)
			continue
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

// CommandBuilder turns tool configurations into commands. It performs no I/O.
type CommandBuilder struct {
	Platform Platform
}

// NewCommandBuilder returns a builder using the conventions of p.
func NewCommandBuilder(p Platform) CommandBuilder {
	return CommandBuilder{Platform: p}
}

// Build synthesizes the command for cfg. Missing pieces shorten the command
// instead of failing; the external tool decides whether it is valid.
func (b CommandBuilder) Build(cfg ToolConfiguration) Command {
	path := cfg.ToolchainPath
	if strings.TrimSpace(path) == "" {
		path = cfg.Tool.Executable() + b.Platform.ExecutableSuffix
	}
	var args []string
	args = append(args, splitArguments(cfg.VMArguments)...)
	switch cfg.Tool {
	case ToolRun:
		args = append(args, "-cp", b.runClasspath(cfg.Libraries))
		if cfg.TargetPath != "" {
			args = append(args, filepath.ToSlash(cfg.TargetPath))
		}
	default:
		if libs := nonEmpty(cfg.Libraries); len(libs) > 0 {
			args = append(args, "-cp", strings.Join(libs, b.Platform.separator()))
		}
		if cfg.OutputDirectory != "" {
			args = append(args, "-d", cfg.OutputDirectory)
		}
		if cfg.SourcePath != "" {
			args = append(args, "-sourcepath", cfg.SourcePath)
		}
		if cfg.TargetPath != "" {
			args = append(args, cfg.TargetPath)
		}
	}
	args = append(args, splitArguments(cfg.ProgramArguments)...)
	return Command{Path: path, Args: args, Dir: cfg.WorkingDirectory}
}

// runClasspath prefixes relative entries with ./ and always ends with the
// current directory so user classes resolve.
func (b CommandBuilder) runClasspath(libraries []string) string {
	var sb strings.Builder
	for _, lib := range nonEmpty(libraries) {
		if !filepath.IsAbs(lib) && !strings.HasPrefix(lib, "./") && !strings.HasPrefix(lib, ".\\") {
			sb.WriteString("./")
		}
		sb.WriteString(lib)
		sb.WriteString(b.Platform.separator())
	}
	sb.WriteString(".")
	return sb.String()
}

// NormalizeRunTarget converts a source file path into a run target by
// stripping sourceRoot and the .java extension. Paths that are already run
// targets (no source extension) are returned unchanged, so applying it twice
// is a no-op.
func NormalizeRunTarget(sourceRoot, path string) string {
	p := filepath.ToSlash(path)
	ext := filepath.Ext(p)
	if ext != ".java" {
		return p
	}
	p = strings.TrimSuffix(p, ext)
	root := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(sourceRoot)), "/")
	if sourceRoot != "" && root != "" && root != "." {
		p = strings.TrimPrefix(p, "./")
		if strings.HasPrefix(p, root+"/") {
			p = strings.TrimPrefix(p, root+"/")
		}
	}
	return p
}

func splitArguments(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	args, err := shlex.Split(s)
	if err != nil {
		return strings.Fields(s)
	}
	return args
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
