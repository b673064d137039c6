package framework

import (
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform captures the OS-specific conventions used when locating JDK tools
// and assembling classpaths.
type Platform struct {
	Name string
	// ExecutableSuffix is appended to tool names, e.g. ".exe".
	ExecutableSuffix string
	// BinSubpath is the directory under a JDK root holding the tool binaries.
	BinSubpath string
	// BundleBinSubpath is used instead of BinSubpath when the JDK root is a
	// bundle directory (macOS "*.jdk").
	BundleBinSubpath string
	// ListSeparator joins classpath entries.
	ListSeparator string
}

// platformsMu guards platforms; RegisterPlatform may race with task startup.
var platformsMu sync.RWMutex

var platforms = map[string]Platform{
	"linux": {
		Name:          "linux",
		BinSubpath:    "bin",
		ListSeparator: ":",
	},
	"darwin": {
		Name:             "darwin",
		BinSubpath:       "bin",
		BundleBinSubpath: filepath.Join("Contents", "Home", "bin"),
		ListSeparator:    ":",
	},
	"windows": {
		Name:             "windows",
		ExecutableSuffix: ".exe",
		BinSubpath:       "bin",
		ListSeparator:    ";",
	},
}

// defaultPlatform covers unix-likes without their own entry.
var defaultPlatform = Platform{
	Name:          "unix",
	BinSubpath:    "bin",
	ListSeparator: ":",
}

// RegisterPlatform adds or replaces the conventions for an OS identifier.
func RegisterPlatform(goos string, p Platform) {
	if p.Name == "" {
		p.Name = goos
	}
	platformsMu.Lock()
	platforms[goos] = p
	platformsMu.Unlock()
}

// LookupPlatform returns the conventions registered for goos, falling back to
// the generic unix layout.
func LookupPlatform(goos string) Platform {
	platformsMu.RLock()
	p, ok := platforms[goos]
	platformsMu.RUnlock()
	if ok {
		return p
	}
	return defaultPlatform
}

// HostPlatform returns the conventions of the running OS.
func HostPlatform() Platform {
	return LookupPlatform(runtime.GOOS)
}

// ToolPath resolves the executable for tool under jdkRoot. An empty root
// yields the bare tool name so the OS PATH lookup applies.
func (p Platform) ToolPath(jdkRoot string, tool string) string {
	name := tool + p.ExecutableSuffix
	if strings.TrimSpace(jdkRoot) == "" {
		return name
	}
	sub := p.BinSubpath
	if p.BundleBinSubpath != "" && strings.HasSuffix(filepath.Clean(jdkRoot), ".jdk") {
		sub = p.BundleBinSubpath
	}
	return filepath.Join(jdkRoot, sub, name)
}

func (p Platform) separator() string {
	if p.ListSeparator == "" {
		return ":"
	}
	return p.ListSeparator
}
