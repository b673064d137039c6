package projectcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/lexcodex/jbuild/framework"
	"github.com/lexcodex/jbuild/persistence"
)

// Metadata models the persisted project description.
type Metadata struct {
	JDK               string   `yaml:"jdk,omitempty"`
	OutputDir         string   `yaml:"output_dir,omitempty"`
	SourcePath        string   `yaml:"source_path,omitempty"`
	InternalLibraries []string `yaml:"internal_libraries,omitempty"`
	ExternalLibraries []string `yaml:"external_libraries,omitempty"`
}

// ConfigDir resolves the directory storing project settings.
func ConfigDir(root string) string {
	if root == "" {
		root = "."
	}
	return filepath.Join(root, ".jbuild")
}

// MetadataFile returns the project YAML path.
func MetadataFile(root string) string {
	return filepath.Join(ConfigDir(root), "project.yaml")
}

// HistoryFile returns the build history database path.
func HistoryFile(root string) string {
	return filepath.Join(ConfigDir(root), "history.db")
}

// Load reads the project metadata. A missing file is not an error: found is
// false and the caller compiles in bare mode.
func Load(root string) (meta *Metadata, found bool, err error) {
	data, err := os.ReadFile(MetadataFile(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", MetadataFile(root), err)
	}
	return &m, true, nil
}

// Save writes the metadata back to disk.
func Save(root string, meta *Metadata) error {
	if meta == nil {
		return errors.New("project metadata missing")
	}
	if root == "" {
		return errors.New("project root missing")
	}
	if err := os.MkdirAll(ConfigDir(root), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(MetadataFile(root), data, 0o644)
}

// Validate reports every problem with the metadata at once.
func (m *Metadata) Validate(root string) error {
	if m == nil {
		return errors.New("project metadata missing")
	}
	var result *multierror.Error
	if m.JDK != "" {
		if info, err := os.Stat(m.JDK); err != nil || !info.IsDir() {
			result = multierror.Append(result, fmt.Errorf("jdk %q is not a directory", m.JDK))
		}
	}
	if m.SourcePath != "" {
		path := m.SourcePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			result = multierror.Append(result, fmt.Errorf("source_path %q is not a directory", m.SourcePath))
		}
	}
	if m.OutputDir != "" && m.SourcePath != "" && filepath.Clean(m.OutputDir) == filepath.Clean(m.SourcePath) {
		result = multierror.Append(result, fmt.Errorf("output_dir and source_path both point at %q", m.OutputDir))
	}
	for i, lib := range m.InternalLibraries {
		if strings.TrimSpace(lib) == "" {
			result = multierror.Append(result, fmt.Errorf("internal_libraries[%d] is empty", i))
		}
	}
	for i, lib := range m.ExternalLibraries {
		if strings.TrimSpace(lib) == "" {
			result = multierror.Append(result, fmt.Errorf("external_libraries[%d] is empty", i))
		} else if !filepath.IsAbs(lib) {
			result = multierror.Append(result, fmt.Errorf("external_libraries[%d] %q must be absolute", i, lib))
		}
	}
	return result.ErrorOrNil()
}

// ProjectConfig converts the metadata into the record a ProjectContext is
// built from.
func (m *Metadata) ProjectConfig(root string, runArgs map[string]framework.RunArguments) framework.ProjectConfig {
	return framework.ProjectConfig{
		Root:              root,
		JDK:               m.JDK,
		OutputDirectory:   m.OutputDir,
		SourcePath:        m.SourcePath,
		InternalLibraries: append([]string(nil), m.InternalLibraries...),
		ExternalLibraries: append([]string(nil), m.ExternalLibraries...),
		RunArguments:      runArgs,
	}
}

// FindRoot walks up from start looking for a directory holding project
// metadata.
func FindRoot(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		if _, err := os.Stat(MetadataFile(dir)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// OpenContext takes a fresh ProjectContext snapshot from the current on-disk
// metadata and run-argument registry. It returns nil without error when root
// has no metadata.
func OpenContext(root string, resolve framework.ToolchainResolver) (*framework.ProjectContext, error) {
	meta, found, err := Load(root)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if err := meta.Validate(root); err != nil {
		return nil, fmt.Errorf("invalid project %s: %w", root, err)
	}
	store, err := persistence.NewFileRunArgsStore(ConfigDir(root))
	if err != nil {
		return nil, fmt.Errorf("open run args: %w", err)
	}
	return framework.NewProjectContext(meta.ProjectConfig(root, store.Snapshot()), resolve)
}
