package classpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/jniproxy/internal/sandbox"
)

// ManifestFile is the file name a bundle directory must contain.
const ManifestFile = "manifest.yaml"

// DefaultEntry is the guest export run when a manifest names none.
const DefaultEntry = "run"

// Manifest is the manifest.yaml of a class bundle.
type Manifest struct {
	Name        string             `yaml:"name"`
	Version     string             `yaml:"version"`
	Description string             `yaml:"description"`
	Guest       GuestConfig        `yaml:"guest"`
	Classes     []sandbox.ClassDef `yaml:"classes"`

	dir string
}

// GuestConfig names the bundle's guest module.
type GuestConfig struct {
	File  string `yaml:"file"`
	Entry string `yaml:"entry"`
}

// ParseManifest reads and validates manifest.yaml from dir.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{Path: manifestPath, Err: err}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{Path: manifestPath, Err: err}
	}
	m.dir = dir
	if m.Guest.File != "" && m.Guest.Entry == "" {
		m.Guest.Entry = DefaultEntry
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest fields and class declarations.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return m.invalid("name", "name is required")
	}
	if m.Version == "" {
		return m.invalid("version", "version is required")
	}
	if len(m.Classes) == 0 && m.Guest.File == "" {
		return m.invalid("classes", "a bundle needs at least one class or a guest module")
	}

	seen := make(map[string]bool, len(m.Classes))
	for i, c := range m.Classes {
		field := fmt.Sprintf("classes[%d]", i)
		switch {
		case c.Name == "":
			return m.invalid(field+".name", "class name is required")
		case strings.Contains(c.Name, "."):
			return m.invalid(field+".name", fmt.Sprintf("class name %q must use '/' separators", c.Name))
		case seen[c.Name]:
			return m.invalid(field+".name", fmt.Sprintf("class %s declared twice", c.Name))
		case c.Super == c.Name:
			return m.invalid(field+".super", fmt.Sprintf("class %s extends itself", c.Name))
		}
		seen[c.Name] = true

		for j, md := range c.Methods {
			if md.Name == "" || md.Descriptor == "" {
				return m.invalid(fmt.Sprintf("%s.methods[%d]", field, j), "method name and descriptor are required")
			}
			if md.Impl == "" {
				return m.invalid(fmt.Sprintf("%s.methods[%d].impl", field, j),
					fmt.Sprintf("method %s%s has no implementation", md.Name, md.Descriptor))
			}
		}
	}

	if m.Guest.File != "" {
		if _, err := os.Stat(m.GuestPath()); os.IsNotExist(err) {
			return &GuestNotFoundError{ManifestPath: m.Path(), GuestFile: m.Guest.File}
		}
	}
	return nil
}

func (m *Manifest) invalid(field, msg string) error {
	return &ManifestValidationError{Path: m.Path(), Field: field, Message: msg}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// GuestPath returns the path of the guest module.
func (m *Manifest) GuestPath() string {
	return filepath.Join(m.dir, m.Guest.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
