package scene

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefinitionFile pairs a parsed scene definition with its source.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

// ParseDefinitionYAML decodes and validates a single scene payload.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("scene: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("scene: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def.Normalized(), nil
}

// Loader reads scene definitions from a filesystem.
type Loader struct {
	fs afero.Fs
}

// NewLoader returns a loader over fsys. A nil fsys reads the host filesystem.
func NewLoader(fsys afero.Fs) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Loader{fs: fsys}
}

// LoadDefinitionFile reads a YAML file and returns the parsed scene.
func (l *Loader) LoadDefinitionFile(path string) (DefinitionFile, error) {
	info, err := l.fs.Stat(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("scene: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DefinitionFile{}, fmt.Errorf("scene: %s is a directory", path)
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("scene: read %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("scene: %s: %w", path, err)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir scans a directory for *.yaml scenes. Missing directories
// are treated as "no scenes".
func (l *Loader) LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	var defs []DefinitionFile
	err := l.eachFile(dir, isYAMLFile, func(path string) error {
		def, err := l.LoadDefinitionFile(path)
		if err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil || len(defs) == 0 {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

func (l *Loader) eachFile(dir string, match func(string) bool, fn func(string) error) error {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil
	}
	entries, err := afero.ReadDir(l.fs, trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("scene: read %s: %w", trimmed, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		if err := fn(filepath.Join(trimmed, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func isGoFile(name string) bool {
	return filepath.Ext(name) == ".go"
}
