// Package manifest handles retrograde.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/retrograde/pkg/pyc"
)

// Manifest represents a retrograde.toml project configuration: which module
// files to decompile, which dialect to assume when a file has no version
// pin, and where results go.
type Manifest struct {
	Project Project        `toml:"project"`
	Input   Input          `toml:"input"`
	Output  Output         `toml:"output"`
	Pins    map[string]Pin `toml:"pins"`

	// Dir is the directory containing the retrograde.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Input configures module file locations.
type Input struct {
	Dirs    []string `toml:"dirs"`
	Dialect string   `toml:"dialect"` // default version, e.g. "3.8"
}

// Output configures result handling.
type Output struct {
	Dir         string `toml:"dir"`
	Disassembly bool   `toml:"disassembly"`
	CachePath   string `toml:"cache-path"`

	// Strict treats a degraded build as a failure instead of writing the
	// partial tree.
	Strict bool `toml:"strict"`
}

// Pin overrides the dialect for one module file.
type Pin struct {
	Dialect string `toml:"dialect"`
}

// Load parses a retrograde.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "retrograde.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Input.Dirs) == 0 {
		m.Input.Dirs = []string{"."}
	}
	if m.Output.Dir == "" {
		m.Output.Dir = "out"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a retrograde.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "retrograde.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// InputDirPaths returns absolute paths for the configured input directories.
func (m *Manifest) InputDirPaths() []string {
	var paths []string
	for _, d := range m.Input.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// OutputDirPath returns the absolute path of the output directory.
func (m *Manifest) OutputDirPath() string {
	return filepath.Join(m.Dir, m.Output.Dir)
}

// DialectFor resolves the dialect version for one module file, honoring a
// per-file pin before the project default.
func (m *Manifest) DialectFor(file string) (pyc.Version, error) {
	spec := m.Input.Dialect
	if pin, ok := m.Pins[filepath.Base(file)]; ok && pin.Dialect != "" {
		spec = pin.Dialect
	}
	if spec == "" {
		return pyc.Version{}, fmt.Errorf("no dialect configured for %s", file)
	}
	return ParseVersion(spec)
}

// ParseVersion parses a "major.minor" dialect string.
func ParseVersion(spec string) (pyc.Version, error) {
	major, minor, ok := strings.Cut(spec, ".")
	if !ok {
		return pyc.Version{}, fmt.Errorf("malformed dialect %q: want major.minor", spec)
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return pyc.Version{}, fmt.Errorf("malformed dialect %q: %w", spec, err)
	}
	min, err := strconv.Atoi(minor)
	if err != nil {
		return pyc.Version{}, fmt.Errorf("malformed dialect %q: %w", spec, err)
	}
	return pyc.Version{Major: maj, Minor: min}, nil
}
