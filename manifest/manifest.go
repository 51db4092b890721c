// Package manifest handles lark.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/lark/vm"
)

// Manifest represents a lark.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Heap    HeapConfig  `toml:"heap"`
	Cache   CacheConfig `toml:"cache"`

	// Dir is the directory containing the lark.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// HeapConfig tunes the interpreter's collector. Sizes are in bytes; zero
// values keep the interpreter defaults.
type HeapConfig struct {
	InitialSize   int `toml:"initial-size"`
	MinSize       int `toml:"min-size"`
	GrowthPercent int `toml:"growth-percent"`
}

// CacheConfig configures the compiled-module cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load parses a lark.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, "lark.toml"))
}

// LoadFile parses the manifest at an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".lark", "cache.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a lark.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "lark.toml")
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

// EntryPath returns the absolute path of the configured entry script, or
// "" when the manifest declares none.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// CachePath returns the absolute path of the compiled-module cache.
func (m *Manifest) CachePath() string {
	return filepath.Join(m.Dir, m.Cache.Path)
}

// VMConfiguration translates the heap section into an interpreter
// configuration. Absent fields stay zero, which the VM maps to its own
// defaults.
func (m *Manifest) VMConfiguration() *vm.Configuration {
	return &vm.Configuration{
		InitialHeapSize:   m.Heap.InitialSize,
		MinHeapSize:       m.Heap.MinSize,
		HeapGrowthPercent: m.Heap.GrowthPercent,
	}
}
