package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Preset maps a name to a full Config. Presets carry no logic of their own;
// they are validated exactly like any externally supplied Config.
type Preset struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Config      Config `yaml:"config" json:"config"`
}

// ErrUnknownPreset is returned by Lookup when no preset has the given name.
var ErrUnknownPreset = errors.New("unknown preset")

// BuiltinPresets returns the presets shipped with the binary.
func BuiltinPresets() []Preset {
	return []Preset{
		{
			Name:        "idle-check",
			Description: "single unit at low intensity, no memory or graphics",
			Config:      Config{UnitCount: 1, Intensity: 0.1, DurationSeconds: 60},
		},
		{
			Name:        "warm",
			Description: "two units, light memory pressure, light graphics",
			Config: Config{
				UnitCount: 2, Intensity: 0.25, MemoryTargetBytes: 256 * MiB,
				GraphicsIntensity: 10, DurationSeconds: 600,
			},
		},
		{
			Name:        "hot",
			Description: "four units at high intensity with moderate memory and graphics",
			Config: Config{
				UnitCount: 4, Intensity: 0.75, MemoryTargetBytes: 512 * MiB,
				GraphicsIntensity: 50, DurationSeconds: 900,
			},
		},
		{
			Name:        "max",
			Description: "eight units flat out with heavy memory and graphics",
			Config: Config{
				UnitCount: 8, Intensity: 1, MemoryTargetBytes: 1024 * MiB,
				GraphicsIntensity: 100, DurationSeconds: 1200,
			},
		},
	}
}

// Lookup finds a preset by name.
func Lookup(presets []Preset, name string) (Preset, error) {
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// File is the on-disk layout of a preset file.
type File struct {
	Presets []Preset `yaml:"presets"`
	Tuning  Tuning   `yaml:"tuning"`
}

// LoadFile reads and validates a YAML preset file. Tuning fields missing
// from the file keep their defaults.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseFile(data)
}

// ParseFile decodes and validates preset file contents.
func ParseFile(data []byte) (File, error) {
	f := File{Tuning: DefaultTuning()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := f.Tuning.Validate(); err != nil {
		return File{}, err
	}

	seen := make(map[string]struct{}, len(f.Presets))
	for _, p := range f.Presets {
		if p.Name == "" {
			return File{}, fmt.Errorf("%w: preset without a name", ErrInvalid)
		}
		if _, dup := seen[p.Name]; dup {
			return File{}, fmt.Errorf("%w: duplicate preset %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = struct{}{}
		if err := p.Config.Validate(); err != nil {
			return File{}, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return f, nil
}

// Merge overlays file presets on top of base, replacing by name, and
// returns them sorted by name.
func Merge(base, overlay []Preset) []Preset {
	byName := make(map[string]Preset, len(base)+len(overlay))
	for _, p := range base {
		byName[p.Name] = p
	}
	for _, p := range overlay {
		byName[p.Name] = p
	}

	out := make([]Preset, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Catalog is a concurrency-safe preset list that can be swapped wholesale
// when a preset file changes.
type Catalog struct {
	mu      sync.RWMutex
	presets []Preset
}

// NewCatalog returns a catalog holding presets sorted by name.
func NewCatalog(presets []Preset) *Catalog {
	return &Catalog{presets: Merge(nil, presets)}
}

// Replace swaps the held presets.
func (c *Catalog) Replace(presets []Preset) {
	merged := Merge(nil, presets)
	c.mu.Lock()
	c.presets = merged
	c.mu.Unlock()
}

// List returns a copy of the held presets.
func (c *Catalog) List() []Preset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Preset, len(c.presets))
	copy(out, c.presets)
	return out
}

// Lookup finds a preset by name.
func (c *Catalog) Lookup(name string) (Preset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Lookup(c.presets, name)
}
