package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	apperrors "global-universe/internal/errors"
)

//go:embed macros.yaml
var defaultMacros []byte

// Macro series sources.
const (
	SourceBLS  = "bls"
	SourceFRED = "fred"
)

// MacroSeries is one series inside a group.
type MacroSeries struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MacroGroup is a set of series stored together in one wide table.
type MacroGroup struct {
	Name        string        `yaml:"name"`
	Source      string        `yaml:"source"`
	Description string        `yaml:"description"`
	Series      []MacroSeries `yaml:"series"`
}

// IDs returns the series IDs in group order.
func (g MacroGroup) IDs() []string {
	out := make([]string, len(g.Series))
	for i, s := range g.Series {
		out[i] = s.ID
	}
	return out
}

// Macros is the registry of macro series groups.
type Macros struct {
	groups []MacroGroup
}

// DefaultMacros returns the embedded macro groups.
func DefaultMacros() (*Macros, error) {
	return ParseMacros(defaultMacros)
}

// LoadMacros reads a macro groups file. An empty path returns the embedded set.
func LoadMacros(path string) (*Macros, error) {
	if path == "" {
		return DefaultMacros()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "read macros %s", path)
	}
	return ParseMacros(data)
}

// ParseMacros decodes and validates macro groups.
func ParseMacros(data []byte) (*Macros, error) {
	var f struct {
		Groups []MacroGroup `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, g := range f.Groups {
		if g.Name == "" {
			return nil, fmt.Errorf("macro group without a name")
		}
		if names[g.Name] {
			return nil, fmt.Errorf("duplicate macro group %q", g.Name)
		}
		names[g.Name] = true
		if g.Source != SourceBLS && g.Source != SourceFRED {
			return nil, fmt.Errorf("macro group %q: unknown source %q", g.Name, g.Source)
		}
		if len(g.Series) == 0 {
			return nil, fmt.Errorf("macro group %q has no series", g.Name)
		}
	}
	return &Macros{groups: f.Groups}, nil
}

// Groups returns every group in file order.
func (m *Macros) Groups() []MacroGroup {
	return append([]MacroGroup(nil), m.groups...)
}

// Group looks a group up by name.
func (m *Macros) Group(name string) (MacroGroup, bool) {
	for _, g := range m.groups {
		if g.Name == name {
			return g, true
		}
	}
	return MacroGroup{}, false
}
