// Package symbols holds the config-symbol registry: the provider-agnostic
// vocabulary of tracked instruments, grouped into dashboard sections, plus
// the static ratio definitions.
package symbols

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/haolin-w/pulse/internal/models"
)

//go:embed symbols.yaml
var defaultRegistry []byte

// SectionNames lists the dashboard sections in display order.
var SectionNames = []string{
	"us_indices",
	"us_stocks",
	"tw_markets",
	"international_markets",
	"metals_futures",
	"crypto",
}

// Registry is the loaded symbol configuration.
type Registry struct {
	Sections map[string]map[string]string `yaml:"sections"`
	Ratios   []models.RatioDefinition     `yaml:"ratios"`

	ratiosByID map[string]models.RatioDefinition
}

// Load reads the registry from path, or from the embedded default when
// path is empty.
func Load(path string) (*Registry, error) {
	data := defaultRegistry
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read symbols file %s: %w", path, err)
		}
		data = b
	}

	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse symbols file: %w", err)
	}

	r.ratiosByID = make(map[string]models.RatioDefinition, len(r.Ratios))
	for _, def := range r.Ratios {
		if def.ID == "" || def.Numerator == "" || def.Denominator == "" {
			return nil, fmt.Errorf("ratio definition %q missing id/num/denom", def.ID)
		}
		if _, dup := r.ratiosByID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate ratio id %q", def.ID)
		}
		r.ratiosByID[def.ID] = def
	}

	return &r, nil
}

// Section returns the symbol→display-name map for a named section.
// Unknown sections return an empty map.
func (r *Registry) Section(name string) map[string]string {
	if m, ok := r.Sections[name]; ok {
		return m
	}
	return map[string]string{}
}

// Ratio looks up one ratio definition by id.
func (r *Registry) Ratio(id string) (models.RatioDefinition, bool) {
	def, ok := r.ratiosByID[id]
	return def, ok
}

// DisplayName resolves a symbol's display name across all sections,
// falling back to the symbol itself.
func (r *Registry) DisplayName(symbol string) string {
	for _, name := range SectionNames {
		if dn, ok := r.Sections[name][symbol]; ok {
			return dn
		}
	}
	return symbol
}

// SortedSymbols returns a section's symbols in stable sorted order, which
// keeps batch fetch logs and skipped-symbol diffs deterministic.
func (r *Registry) SortedSymbols(section string) []string {
	m := r.Section(section)
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
