// Package persona holds the interviewer catalog.
package persona

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

var builtins = []types.Persona{
	{
		ID:               "tech_lead",
		Name:             "Alex Chen",
		Role:             "Senior Staff Engineer",
		Avatar:           "👨‍💻",
		Description:      "Focuses on system design, edge cases, and technical depth. Hates buzzwords.",
		DefaultHarshness: 70,
	},
	{
		ID:               "hr_manager",
		Name:             "Sarah Jenkins",
		Role:             "Head of People",
		Avatar:           "👋",
		Description:      "Cares about STAR stories, culture fit, and clear communication. Very polite.",
		DefaultHarshness: 40,
	},
	{
		ID:               "founder",
		Name:             "Marcus Sterling",
		Role:             "Founder & CEO",
		Avatar:           "🚀",
		Description:      "Loves big ideas and energy. Penalizes low enthusiasm more than missed details.",
		DefaultHarshness: 20,
	},
}

// Catalog is an ordered, read-only set of personas.
type Catalog struct {
	order []string
	byID  map[string]types.Persona
}

// Builtin returns the catalog shipped with the binary.
func Builtin() *Catalog {
	c, err := New(builtins)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog preserving the given order. IDs must be unique and
// non-empty.
func New(list []types.Persona) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]types.Persona, len(list))}
	for i, p := range list {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("persona[%d]: id is required", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona %q: name is required", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("persona %q: duplicate id", p.ID)
		}
		p.DefaultHarshness = types.ClampHarshness(p.DefaultHarshness)
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

type fileFormat struct {
	Personas []types.Persona `yaml:"personas"`
}

// LoadFile reads a YAML catalog of the form:
//
//	personas:
//	  - id: tech_lead
//	    name: Alex Chen
//	    role: Senior Staff Engineer
//	    description: ...
//	    default_harshness: 70
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode personas: %w", err)
	}
	if len(f.Personas) == 0 {
		return nil, fmt.Errorf("decode personas: no personas defined")
	}
	return New(f.Personas)
}

// Get looks up a persona by id.
func (c *Catalog) Get(id string) (types.Persona, bool) {
	if c == nil {
		return types.Persona{}, false
	}
	p, ok := c.byID[strings.TrimSpace(id)]
	return p, ok
}

// List returns personas in catalog order.
func (c *Catalog) List() []types.Persona {
	if c == nil {
		return nil
	}
	out := make([]types.Persona, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted persona ids, for error messages.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}
