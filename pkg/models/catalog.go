package models

import (
	_ "embed"
	"math/rand"
	"os"
	"strings"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Family groups model identifiers that share one backend adapter and one set
// of credentials.
type Family string

const (
	FamilyOpenAI   Family = "openai"
	FamilyGoogle   Family = "google"
	FamilyTogether Family = "together"
	FamilyBedrock  Family = "bedrock"
	FamilyOllama   Family = "ollama"
)

// AllFamilies lists the known families in display order.
func AllFamilies() []Family {
	return []Family{FamilyOpenAI, FamilyGoogle, FamilyTogether, FamilyBedrock, FamilyOllama}
}

func ParseFamily(s string) (Family, error) {
	for _, f := range AllFamilies() {
		if string(f) == strings.ToLower(strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", errors.Errorf("unknown model family %q", s)
}

// Selection is one catalog entry.
type Selection struct {
	Value  string `yaml:"value" json:"value"`
	Label  string `yaml:"label" json:"label"`
	Family Family `yaml:"-" json:"family"`
}

type catalogFile struct {
	Families  map[string][]Selection `yaml:"families"`
	Session   []string               `yaml:"session"`
	Interview []string               `yaml:"interview"`
}

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is immutable reference data mapping identifiers to families.
type Catalog struct {
	byID      map[string]Selection
	families  map[Family][]Selection
	pickLists map[conversation.Phase][]string
}

func LoadDefault() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model catalog %s", path)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "model catalog %s", path)
	}
	return c, nil
}

// Parse builds a catalog from its YAML form. Identifiers must be unique across
// families and every pick-list entry must exist in the catalog.
func Parse(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "could not parse model catalog")
	}

	c := &Catalog{
		byID:      map[string]Selection{},
		families:  map[Family][]Selection{},
		pickLists: map[conversation.Phase][]string{},
	}
	for name, entries := range f.Families {
		family, err := ParseFamily(name)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Value == "" {
				return nil, errors.Errorf("family %s: entry with empty identifier", family)
			}
			if prev, ok := c.byID[e.Value]; ok {
				return nil, errors.Errorf("identifier %q listed in both %s and %s", e.Value, prev.Family, family)
			}
			e.Family = family
			if e.Label == "" {
				e.Label = e.Value
			}
			c.byID[e.Value] = e
			c.families[family] = append(c.families[family], e)
		}
	}

	for phase, ids := range map[conversation.Phase][]string{
		conversation.PhaseSession:   f.Session,
		conversation.PhaseInterview: f.Interview,
	} {
		if len(ids) == 0 {
			return nil, errors.Errorf("%s pick-list is empty", phase)
		}
		for _, id := range ids {
			if _, ok := c.byID[id]; !ok {
				return nil, errors.Errorf("%s pick-list references unknown model %q", phase, id)
			}
		}
		c.pickLists[phase] = ids
	}

	return c, nil
}

// Lookup matches id exactly. There is no prefix matching and no default.
func (c *Catalog) Lookup(id string) (Selection, bool) {
	s, ok := c.byID[id]
	return s, ok
}

func (c *Catalog) Family(f Family) []Selection {
	out := make([]Selection, len(c.families[f]))
	copy(out, c.families[f])
	return out
}

func (c *Catalog) All() []Selection {
	var out []Selection
	for _, f := range AllFamilies() {
		out = append(out, c.families[f]...)
	}
	return out
}

// PickList returns the models offered for phase, default first.
func (c *Catalog) PickList(phase conversation.Phase) []Selection {
	ids := c.pickLists[phase]
	out := make([]Selection, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Catalog) Offers(phase conversation.Phase, id string) bool {
	for _, candidate := range c.pickLists[phase] {
		if candidate == id {
			return true
		}
	}
	return false
}

func (c *Catalog) Default(phase conversation.Phase) string {
	ids := c.pickLists[phase]
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Random picks a model from the phase pick-list.
func (c *Catalog) Random(phase conversation.Phase, r *rand.Rand) string {
	ids := c.pickLists[phase]
	if len(ids) == 0 {
		return ""
	}
	if r == nil {
		return ids[rand.Intn(len(ids))]
	}
	return ids[r.Intn(len(ids))]
}
