package audit

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Slot is the structural position of a category inside an entity's drawer
// group.
type Slot string

const (
	SlotDSP      Slot = "dsp"
	SlotAdServer Slot = "adserver"
	SlotOther    Slot = "other"
)

// Category is one structural grouping of fields for display.
type Category struct {
	ID      string     `yaml:"id"`
	Entity  EntityType `yaml:"entity"`
	Slot    Slot       `yaml:"slot"`
	Section string     `yaml:"section"` // drawer section id prefix
	Title   string     `yaml:"title"`
	Theme   string     `yaml:"theme"`
}

// FieldSpec is the catalog entry for one canonical field key.
type FieldSpec struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Category string `yaml:"category"`

	// AlwaysRecord keeps the field in create snapshots even when empty.
	AlwaysRecord bool `yaml:"always_record"`

	// Hidden fields are recorded but never shown in the drawer.
	Hidden bool `yaml:"hidden"`

	// Internal fields are form plumbing and are never recorded.
	Internal bool `yaml:"internal"`
}

// Alias rewrites a legacy field key to its canonical key. Since is the
// catalog version that introduced the rename.
type Alias struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Since int    `yaml:"since"`
}

type catalogFile struct {
	Version    int         `yaml:"version"`
	Categories []Category  `yaml:"categories"`
	Other      []Category  `yaml:"other"`
	Fields     []FieldSpec `yaml:"fields"`
	Aliases    []Alias     `yaml:"aliases"`
}

// Catalog is the read-only field metadata shared by the recorder, the
// reconciler and the drawer. It is safe for concurrent use.
type Catalog struct {
	version    int
	fields     map[string]FieldSpec
	order      map[string]int
	aliases    map[string]string
	categories map[string]Category
	byEntity   map[EntityType][]Category
	other      map[EntityType]Category
}

// ParseCatalog builds a Catalog from YAML and validates its references.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing field catalog: %w", err)
	}

	c := &Catalog{
		version:    f.Version,
		fields:     make(map[string]FieldSpec, len(f.Fields)),
		order:      make(map[string]int, len(f.Fields)),
		aliases:    make(map[string]string, len(f.Aliases)),
		categories: make(map[string]Category, len(f.Categories)),
		byEntity:   make(map[EntityType][]Category),
		other:      make(map[EntityType]Category),
	}

	for _, cat := range f.Categories {
		if !cat.Entity.Valid() {
			return nil, fmt.Errorf("category %q: unknown entity %q", cat.ID, cat.Entity)
		}
		if _, dup := c.categories[cat.ID]; dup {
			return nil, fmt.Errorf("category %q declared twice", cat.ID)
		}
		c.categories[cat.ID] = cat
		c.byEntity[cat.Entity] = append(c.byEntity[cat.Entity], cat)
	}
	for _, cat := range f.Other {
		if !cat.Entity.Valid() {
			return nil, fmt.Errorf("other category %q: unknown entity %q", cat.ID, cat.Entity)
		}
		c.other[cat.Entity] = cat
	}
	for _, et := range []EntityType{EntityCampaign, EntityAdGroup} {
		if _, ok := c.other[et]; !ok {
			return nil, fmt.Errorf("no fallback category for %s", et)
		}
	}

	for i, fs := range f.Fields {
		if fs.Key == "" {
			return nil, fmt.Errorf("field #%d has no key", i)
		}
		if _, dup := c.fields[fs.Key]; dup {
			return nil, fmt.Errorf("field %q declared twice", fs.Key)
		}
		if fs.Category != "" {
			if _, ok := c.categories[fs.Category]; !ok {
				return nil, fmt.Errorf("field %q: unknown category %q", fs.Key, fs.Category)
			}
		}
		c.fields[fs.Key] = fs
		c.order[fs.Key] = i
	}

	for _, a := range f.Aliases {
		if _, ok := c.fields[a.To]; !ok {
			return nil, fmt.Errorf("alias %s -> %s: target is not a catalog field", a.From, a.To)
		}
		if _, ok := c.fields[a.From]; ok {
			return nil, fmt.Errorf("alias %s -> %s: source is itself a catalog field", a.From, a.To)
		}
		c.aliases[a.From] = a.To
	}

	return c, nil
}

// LoadCatalogFile reads a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading field catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the catalog compiled into the binary. It panics if
// the embedded YAML is invalid, which catalog_test.go guards against.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(embeddedCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Version is the catalog schema version.
func (c *Catalog) Version() int { return c.version }

// Canonical resolves a raw field key to the key used for storage and lookup.
func (c *Catalog) Canonical(key string) string {
	if to, ok := c.aliases[key]; ok {
		return to
	}
	return key
}

// Label returns the display label for a key, or the key itself when the
// catalog does not know it.
func (c *Catalog) Label(key string) string {
	if fs, ok := c.fields[c.Canonical(key)]; ok && fs.Label != "" {
		return fs.Label
	}
	return key
}

// AlwaysRecord reports whether create snapshots keep the field when empty.
func (c *Catalog) AlwaysRecord(key string) bool {
	return c.fields[c.Canonical(key)].AlwaysRecord
}

// IsInternal reports whether the key is form plumbing that is never audited.
func (c *Catalog) IsInternal(key string) bool {
	return c.fields[c.Canonical(key)].Internal
}

// IsHidden reports whether the drawer omits the field.
func (c *Catalog) IsHidden(key string) bool {
	return c.fields[c.Canonical(key)].Hidden
}

// CategoryFor returns the category a field displays under for an entity
// type. Fields whose category belongs to another entity type, or that have
// none, fall back to that entity's "other" category.
func (c *Catalog) CategoryFor(et EntityType, key string) Category {
	if fs, ok := c.fields[c.Canonical(key)]; ok && fs.Category != "" {
		if cat := c.categories[fs.Category]; cat.Entity == et {
			return cat
		}
	}
	return c.other[et]
}

// Sections returns the display order of categories for an entity type, with
// the fallback category last.
func (c *Catalog) Sections(et EntityType) []Category {
	out := make([]Category, 0, len(c.byEntity[et])+1)
	out = append(out, c.byEntity[et]...)
	return append(out, c.other[et])
}

// SortKeys orders raw keys by catalog position; unknown keys follow in
// lexical order.
func (c *Catalog) SortKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.SliceStable(out, func(i, j int) bool {
		oi, ki := c.order[c.Canonical(out[i])]
		oj, kj := c.order[c.Canonical(out[j])]
		switch {
		case ki && kj:
			if oi != oj {
				return oi < oj
			}
			return out[i] < out[j]
		case ki:
			return true
		case kj:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}
