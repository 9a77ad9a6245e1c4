package mapping

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ledgersync/internal/domain/account"
)

// DefaultCategory is the slug for transactions without a mapped category.
const DefaultCategory = "uncategorized"

var ErrInvalidTable = errors.New("invalid mapping table")

//go:embed default_table.yaml
var defaultTable []byte

// TypeMapper maps a provider container and subtype to a ledger account kind.
type TypeMapper interface {
	AccountKind(container, subtype string) account.KindType
}

// CategoryMapper maps a provider category identifier to a ledger category slug.
type CategoryMapper interface {
	Category(providerCategoryID string) string
}

// ContainerRule maps one provider container to a kind, optionally refined by subtype.
type ContainerRule struct {
	Default  account.KindType            `yaml:"default"`
	Subtypes map[string]account.KindType `yaml:"subtypes"`
}

// Table is the serializable form of the mapping.
type Table struct {
	AccountKinds    map[string]ContainerRule `yaml:"account_kinds"`
	FallbackKind    account.KindType         `yaml:"fallback_kind"`
	Categories      map[string]string        `yaml:"categories"`
	DefaultCategory string                   `yaml:"default_category"`
}

// Mapper is an immutable, table-driven TypeMapper and CategoryMapper.
type Mapper struct {
	kinds           map[string]ContainerRule
	fallbackKind    account.KindType
	categories      map[string]string
	defaultCategory string
}

var (
	_ TypeMapper     = (*Mapper)(nil)
	_ CategoryMapper = (*Mapper)(nil)
)

// New validates t and builds a Mapper from it.
func New(t Table) (*Mapper, error) {
	m := &Mapper{
		kinds:           make(map[string]ContainerRule, len(t.AccountKinds)),
		fallbackKind:    t.FallbackKind,
		categories:      make(map[string]string, len(t.Categories)),
		defaultCategory: t.DefaultCategory,
	}
	if m.fallbackKind == "" {
		m.fallbackKind = account.KindOtherAsset
	}
	if !m.fallbackKind.IsValid() {
		return nil, fmt.Errorf("%w: unknown fallback kind %q", ErrInvalidTable, m.fallbackKind)
	}
	if m.defaultCategory == "" {
		m.defaultCategory = DefaultCategory
	}

	for container, rule := range t.AccountKinds {
		if !rule.Default.IsValid() {
			return nil, fmt.Errorf("%w: container %q has unknown kind %q", ErrInvalidTable, container, rule.Default)
		}
		subtypes := make(map[string]account.KindType, len(rule.Subtypes))
		for subtype, kind := range rule.Subtypes {
			if !kind.IsValid() {
				return nil, fmt.Errorf("%w: subtype %s/%s has unknown kind %q", ErrInvalidTable, container, subtype, kind)
			}
			subtypes[strings.ToUpper(subtype)] = kind
		}
		m.kinds[container] = ContainerRule{Default: rule.Default, Subtypes: subtypes}
	}

	for id, slug := range t.Categories {
		if slug == "" {
			return nil, fmt.Errorf("%w: category %q has an empty slug", ErrInvalidTable, id)
		}
		m.categories[id] = slug
	}

	return m, nil
}

// Parse builds a Mapper from a YAML document.
func Parse(data []byte) (*Mapper, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return New(t)
}

// Load reads a YAML mapping table from path.
func Load(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping table: %w", err)
	}
	return Parse(data)
}

// Default returns the mapper built from the embedded table.
func Default() *Mapper {
	m, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded mapping table is invalid: %v", err))
	}
	return m
}

// LoadOrDefault loads path when set, otherwise returns Default().
func LoadOrDefault(path string) (*Mapper, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// AccountKind resolves the ledger kind for a provider container and subtype.
func (m *Mapper) AccountKind(container, subtype string) account.KindType {
	rule, ok := m.kinds[container]
	if !ok {
		return m.fallbackKind
	}
	if kind, ok := rule.Subtypes[strings.ToUpper(subtype)]; ok {
		return kind
	}
	return rule.Default
}

// Category resolves the ledger category slug for a provider category id.
func (m *Mapper) Category(providerCategoryID string) string {
	if providerCategoryID == "" {
		return m.defaultCategory
	}
	if slug, ok := m.categories[providerCategoryID]; ok {
		return slug
	}
	return m.defaultCategory
}
