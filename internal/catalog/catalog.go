// Package catalog holds the read-only prompt catalog keyed by category, level and tier.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/navigation"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Section is the prompt list for one (category, level, tier).
type Section struct {
	Notice  string   `yaml:"notice"`
	Prompts []string `yaml:"prompts"`
}

// UnmarshalYAML accepts either a bare list of prompts or a {notice, prompts} mapping.
func (s *Section) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&s.Prompts)
	}
	type plain Section
	return node.Decode((*plain)(s))
}

type levelDoc struct {
	ID    domain.Level             `yaml:"id"`
	Title string                   `yaml:"title"`
	Tiers map[domain.Tier]*Section `yaml:"tiers"`
}

type categoryDoc struct {
	ID     domain.Category `yaml:"id"`
	Title  string          `yaml:"title"`
	Intro  string          `yaml:"intro"`
	Levels []levelDoc      `yaml:"levels"`
}

type document struct {
	Categories []categoryDoc `yaml:"categories"`
}

// Catalog is an immutable snapshot. Revision changes whenever the content does.
type Catalog struct {
	revision   string
	categories []categoryDoc
	index      map[domain.Category]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a YAML or JSON catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog content.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}

	c := &Catalog{
		revision:   fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)),
		categories: doc.Categories,
		index:      make(map[domain.Category]int, len(doc.Categories)),
	}
	for i, cat := range doc.Categories {
		if strings.TrimSpace(string(cat.ID)) == "" {
			return nil, fmt.Errorf("category #%d has no id", i+1)
		}
		if strings.Contains(string(cat.ID), ":") {
			return nil, fmt.Errorf("category id %q must not contain ':'", cat.ID)
		}
		if _, dup := c.index[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q", cat.ID)
		}
		for _, lvl := range cat.Levels {
			if strings.TrimSpace(string(lvl.ID)) == "" || strings.Contains(string(lvl.ID), ":") {
				return nil, fmt.Errorf("category %q has an invalid level id %q", cat.ID, lvl.ID)
			}
			for tier := range lvl.Tiers {
				if !tier.Valid() {
					return nil, fmt.Errorf("category %q level %q: unknown tier %q", cat.ID, lvl.ID, tier)
				}
			}
		}
		c.index[cat.ID] = i
	}
	if err := c.checkTokenLengths(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkTokenLengths rejects ids that would render a button Telegram refuses. The prompt
// token of the last index is the longest one a level can produce.
func (c *Catalog) checkTokenLengths() error {
	for _, cat := range c.categories {
		for _, lvl := range cat.Levels {
			for _, tier := range domain.Tiers {
				tok := navigation.LevelToken(tier, cat.ID, lvl.ID).Encode()
				if s := lvl.Tiers[tier]; s != nil && len(s.Prompts) > 0 {
					tok = navigation.PromptToken(tier, cat.ID, lvl.ID, len(s.Prompts)-1, c.revision).Encode()
				}
				if len(tok) > navigation.MaxTokenBytes {
					return fmt.Errorf("category %q level %q: menu token %q is %d bytes, limit is %d",
						cat.ID, lvl.ID, tok, len(tok), navigation.MaxTokenBytes)
				}
			}
		}
	}
	return nil
}

// Revision identifies this snapshot's content.
func (c *Catalog) Revision() string {
	return c.revision
}

// Categories returns category ids in catalog order.
func (c *Catalog) Categories() []domain.Category {
	out := make([]domain.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat.ID)
	}
	return out
}

// Title returns the menu label of a category.
func (c *Catalog) Title(category domain.Category) string {
	if cat, ok := c.category(category); ok && cat.Title != "" {
		return cat.Title
	}
	return category.Title()
}

// Intro returns the free-text introduction of a category.
func (c *Catalog) Intro(category domain.Category) string {
	if cat, ok := c.category(category); ok {
		return cat.Intro
	}
	return ""
}

// HasCategory reports whether any level of category is unlocked for tier.
func (c *Catalog) HasCategory(category domain.Category, tier domain.Tier) bool {
	cat, ok := c.category(category)
	if !ok {
		return false
	}
	for _, lvl := range cat.Levels {
		if s, ok := lvl.Tiers[tier]; ok && s != nil && len(s.Prompts) > 0 {
			return true
		}
	}
	return false
}

// Level is a level id with its menu label.
type Level struct {
	ID    domain.Level
	Title string
}

// Levels returns every level of category in catalog order, locked or not.
func (c *Catalog) Levels(category domain.Category) []Level {
	cat, ok := c.category(category)
	if !ok {
		return nil
	}
	out := make([]Level, 0, len(cat.Levels))
	for _, lvl := range cat.Levels {
		title := lvl.Title
		if title == "" {
			title = lvl.ID.Title()
		}
		out = append(out, Level{ID: lvl.ID, Title: title})
	}
	return out
}

// Section looks up (category, level, tier). A miss is expected for locked combinations.
func (c *Catalog) Section(category domain.Category, level domain.Level, tier domain.Tier) (Section, bool) {
	cat, ok := c.category(category)
	if !ok {
		return Section{}, false
	}
	for _, lvl := range cat.Levels {
		if lvl.ID != level {
			continue
		}
		s, ok := lvl.Tiers[tier]
		if !ok || s == nil || len(s.Prompts) == 0 {
			return Section{}, false
		}
		return *s, true
	}
	return Section{}, false
}

// Prompt returns the prompt at index, never indexing out of bounds.
func (c *Catalog) Prompt(category domain.Category, level domain.Level, tier domain.Tier, index int) (string, bool) {
	s, ok := c.Section(category, level, tier)
	if !ok || index < 0 || index >= len(s.Prompts) {
		return "", false
	}
	return s.Prompts[index], true
}

func (c *Catalog) category(id domain.Category) (categoryDoc, bool) {
	i, ok := c.index[id]
	if !ok {
		return categoryDoc{}, false
	}
	return c.categories[i], true
}
