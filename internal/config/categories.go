package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/bakkerme/newsreader/internal/core"
	"gopkg.in/yaml.v3"
)

// CategoriesDocument is the top-level structure of a categories.yaml file.
type CategoriesDocument struct {
	Categories []core.Category `yaml:"categories"`
	// Refresh is a cron schedule used by watch mode when no -watch flag is given.
	Refresh string `yaml:"refresh,omitempty"`
}

func LoadCategories(path string) (*CategoriesDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCategories(data)
}

func ParseCategories(data []byte) (*CategoriesDocument, error) {
	var doc CategoriesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse categories document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *CategoriesDocument) Validate() error {
	seen := map[string]bool{}
	for i, c := range d.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("categories[%d]: name is required", i)
		}
		if strings.ContainsAny(name, "/?#") {
			return fmt.Errorf("categories[%d]: name %q must be a single path segment", i, name)
		}
		if seen[name] {
			return fmt.Errorf("categories[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}

// Find returns the category with the given name, or nil.
func (d *CategoriesDocument) Find(name string) *core.Category {
	if d == nil {
		return nil
	}
	for i := range d.Categories {
		if d.Categories[i].Name == name {
			c := d.Categories[i]
			return &c
		}
	}
	return nil
}
