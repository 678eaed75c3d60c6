package prooflabel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type taxonomyFile struct {
	Categories []Category `json:"categories" yaml:"categories"`
}

// LoadTaxonomy reads an ordered category list from a YAML or JSON file. An
// empty path returns the built-in taxonomy.
func LoadTaxonomy(path string, accentSensitive bool) (*Taxonomy, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return NewTaxonomy(DefaultCategories(), accentSensitive)
	}
	data, err := os.ReadFile(filepath.Clean(clean))
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var file taxonomyFile
	if isYAMLPath(clean) {
		err = yaml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	tax, err := NewTaxonomy(file.Categories, accentSensitive)
	if err != nil {
		return nil, fmt.Errorf("compile taxonomy %s: %w", filepath.Base(clean), err)
	}
	return tax, nil
}

// EnsureTaxonomyFile writes the built-in categories to path when the file
// does not exist yet, giving users a starting point for edits.
func EnsureTaxonomyFile(path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil
	}
	clean = filepath.Clean(clean)
	if _, err := os.Stat(clean); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat taxonomy: %w", err)
	}
	if dir := filepath.Dir(clean); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create taxonomy dir: %w", err)
		}
	}
	file := taxonomyFile{Categories: DefaultCategories()}
	var (
		data []byte
		err  error
	)
	if isYAMLPath(clean) {
		data, err = yaml.Marshal(file)
	} else {
		data, err = json.MarshalIndent(file, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode taxonomy: %w", err)
	}
	if err := os.WriteFile(clean, data, 0o644); err != nil {
		return fmt.Errorf("write taxonomy: %w", err)
	}
	return nil
}
