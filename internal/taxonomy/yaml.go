package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML override format. Declared order of categories is
// priority order, matching the compiled defaults.
type fileConfig struct {
	Technologies   []Category `yaml:"technologies"`
	RecipientTypes []Category `yaml:"recipient_types"`
}

// Load returns the taxonomy, applying overrides from the YAML file at path.
// An empty or missing path yields the defaults; that is not an error.
func Load(path string) (*Taxonomy, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("taxonomy: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("taxonomy: parse %s: %w", path, err)
	}

	if len(fc.Technologies) > 0 {
		t.Technologies = normalizeCategories(fc.Technologies)
	}
	if len(fc.RecipientTypes) > 0 {
		t.RecipientTypes = normalizeCategories(fc.RecipientTypes)
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("taxonomy: %s: %w", path, err)
	}
	return t, nil
}

// normalizeCategories lower-cases and trims keywords so matching stays
// case-insensitive regardless of how the file was written.
func normalizeCategories(cats []Category) []Category {
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		nc := Category{Name: strings.TrimSpace(c.Name)}
		for _, k := range c.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				nc.Keywords = append(nc.Keywords, k)
			}
		}
		out = append(out, nc)
	}
	return out
}
