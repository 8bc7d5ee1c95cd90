// Package knowledge loads the medical knowledge base into the vector store.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/medical_knowledge.yaml
var defaultDataset []byte

// Document is one knowledge-base entry.
type Document struct {
	Condition string            `yaml:"condition"`
	Category  string            `yaml:"category"`
	Content   string            `yaml:"content"`
	Metadata  map[string]string `yaml:"metadata,omitempty"`
}

type dataset struct {
	Documents []Document `yaml:"documents"`
}

// Default returns the embedded dataset.
func Default() ([]Document, error) {
	return Parse(defaultDataset)
}

// LoadFile reads a YAML dataset from path; an empty path returns Default.
func LoadFile(path string) ([]Document, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML dataset. Documents without content are rejected.
func Parse(data []byte) ([]Document, error) {
	var ds dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing knowledge base: %w", err)
	}
	for i := range ds.Documents {
		d := &ds.Documents[i]
		d.Content = strings.TrimSpace(d.Content)
		if d.Content == "" {
			return nil, fmt.Errorf("knowledge document %d (%s) has no content", i, d.Condition)
		}
	}
	return ds.Documents, nil
}

// Payload returns the vector store payload for d.
func (d Document) Payload() map[string]any {
	p := make(map[string]any, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		p[k] = v
	}
	if d.Condition != "" {
		p["condition"] = d.Condition
	}
	if d.Category != "" {
		p["category"] = d.Category
	}
	return p
}
