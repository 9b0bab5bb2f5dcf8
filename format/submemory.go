package format

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/memkeep/memkeep/fsio"
)

// MemoryReference points a submemory at one leaf document.
type MemoryReference struct {
	Title   string `yaml:"title" json:"title"`
	Path    string `yaml:"path" json:"path"`
	Summary string `yaml:"summary,omitempty" json:"summary,omitempty"`
}

// Submemory is a curated summary grouping several leaf-document
// references under shared tags and priority.
type Submemory struct {
	ID              string            `yaml:"id" json:"id"`
	Context         string            `yaml:"context" json:"context"`
	Subcontext      string            `yaml:"subcontext" json:"subcontext"`
	CreatedAt       time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `yaml:"updated_at" json:"updated_at"`
	Tags            []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Priority        int               `yaml:"priority" json:"priority"`
	References      []MemoryReference `yaml:"memory_references" json:"memory_references"`
	RelatedContexts []string          `yaml:"related_contexts,omitempty" json:"related_contexts,omitempty"`
}

// ReadSubmemory reads one grouped-summary document.
func ReadSubmemory(fs fsio.FS, path string) (*Submemory, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sub Submemory
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decoding submemory %s: %w", path, err)
	}
	return &sub, nil
}

// WriteSubmemory durably writes one grouped-summary document.
func WriteSubmemory(fs fsio.FS, path string, sub *Submemory) error {
	data, err := yaml.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding submemory: %w", err)
	}
	return fs.WriteFile(path, data)
}
