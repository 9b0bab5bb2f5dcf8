// Package format implements the adapters for the four on-disk
// representations of the memory corpus and the normalization rules that
// map user-supplied names to filesystem-safe identifiers.
package format

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/memkeep/memkeep/fsio"
)

// RootMemory is the root document: project identity, the context map and
// aggregate counters.
type RootMemory struct {
	Project      string             `yaml:"project" json:"project"`
	CreatedAt    time.Time          `yaml:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `yaml:"updated_at" json:"updated_at"`
	Architecture string             `yaml:"architecture,omitempty" json:"architecture,omitempty"`
	Objectives   string             `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	Contexts     map[string]Context `yaml:"contexts" json:"contexts"`
	Counters     Counters           `yaml:"counters" json:"counters"`
}

// Context is a top-level named grouping. Its link table lives in a
// separate tabular file so context-level writes never touch the rest of
// the corpus.
type Context struct {
	Description string `yaml:"description" json:"description"`
	Priority    int    `yaml:"priority" json:"priority"`
	LinkTable   string `yaml:"link_table" json:"link_table"`
}

// Counters is the persisted aggregate snapshot kept in the root document.
// Live statistics are always recomputed from the in-memory structures;
// these values exist only so the root file is self-describing.
type Counters struct {
	Contexts    int `yaml:"contexts" json:"contexts"`
	Links       int `yaml:"links" json:"links"`
	Submemories int `yaml:"submemories" json:"submemories"`
	Memories    int `yaml:"memories" json:"memories"`
}

// NewRootMemory builds an empty root document for a project.
func NewRootMemory(project string, now time.Time) *RootMemory {
	return &RootMemory{
		Project:   project,
		CreatedAt: now,
		UpdatedAt: now,
		Contexts:  make(map[string]Context),
	}
}

// ReadRoot reads and decodes the root document. A missing file surfaces
// as fsio.ErrNotFound; a present-but-undecodable file is an error.
func ReadRoot(fs fsio.FS, path string) (*RootMemory, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var root RootMemory
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding root document %s: %w", path, err)
	}
	if root.Contexts == nil {
		root.Contexts = make(map[string]Context)
	}
	return &root, nil
}

// WriteRoot encodes and durably writes the root document.
func WriteRoot(fs fsio.FS, path string, root *RootMemory) error {
	data, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("encoding root document: %w", err)
	}
	return fs.WriteFile(path, data)
}
