package format

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/memkeep/memkeep/fsio"
)

// Importance grades a leaf document.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// ValidImportance reports whether v is one of the four recognized grades.
func ValidImportance(v Importance) bool {
	switch v {
	case ImportanceLow, ImportanceMedium, ImportanceHigh, ImportanceCritical:
		return true
	}
	return false
}

// Frontmatter is the structured metadata header of a leaf document.
type Frontmatter struct {
	ID         string     `yaml:"id" json:"id"`
	Title      string     `yaml:"title" json:"title"`
	Context    string     `yaml:"context" json:"context"`
	Subcontext string     `yaml:"subcontext" json:"subcontext"`
	CreatedAt  time.Time  `yaml:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `yaml:"updated_at" json:"updated_at"`
	Tags       []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Importance Importance `yaml:"importance" json:"importance"`
}

// Memory is the atomic unit of stored content: a frontmatter header plus
// a free-text body. Bodies are never cached; they are read on demand
// through this adapter.
type Memory struct {
	Frontmatter `yaml:",inline"`
	Content     string `yaml:"-" json:"content"`
}

const frontmatterDelimiter = "---"

// ReadMemory parses a leaf document: a '---' delimited YAML frontmatter
// block followed by the free-text body.
func ReadMemory(fs fsio.FS, path string) (*Memory, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMemory(data, path)
}

// ParseMemory decodes a leaf document from raw bytes.
func ParseMemory(data []byte, path string) (*Memory, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") {
		return nil, fmt.Errorf("decoding memory %s: missing frontmatter delimiter", path)
	}
	rest := text[len(frontmatterDelimiter)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelimiter)
	if end < 0 {
		return nil, fmt.Errorf("decoding memory %s: unterminated frontmatter", path)
	}
	header := rest[:end]
	body := rest[end+1+len(frontmatterDelimiter):]
	body = strings.TrimPrefix(body, "\n")

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("decoding memory frontmatter %s: %w", path, err)
	}
	// tags come back exactly as stored; normalization happens at create
	// and repair time, never inside the adapter
	return &Memory{Frontmatter: fm, Content: body}, nil
}

// WriteMemory durably writes a leaf document.
func WriteMemory(fs fsio.FS, path string, mem *Memory) error {
	data, err := EncodeMemory(mem)
	if err != nil {
		return err
	}
	return fs.WriteFile(path, data)
}

// EncodeMemory renders a leaf document to its on-disk form.
func EncodeMemory(mem *Memory) ([]byte, error) {
	header, err := yaml.Marshal(mem.Frontmatter)
	if err != nil {
		return nil, fmt.Errorf("encoding memory frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString(frontmatterDelimiter + "\n")
	b.Write(header)
	b.WriteString(frontmatterDelimiter + "\n")
	// the body goes out byte for byte so read(write(x)) == x
	b.WriteString(mem.Content)
	return []byte(b.String()), nil
}
