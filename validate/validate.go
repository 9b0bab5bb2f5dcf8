// Package validate checks corpus structures against their schema and
// business rules. Hard failures and soft issues are reported separately:
// an error means the value must not be persisted, a warning means it is
// usable but worth surfacing.
package validate

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/memkeep/memkeep/format"
)

// Priority bounds for contexts and submemories.
const (
	MinPriority = 0
	MaxPriority = 10
)

// TagCountAdvisory is the tag count above which a warning is raised.
// Deliberately advisory only: there is no hard cap.
const TagCountAdvisory = 12

// Issue is a single field-level finding.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Field + ": " + i.Message
}

// Result separates hard failures from soft issues.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the value can be persisted.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) errorf(field, msg string, args ...any) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: fmt.Sprintf(msg, args...)})
}

func (r *Result) warnf(field, msg string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: fmt.Sprintf(msg, args...)})
}

// Merge folds other into r.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Error implements error over the hard failures only.
func (r *Result) Error() string {
	msgs := lo.Map(r.Errors, func(i Issue, _ int) string { return i.String() })
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Root checks the root document: context names must be unique, non-empty
// and already normalized, priorities in bounds.
func Root(root *format.RootMemory) Result {
	var res Result
	if strings.TrimSpace(root.Project) == "" {
		res.errorf("project", "project name is empty")
	}
	for name, ctx := range root.Contexts {
		if name == "" {
			res.errorf("contexts", "context with empty name")
			continue
		}
		if normalized := format.Slugify(name); normalized != name {
			res.errorf("contexts."+name, "context name is not normalized (expected %q)", normalized)
		}
		if ctx.Priority < MinPriority || ctx.Priority > MaxPriority {
			res.errorf("contexts."+name+".priority", "priority %d outside [%d, %d]", ctx.Priority, MinPriority, MaxPriority)
		}
		if ctx.LinkTable == "" {
			res.warnf("contexts."+name+".link_table", "context has no link table file")
		}
	}
	if !root.UpdatedAt.IsZero() && root.UpdatedAt.Before(root.CreatedAt) {
		res.errorf("updated_at", "updated_at precedes created_at")
	}
	return res
}

// Link checks the shape of a single link record.
func Link(link format.Link) Result {
	var res Result
	if link.Context == "" {
		res.errorf("context", "link context is empty")
	}
	if link.Subcontext == "" {
		res.errorf("subcontext", "link subcontext is empty")
	}
	if link.DocumentPath == "" {
		res.errorf("document_path", "link document path is empty")
	} else if strings.HasPrefix(link.DocumentPath, "/") || strings.Contains(link.DocumentPath, "..") {
		res.errorf("document_path", "document path %q must be relative to the memories root", link.DocumentPath)
	}
	if strings.TrimSpace(link.Description) == "" {
		res.warnf("description", "link has no description")
	}
	return res
}

// Submemory checks a grouped-summary document. Duplicate reference paths
// are an error; an empty reference list and a high tag count are
// warnings.
func Submemory(sub *format.Submemory) Result {
	var res Result
	if sub.ID == "" {
		res.errorf("id", "submemory id is empty")
	}
	if sub.Context == "" {
		res.errorf("context", "submemory context is empty")
	}
	if sub.Subcontext == "" {
		res.errorf("subcontext", "submemory subcontext is empty")
	}
	if sub.Priority < MinPriority || sub.Priority > MaxPriority {
		res.errorf("priority", "priority %d outside [%d, %d]", sub.Priority, MinPriority, MaxPriority)
	}
	if len(sub.References) == 0 {
		res.warnf("memory_references", "submemory has no memory references")
	}
	seen := make(map[string]struct{}, len(sub.References))
	for i, ref := range sub.References {
		field := fmt.Sprintf("memory_references[%d]", i)
		if ref.Path == "" {
			res.errorf(field+".path", "reference path is empty")
			continue
		}
		if _, dup := seen[ref.Path]; dup {
			res.errorf(field+".path", "duplicate reference path %q", ref.Path)
		}
		seen[ref.Path] = struct{}{}
	}
	if len(sub.Tags) > TagCountAdvisory {
		res.warnf("tags", "%d tags exceeds the advisory limit of %d", len(sub.Tags), TagCountAdvisory)
	}
	if !sub.UpdatedAt.IsZero() && sub.UpdatedAt.Before(sub.CreatedAt) {
		res.errorf("updated_at", "updated_at precedes created_at")
	}
	return res
}

// Memory checks a leaf document's frontmatter.
func Memory(mem *format.Memory) Result {
	var res Result
	if mem.ID == "" {
		res.errorf("id", "memory id is empty")
	}
	if strings.TrimSpace(mem.Title) == "" {
		res.errorf("title", "memory title is empty")
	}
	if mem.Context == "" {
		res.errorf("context", "memory context is empty")
	}
	if mem.Subcontext == "" {
		res.errorf("subcontext", "memory subcontext is empty")
	}
	if !format.ValidImportance(mem.Importance) {
		res.errorf("importance", "importance %q is not one of low, medium, high, critical", mem.Importance)
	}
	if mem.UpdatedAt.Before(mem.CreatedAt) {
		res.errorf("updated_at", "updated_at precedes created_at")
	}
	for i, tag := range mem.Tags {
		if format.Slugify(tag) == "" {
			res.errorf(fmt.Sprintf("tags[%d]", i), "tag %q normalizes to an empty identifier", tag)
		}
	}
	if len(mem.Tags) > TagCountAdvisory {
		res.warnf("tags", "%d tags exceeds the advisory limit of %d", len(mem.Tags), TagCountAdvisory)
	}
	if strings.TrimSpace(mem.Content) == "" {
		res.warnf("content", "memory body is empty")
	}
	return res
}
