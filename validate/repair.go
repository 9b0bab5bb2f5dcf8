package validate

import (
	"slices"

	"github.com/samber/lo"

	"github.com/memkeep/memkeep/format"
)

// The Repair functions fix the auto-repairable subset of common defects
// in place and report whether anything changed. They never discard data
// that cannot be mechanically reconstructed.

// RepairSubmemory normalizes tags, de-duplicates reference paths
// (first occurrence wins), clamps priority into bounds and untangles
// inverted timestamps.
func RepairSubmemory(sub *format.Submemory) bool {
	changed := false

	if normalized := format.NormalizeTags(sub.Tags); !slices.Equal(normalized, sub.Tags) {
		sub.Tags = normalized
		changed = true
	}

	seen := make(map[string]struct{}, len(sub.References))
	deduped := lo.Filter(sub.References, func(ref format.MemoryReference, _ int) bool {
		if _, dup := seen[ref.Path]; dup {
			return false
		}
		seen[ref.Path] = struct{}{}
		return true
	})
	if len(deduped) != len(sub.References) {
		sub.References = deduped
		changed = true
	}

	if clamped := clampPriority(sub.Priority); clamped != sub.Priority {
		sub.Priority = clamped
		changed = true
	}

	if !sub.UpdatedAt.IsZero() && sub.UpdatedAt.Before(sub.CreatedAt) {
		sub.CreatedAt, sub.UpdatedAt = sub.UpdatedAt, sub.CreatedAt
		changed = true
	}
	return changed
}

// RepairMemory normalizes tags, defaults an unrecognized importance to
// medium and untangles inverted timestamps.
func RepairMemory(mem *format.Memory) bool {
	changed := false

	if normalized := format.NormalizeTags(mem.Tags); !slices.Equal(normalized, mem.Tags) {
		mem.Tags = normalized
		changed = true
	}
	if !format.ValidImportance(mem.Importance) {
		mem.Importance = format.ImportanceMedium
		changed = true
	}
	if mem.UpdatedAt.Before(mem.CreatedAt) {
		mem.CreatedAt, mem.UpdatedAt = mem.UpdatedAt, mem.CreatedAt
		changed = true
	}
	return changed
}

// RepairRoot clamps context priorities into bounds.
func RepairRoot(root *format.RootMemory) bool {
	changed := false
	for name, ctx := range root.Contexts {
		if clamped := clampPriority(ctx.Priority); clamped != ctx.Priority {
			ctx.Priority = clamped
			root.Contexts[name] = ctx
			changed = true
		}
	}
	return changed
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
