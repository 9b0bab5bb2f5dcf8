package cache

import (
	"io/fs"
	"path/filepath"

	"github.com/samber/lo"
)

// Stats is computed on demand from the in-memory structures plus a disk
// walk for byte sizes. Nothing here is maintained incrementally; the
// in-memory view is the only source of truth for counts.
type Stats struct {
	Contexts      int            `json:"contexts"`
	Links         int            `json:"links"`
	LinksByCtx    map[string]int `json:"links_by_context"`
	Submemories   int            `json:"submemories"`
	MemoryFiles   int            `json:"memory_files"`
	TotalDiskSize int64          `json:"total_disk_size"`
}

// Stats summarizes the cached corpus.
func (c *Cache) Stats() (Stats, error) {
	c.mu.RLock()
	if !c.loaded {
		c.mu.RUnlock()
		return Stats{}, ErrNotLoaded
	}
	stats := Stats{
		Submemories: len(c.subs),
		LinksByCtx:  make(map[string]int, len(c.links)),
	}
	if c.root != nil {
		stats.Contexts = len(c.root.Contexts)
	}
	for context, table := range c.links {
		stats.LinksByCtx[context] = len(table)
	}
	c.mu.RUnlock()

	stats.Links = lo.Sum(lo.Values(stats.LinksByCtx))

	// Disk walk for file counts and byte sizes only.
	err := c.fs.WalkDir(c.layout.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if filepath.Clean(path) == filepath.Clean(c.layout.Dir) {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.TotalDiskSize += info.Size()
		if filepath.Ext(path) == ".md" && within(path, c.layout.MemoriesRoot()) {
			stats.MemoryFiles++
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("stats disk walk failed")
	}
	return stats, nil
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && (len(rel) < 2 || rel[:2] != "..")
}
