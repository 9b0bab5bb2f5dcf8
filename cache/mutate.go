package cache

import (
	"fmt"
	"path/filepath"

	"github.com/memkeep/memkeep/format"
)

// Mutations follow one ordering, uniformly: compute the new state,
// persist the affected file(s), then commit in memory. A failed persist
// therefore never leaves the in-memory view ahead of disk.

const rootKey = "root"

func linksKey(context string) string { return "links/" + context }
func subKey(key string) string       { return "sub/" + key }

// InitRoot provisions the root document for a corpus that has none yet.
func (c *Cache) InitRoot(root *format.RootMemory) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	c.mu.RLock()
	loaded, exists := c.loaded, c.root != nil
	c.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}
	if exists {
		return ErrRootExists
	}

	if root.Contexts == nil {
		root.Contexts = make(map[string]format.Context)
	}
	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}

	c.mu.Lock()
	c.root = copyRoot(root)
	c.mu.Unlock()
	c.logger.Info().Str("project", root.Project).Msg("root document initialized")
	return nil
}

// UpdateRoot replaces one free-form section of the root document and
// bumps its last-updated timestamp.
func (c *Cache) UpdateRoot(section, value string) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	root, err := c.Root()
	if err != nil {
		return err
	}
	switch section {
	case "project":
		root.Project = value
	case "architecture":
		root.Architecture = value
	case "objectives":
		root.Objectives = value
	default:
		return fmt.Errorf("unknown root section %q", section)
	}
	root.UpdatedAt = c.now()

	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}

	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	return nil
}

// AddContext registers a context in the root document and provisions its
// empty link table.
func (c *Cache) AddContext(name string, ctx format.Context) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	root, err := c.Root()
	if err != nil {
		return err
	}
	if _, exists := root.Contexts[name]; exists {
		return fmt.Errorf("context %q already exists", name)
	}
	if ctx.LinkTable == "" {
		ctx.LinkTable = name + format.LinkTableExt
	}
	root.Contexts[name] = ctx
	root.UpdatedAt = c.now()
	root.Counters.Contexts = len(root.Contexts)

	if err := format.WriteLinks(c.fs, c.layout.LinkTablePath(name), nil); err != nil {
		return fmt.Errorf("provisioning link table: %w", err)
	}
	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}

	c.mu.Lock()
	c.root = root
	c.links[name] = nil
	c.mu.Unlock()
	c.logger.Info().Str("context", name).Msg("context added")
	return nil
}

// RemoveContext removes a context from the root document and cascades to
// its link table and submemory documents. Leaf documents are owned by the
// caller and are not touched here.
func (c *Cache) RemoveContext(name string) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	root, err := c.Root()
	if err != nil {
		return err
	}
	if _, exists := root.Contexts[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownContext, name)
	}
	delete(root.Contexts, name)
	root.UpdatedAt = c.now()
	root.Counters.Contexts = len(root.Contexts)

	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}
	if err := c.fs.Remove(c.layout.LinkTablePath(name)); err != nil {
		return err
	}
	if err := c.fs.RemoveAll(filepath.Join(c.layout.Dir, format.SubsDirName, name)); err != nil {
		return err
	}

	c.mu.Lock()
	c.root = root
	delete(c.links, name)
	for key, sub := range c.subs {
		if sub.Context == name {
			delete(c.subs, key)
		}
	}
	c.mu.Unlock()
	c.logger.Info().Str("context", name).Msg("context removed")
	return nil
}

// AddLink appends a link to a context's table and returns its index.
func (c *Cache) AddLink(context string, link format.Link) (int, error) {
	unlock := c.writers.lock(linksKey(context))
	defer unlock()

	table, err := c.Links(context)
	if err != nil {
		return 0, err
	}
	link.Context = context
	table = append(table, link)

	if err := c.persistLinks(context, table); err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.links[context] = table
	c.mu.Unlock()
	return len(table) - 1, nil
}

// UpdateLink replaces the link at index in a context's table.
func (c *Cache) UpdateLink(context string, index int, link format.Link) error {
	unlock := c.writers.lock(linksKey(context))
	defer unlock()

	table, err := c.Links(context)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(table) {
		return fmt.Errorf("%w: %s[%d]", ErrUnknownLink, context, index)
	}
	link.Context = context
	table[index] = link

	if err := c.persistLinks(context, table); err != nil {
		return err
	}

	c.mu.Lock()
	c.links[context] = table
	c.mu.Unlock()
	return nil
}

// RemoveLink deletes the link at index from a context's table.
func (c *Cache) RemoveLink(context string, index int) error {
	unlock := c.writers.lock(linksKey(context))
	defer unlock()

	table, err := c.Links(context)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(table) {
		return fmt.Errorf("%w: %s[%d]", ErrUnknownLink, context, index)
	}
	table = append(table[:index], table[index+1:]...)

	if err := c.persistLinks(context, table); err != nil {
		return err
	}

	c.mu.Lock()
	c.links[context] = table
	c.mu.Unlock()
	return nil
}

func (c *Cache) persistLinks(context string, table []format.Link) error {
	if err := format.WriteLinks(c.fs, c.layout.LinkTablePath(context), table); err != nil {
		return err
	}
	return c.touchRoot(len(table), context)
}

// touchRoot bumps the root's last-updated timestamp and link counter
// after a link table write. The root may legitimately be absent when
// link tables are manipulated during repair.
func (c *Cache) touchRoot(contextLinks int, context string) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	root, err := c.Root()
	if err != nil {
		if err == ErrRootMissing {
			return nil
		}
		return err
	}
	total := contextLinks
	c.mu.RLock()
	for name, table := range c.links {
		if name != context {
			total += len(table)
		}
	}
	c.mu.RUnlock()
	root.UpdatedAt = c.now()
	root.Counters.Links = total
	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}
	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	return nil
}

// SetSubmemory creates or replaces the submemory document stored under
// key "context/subcontext".
func (c *Cache) SetSubmemory(key string, sub *format.Submemory) error {
	unlock := c.writers.lock(subKey(key))
	defer unlock()

	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}

	path := c.layout.SubmemoryPath(sub.Context, sub.Subcontext)
	if err := format.WriteSubmemory(c.fs, path, sub); err != nil {
		return err
	}

	cp := *sub
	c.mu.Lock()
	c.subs[key] = &cp
	count := len(c.subs)
	c.mu.Unlock()
	return c.touchRootSubmemories(count)
}

// RemoveSubmemory deletes the submemory document stored under key.
func (c *Cache) RemoveSubmemory(key string) error {
	unlock := c.writers.lock(subKey(key))
	defer unlock()

	sub, err := c.Submemory(key)
	if err != nil {
		return err
	}
	if err := c.fs.Remove(c.layout.SubmemoryPath(sub.Context, sub.Subcontext)); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.subs, key)
	count := len(c.subs)
	c.mu.Unlock()
	return c.touchRootSubmemories(count)
}

func (c *Cache) touchRootSubmemories(count int) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	root, err := c.Root()
	if err != nil {
		if err == ErrRootMissing {
			return nil
		}
		return err
	}
	root.UpdatedAt = c.now()
	root.Counters.Submemories = count
	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}
	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	return nil
}

// BumpMemoryCount adjusts the persisted leaf-document counter. The cache
// does not own leaf documents; their creator reports count changes here
// so the root document stays self-describing.
func (c *Cache) BumpMemoryCount(delta int) error {
	unlock := c.writers.lock(rootKey)
	defer unlock()

	root, err := c.Root()
	if err != nil {
		if err == ErrRootMissing {
			return nil
		}
		return err
	}
	root.Counters.Memories += delta
	if root.Counters.Memories < 0 {
		root.Counters.Memories = 0
	}
	root.UpdatedAt = c.now()
	if err := format.WriteRoot(c.fs, c.layout.RootPath(), root); err != nil {
		return err
	}
	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	return nil
}
