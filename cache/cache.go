// Package cache holds the authoritative in-memory view of a memory
// corpus: the root document, every per-context link table and every
// submemory document. Leaf-document bodies are not cached; they are read
// on demand through the format adapters.
//
// Every mutation persists the affected representation file before the
// in-memory commit, uniformly, so a successful return always implies
// durable state and a failed persist leaves the in-memory view
// untouched.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/fsio"
)

var (
	// ErrNotLoaded is returned by reads and mutations before LoadAll.
	ErrNotLoaded = errors.New("cache not loaded")
	// ErrRootMissing signals that no root document exists on disk yet.
	ErrRootMissing = errors.New("root document missing")
	// ErrUnknownContext is returned for link operations on a context the
	// root does not know.
	ErrUnknownContext = errors.New("unknown context")
	// ErrUnknownLink is returned when a link index is out of range.
	ErrUnknownLink = errors.New("unknown link index")
	// ErrUnknownSubmemory is returned for a submemory key not in the cache.
	ErrUnknownSubmemory = errors.New("unknown submemory")
	// ErrRootExists guards double initialization of the root document.
	ErrRootExists = errors.New("root document already exists")
)

// Cache is the single authoritative in-memory corpus view with
// write-through persistence.
type Cache struct {
	fs     fsio.FS
	layout format.Layout
	logger zerolog.Logger
	now    func() time.Time

	writers *keyedMutex

	mu     sync.RWMutex
	loaded bool
	root   *format.RootMemory
	links  map[string][]format.Link
	subs   map[string]*format.Submemory
}

// New builds a Cache over the memory root at dir. Call LoadAll before
// any read or mutation.
func New(filesystem fsio.FS, dir string, now func() time.Time, logger zerolog.Logger) *Cache {
	return &Cache{
		fs:      filesystem,
		layout:  format.Layout{Dir: dir},
		logger:  logger.With().Str("component", "cache").Logger(),
		now:     now,
		writers: newKeyedMutex(),
		links:   make(map[string][]format.Link),
		subs:    make(map[string]*format.Submemory),
	}
}

// Layout exposes the path layout the cache persists through.
func (c *Cache) Layout() format.Layout { return c.layout }

// LoadAll populates the in-memory view from disk. A missing root
// document is not an error here; reads will report ErrRootMissing until
// InitRoot provisions one. A present-but-corrupt file is an error.
func (c *Cache) LoadAll() error {
	root, err := c.readRoot()
	if err != nil {
		return err
	}
	links, err := c.readAllLinks(root)
	if err != nil {
		return err
	}
	subs, err := c.readAllSubmemories()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.root = root
	c.links = links
	c.subs = subs
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info().
		Bool("rootPresent", root != nil).
		Int("linkTables", len(links)).
		Int("submemories", len(subs)).
		Msg("cache loaded")
	return nil
}

func (c *Cache) readRoot() (*format.RootMemory, error) {
	root, err := format.ReadRoot(c.fs, c.layout.RootPath())
	if err != nil {
		if fsio.IsNotFound(err) {
			c.logger.Debug().Msg("no root document on disk")
			return nil, nil
		}
		return nil, err
	}
	return root, nil
}

func (c *Cache) readAllLinks(root *format.RootMemory) (map[string][]format.Link, error) {
	links := make(map[string][]format.Link)
	linksDir := filepath.Join(c.layout.Dir, format.LinksDirName)
	entries, err := c.fs.ReadDir(linksDir)
	if err != nil {
		if fsio.IsNotFound(err) {
			return links, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, format.LinkTableExt) {
			continue
		}
		context := strings.TrimSuffix(name, format.LinkTableExt)
		table, err := format.ReadLinks(c.fs, filepath.Join(linksDir, name))
		if err != nil {
			return nil, fmt.Errorf("loading link table for context %q: %w", context, err)
		}
		links[context] = table
	}
	// Contexts provisioned but whose table file is gone still get an
	// entry so link reads distinguish "empty" from "unknown context".
	if root != nil {
		for name := range root.Contexts {
			if _, ok := links[name]; !ok {
				c.logger.Warn().Str("context", name).Msg("context has no link table file")
				links[name] = nil
			}
		}
	}
	return links, nil
}

func (c *Cache) readAllSubmemories() (map[string]*format.Submemory, error) {
	subs := make(map[string]*format.Submemory)
	subsDir := filepath.Join(c.layout.Dir, format.SubsDirName)
	if _, err := c.fs.Stat(subsDir); err != nil {
		if fsio.IsNotFound(err) {
			return subs, nil
		}
		return nil, err
	}
	err := c.fs.WalkDir(subsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, format.SubmemoryExt) {
			return nil
		}
		sub, err := format.ReadSubmemory(c.fs, path)
		if err != nil {
			return fmt.Errorf("loading submemory %s: %w", path, err)
		}
		subs[format.SubmemoryKey(sub.Context, sub.Subcontext)] = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// Loaded reports whether LoadAll has completed.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Root returns a copy of the root document. ErrRootMissing signals an
// absent root; it is a state, not a failure.
func (c *Cache) Root() (*format.RootMemory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	if c.root == nil {
		return nil, ErrRootMissing
	}
	return copyRoot(c.root), nil
}

// RootSection returns one free-form section of the root document.
func (c *Cache) RootSection(section string) (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	switch section {
	case "project":
		return root.Project, nil
	case "architecture":
		return root.Architecture, nil
	case "objectives":
		return root.Objectives, nil
	default:
		return "", fmt.Errorf("unknown root section %q", section)
	}
}

// Links returns the ordered link collection for one context.
func (c *Cache) Links(context string) ([]format.Link, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	table, ok := c.links[context]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContext, context)
	}
	out := make([]format.Link, len(table))
	copy(out, table)
	return out, nil
}

// AllLinks returns every context's link collection.
func (c *Cache) AllLinks() (map[string][]format.Link, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	out := make(map[string][]format.Link, len(c.links))
	for context, table := range c.links {
		cp := make([]format.Link, len(table))
		copy(cp, table)
		out[context] = cp
	}
	return out, nil
}

// Submemory returns the submemory stored under key "context/subcontext".
func (c *Cache) Submemory(key string) (*format.Submemory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	sub, ok := c.subs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubmemory, key)
	}
	cp := *sub
	return &cp, nil
}

// AllSubmemories returns every submemory document.
func (c *Cache) AllSubmemories() ([]*format.Submemory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	out := make([]*format.Submemory, 0, len(c.subs))
	for _, sub := range c.subs {
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

func copyRoot(root *format.RootMemory) *format.RootMemory {
	cp := *root
	cp.Contexts = make(map[string]format.Context, len(root.Contexts))
	for name, ctx := range root.Contexts {
		cp.Contexts[name] = ctx
	}
	return &cp
}
