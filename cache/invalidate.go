package cache

import (
	"fmt"

	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/fsio"
)

// scopeKind is a closed set; Invalidate matches it exhaustively.
type scopeKind int

const (
	scopeRoot scopeKind = iota
	scopeLinks
	scopeSubmemory
	scopeAll
)

// Scope selects what Invalidate re-reads from disk. Construct one with
// ScopeRoot, ScopeLinks, ScopeSubmemory or ScopeAll.
type Scope struct {
	kind scopeKind
	key  string
}

func ScopeRoot() Scope                { return Scope{kind: scopeRoot} }
func ScopeLinks(context string) Scope { return Scope{kind: scopeLinks, key: context} }
func ScopeSubmemory(key string) Scope { return Scope{kind: scopeSubmemory, key: key} }
func ScopeAll() Scope                 { return Scope{kind: scopeAll} }

// Invalidate forces a re-read from disk for the selected scope. It is
// the escape hatch for collaborators that have written representation
// files directly (imports, external repair tools).
func (c *Cache) Invalidate(scope Scope) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}

	switch scope.kind {
	case scopeAll:
		return c.LoadAll()

	case scopeRoot:
		unlock := c.writers.lock(rootKey)
		defer unlock()
		root, err := c.readRoot()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.root = root
		c.mu.Unlock()
		return nil

	case scopeLinks:
		unlock := c.writers.lock(linksKey(scope.key))
		defer unlock()
		table, err := format.ReadLinks(c.fs, c.layout.LinkTablePath(scope.key))
		if err != nil && !fsio.IsNotFound(err) {
			return err
		}
		c.mu.Lock()
		if fsio.IsNotFound(err) {
			delete(c.links, scope.key)
		} else {
			c.links[scope.key] = table
		}
		c.mu.Unlock()
		return nil

	case scopeSubmemory:
		unlock := c.writers.lock(subKey(scope.key))
		defer unlock()
		context, subcontext, ok := splitSubmemoryKey(scope.key)
		if !ok {
			return fmt.Errorf("invalid submemory key %q", scope.key)
		}
		sub, err := format.ReadSubmemory(c.fs, c.layout.SubmemoryPath(context, subcontext))
		if err != nil && !fsio.IsNotFound(err) {
			return err
		}
		c.mu.Lock()
		if fsio.IsNotFound(err) {
			delete(c.subs, scope.key)
		} else {
			c.subs[scope.key] = sub
		}
		c.mu.Unlock()
		return nil
	}
	return fmt.Errorf("unhandled invalidation scope %d", scope.kind)
}

func splitSubmemoryKey(key string) (context, subcontext string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], i > 0 && i < len(key)-1
		}
	}
	return "", "", false
}
