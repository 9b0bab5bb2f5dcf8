// Package project exposes the collaborator-facing handle over one memory
// corpus. Open returns an explicit *Project; there is no process-global
// state, so multiple projects can be open concurrently without
// cross-talk.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/memkeep/memkeep/cache"
	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/fsio"
	"github.com/memkeep/memkeep/index"
	"github.com/memkeep/memkeep/validate"
)

var (
	// ErrContextExists guards double context creation.
	ErrContextExists = errors.New("context already exists")
	// ErrUnknownContext is returned when an operation names a context the
	// root does not know.
	ErrUnknownContext = errors.New("unknown context")
)

// Options configures an opened project. Zero values select production
// defaults; tests inject a deterministic clock and ID generator.
type Options struct {
	FS     fsio.FS
	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
	// Project overrides the project name recorded when the root document
	// is first provisioned.
	Project string
}

// Project is the handle every core operation is threaded through.
type Project struct {
	dir     string
	name    string
	fs      fsio.FS
	layout  format.Layout
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
	cache   *cache.Cache
	index   *index.Index
}

// Open binds a project handle to the memory root at dir and opens its
// search index. Call Load before reading or mutating the corpus.
func Open(dir string, opts Options) (*Project, error) {
	if opts.FS == nil {
		opts.FS = fsio.OS{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	name := opts.Project
	if name == "" {
		abs, err := filepath.Abs(dir)
		if err == nil {
			name = filepath.Base(filepath.Dir(abs))
		}
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "project"
		}
	}

	logger := opts.Logger.With().Str("component", "project").Str("dir", dir).Logger()

	ix, err := index.Open(opts.FS, dir, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Project{
		dir:    dir,
		name:   name,
		fs:     opts.FS,
		layout: format.Layout{Dir: dir},
		logger: logger,
		now:    opts.Now,
		newID:  opts.NewID,
		cache:  cache.New(opts.FS, dir, opts.Now, opts.Logger),
		index:  ix,
	}, nil
}

// Close releases the search index.
func (p *Project) Close() error {
	return p.index.Close()
}

// Load populates the in-memory corpus view from disk.
func (p *Project) Load() error {
	return p.cache.LoadAll()
}

// Cache exposes the corpus cache for read operations and invalidation.
func (p *Project) Cache() *cache.Cache { return p.cache }

// Index exposes the search index.
func (p *Project) Index() *index.Index { return p.index }

// Init provisions the root document for a fresh corpus. Calling it on
// an already-initialized corpus is a no-op.
func (p *Project) Init() error {
	return p.ensureRoot()
}

// ensureRoot provisions the root document on first mutation of a fresh
// corpus.
func (p *Project) ensureRoot() error {
	_, err := p.cache.Root()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cache.ErrRootMissing):
		root := format.NewRootMemory(p.name, p.now())
		if err := p.cache.InitRoot(root); err != nil && !errors.Is(err, cache.ErrRootExists) {
			return err
		}
		return nil
	default:
		return err
	}
}

// CreateContext registers a new top-level context and provisions its
// empty link table. The supplied name is normalized first; creating a
// context that already exists fails with ErrContextExists.
func (p *Project) CreateContext(name, description string, priority int) (string, error) {
	normalized, err := format.NormalizeName(name, format.KindContext)
	if err != nil {
		return "", err
	}
	if priority < validate.MinPriority || priority > validate.MaxPriority {
		return "", fmt.Errorf("priority %d outside [%d, %d]", priority, validate.MinPriority, validate.MaxPriority)
	}
	if err := p.ensureRoot(); err != nil {
		return "", err
	}

	root, err := p.cache.Root()
	if err != nil {
		return "", err
	}
	if _, exists := root.Contexts[normalized]; exists {
		return "", fmt.Errorf("%w: %s", ErrContextExists, normalized)
	}

	ctx := format.Context{
		Description: description,
		Priority:    priority,
		LinkTable:   normalized + format.LinkTableExt,
	}
	if err := p.cache.AddContext(normalized, ctx); err != nil {
		return "", err
	}
	return normalized, nil
}

// RemoveContext removes a context and cascades to its link table, its
// submemories, its leaf documents and their index entries.
func (p *Project) RemoveContext(ctx context.Context, name string) error {
	normalized, err := format.NormalizeName(name, format.KindContext)
	if err != nil {
		return err
	}
	removedDocs := p.countMemoryFiles(normalized)
	if err := p.cache.RemoveContext(normalized); err != nil {
		return err
	}
	if err := p.fs.RemoveAll(p.layout.MemoryDir(normalized, "")); err != nil {
		return err
	}
	if err := p.index.RemoveContext(ctx, normalized); err != nil {
		return err
	}
	if err := p.cache.BumpMemoryCount(-removedDocs); err != nil {
		return err
	}
	p.logger.Info().Str("context", normalized).Msg("context removed with cascade")
	return nil
}

// UpdateRoot replaces one free-form root section.
func (p *Project) UpdateRoot(section, value string) error {
	if err := p.ensureRoot(); err != nil {
		return err
	}
	return p.cache.UpdateRoot(section, value)
}

// CreateLink appends a link record to a context's table and returns its
// index in the ordered collection.
func (p *Project) CreateLink(contextName, subcontext, description, docPath string) (int, error) {
	ctxName, err := format.NormalizeName(contextName, format.KindContext)
	if err != nil {
		return 0, err
	}
	subName, err := format.NormalizeName(subcontext, format.KindSubcontext)
	if err != nil {
		return 0, err
	}
	link := format.Link{
		Context:      ctxName,
		Subcontext:   subName,
		Description:  description,
		DocumentPath: docPath,
	}
	if res := validate.Link(link); !res.Valid() {
		return 0, &res
	}
	idx, err := p.cache.AddLink(ctxName, link)
	if err != nil {
		if errors.Is(err, cache.ErrUnknownContext) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownContext, ctxName)
		}
		return 0, err
	}
	return idx, nil
}

// CreateMemory validates, persists and indexes a new leaf document and
// returns its path relative to the memories root. Validation happens
// before any byte is written.
func (p *Project) CreateMemory(ctx context.Context, contextName, subcontext, title, content string, tags []string, importance format.Importance) (string, error) {
	ctxName, err := format.NormalizeName(contextName, format.KindContext)
	if err != nil {
		return "", err
	}
	subName, err := format.NormalizeName(subcontext, format.KindSubcontext)
	if err != nil {
		return "", err
	}
	titleSlug, err := format.NormalizeName(title, format.KindTitle)
	if err != nil {
		return "", err
	}

	root, err := p.cache.Root()
	if err != nil {
		return "", err
	}
	if _, ok := root.Contexts[ctxName]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownContext, ctxName)
	}

	if importance == "" {
		importance = format.ImportanceMedium
	}
	now := p.now()
	mem := &format.Memory{
		Frontmatter: format.Frontmatter{
			ID:         p.newID(),
			Title:      title,
			Context:    ctxName,
			Subcontext: subName,
			CreatedAt:  now,
			UpdatedAt:  now,
			Tags:       format.NormalizeTags(tags),
			Importance: importance,
		},
		Content: content,
	}
	if res := validate.Memory(mem); !res.Valid() {
		return "", &res
	}

	rel := format.MemoryRelPath(ctxName, subName, now, titleSlug)
	if _, err := p.fs.Stat(p.layout.MemoryPath(rel)); err == nil {
		// same title within the same second: disambiguate with the id prefix
		rel = format.MemoryRelPath(ctxName, subName, now, titleSlug+"-"+shortID(mem.ID))
	}

	if err := format.WriteMemory(p.fs, p.layout.MemoryPath(rel), mem); err != nil {
		return "", err
	}
	if err := p.index.IndexMemory(ctx, rel, mem); err != nil {
		return "", err
	}
	if err := p.cache.BumpMemoryCount(1); err != nil {
		return "", err
	}

	p.logger.Info().Str("path", rel).Str("title", title).Msg("memory created")
	return rel, nil
}

// ReadMemory reads a leaf document by its relative path. A missing
// document surfaces as fsio.ErrNotFound.
func (p *Project) ReadMemory(relPath string) (*format.Memory, error) {
	return format.ReadMemory(p.fs, p.layout.MemoryPath(relPath))
}

// DeleteMemory removes a leaf document and its index entries.
func (p *Project) DeleteMemory(ctx context.Context, relPath string) error {
	if _, err := p.fs.Stat(p.layout.MemoryPath(relPath)); err != nil {
		return err
	}
	if err := p.fs.Remove(p.layout.MemoryPath(relPath)); err != nil {
		return err
	}
	if err := p.index.RemoveDocument(ctx, relPath); err != nil {
		return err
	}
	return p.cache.BumpMemoryCount(-1)
}

// Search runs a ranked, faceted full-text query over the corpus.
func (p *Project) Search(ctx context.Context, query string, opts index.Options) (*index.Response, error) {
	return p.index.Search(ctx, query, opts)
}

// FindSimilar ranks documents similar to the one at relPath.
func (p *Project) FindSimilar(ctx context.Context, relPath string, limit int) ([]index.Result, error) {
	return p.index.FindSimilar(ctx, relPath, limit)
}

// Reindex rebuilds the whole search index from the documents on disk.
func (p *Project) Reindex(ctx context.Context) (*index.ReindexReport, error) {
	return p.index.ReindexAll(ctx)
}

// RepairIndex detects and repairs drifted tag metadata in the index.
func (p *Project) RepairIndex(ctx context.Context) (*index.RepairReport, error) {
	return p.index.ValidateAndRepair(ctx)
}

// countMemoryFiles counts the leaf documents under one context's
// directory.
func (p *Project) countMemoryFiles(contextName string) int {
	count := 0
	_ = p.fs.WalkDir(p.layout.MemoryDir(contextName, ""), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // absent directory means zero documents
		}
		if !d.IsDir() && strings.HasSuffix(path, format.MemoryExt) {
			count++
		}
		return nil
	})
	return count
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
