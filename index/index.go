// Package index maintains the durable full-text index over leaf
// documents: an FTS5 table for ranked matching plus a metadata projection
// for filtering and faceting. The index holds no data that cannot be
// rebuilt from the documents on disk.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/fsio"
	"github.com/memkeep/memkeep/migrations"
)

// ErrNotIndexed is returned when an operation targets a path with no
// metadata row.
var ErrNotIndexed = errors.New("document not indexed")

// Index owns the search database. Writers to the same document path are
// serialized; per-document writers share the rebuild lock, while
// ReindexAll and ValidateAndRepair hold it exclusively so no write can
// interleave with a maintenance pass.
type Index struct {
	db     *sql.DB
	fs     fsio.FS
	layout format.Layout
	logger zerolog.Logger

	writers *pathLocks
	rebuild sync.RWMutex
}

// Open opens (creating if necessary) the search database under the
// memory root and applies schema migrations.
func Open(filesystem fsio.FS, dir string, logger zerolog.Logger) (*Index, error) {
	layout := format.Layout{Dir: dir}
	if err := filesystem.MkdirAll(dir); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", layout.IndexPath())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	// One writer connection avoids spurious SQLITE_BUSY between our own
	// connections; readers share it through database/sql.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Index{
		db:      db,
		fs:      filesystem,
		layout:  layout,
		logger:  logger.With().Str("component", "index").Logger(),
		writers: newPathLocks(),
	}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// IndexDocument reads the leaf document at the relative path and upserts
// both its searchable entry and its metadata row. Re-indexing the same
// path is idempotent.
func (ix *Index) IndexDocument(ctx context.Context, relPath string) error {
	ix.rebuild.RLock()
	defer ix.rebuild.RUnlock()
	unlock := ix.writers.lock(relPath)
	defer unlock()

	mem, err := format.ReadMemory(ix.fs, ix.layout.MemoryPath(relPath))
	if err != nil {
		return err
	}
	return ix.upsert(ctx, relPath, mem)
}

// IndexMemory upserts an already-parsed document, avoiding a second disk
// read when the caller just wrote the file.
func (ix *Index) IndexMemory(ctx context.Context, relPath string, mem *format.Memory) error {
	ix.rebuild.RLock()
	defer ix.rebuild.RUnlock()
	unlock := ix.writers.lock(relPath)
	defer unlock()
	return ix.upsert(ctx, relPath, mem)
}

func (ix *Index) upsert(ctx context.Context, relPath string, mem *format.Memory) error {
	tags := format.NormalizeTags(mem.Tags)
	canonical := format.EncodeTags(tags)
	// The fts copy of the tag list exists for tokenization only and is
	// never decoded as structured data.
	tagText := strings.Join(tags, " ")

	return ix.withBusyRetry(ctx, func() error {
		tx, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin index transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE path = ?`, relPath); err != nil {
			return fmt.Errorf("clear fts entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_meta WHERE path = ?`, relPath); err != nil {
			return fmt.Errorf("clear metadata row: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO memory_meta (path, id, title, context, subcontext, tags, importance, created_at, updated_at, content_length)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			relPath, mem.ID, mem.Title, mem.Context, mem.Subcontext,
			canonical, string(mem.Importance),
			mem.CreatedAt.Unix(), mem.UpdatedAt.Unix(), len(mem.Content),
		); err != nil {
			return fmt.Errorf("insert metadata row: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO memory_fts (path, title, context, subcontext, tags, importance, content)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			relPath, mem.Title, mem.Context, mem.Subcontext,
			tagText, string(mem.Importance), mem.Content,
		); err != nil {
			return fmt.Errorf("insert fts entry: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit index transaction: %w", err)
		}
		ix.logger.Debug().Str("path", relPath).Int("tags", len(tags)).Msg("document indexed")
		return nil
	})
}

// RemoveDocument deletes both the searchable entry and the metadata row
// for a path. Removing an absent path is a no-op, not an error.
func (ix *Index) RemoveDocument(ctx context.Context, relPath string) error {
	ix.rebuild.RLock()
	defer ix.rebuild.RUnlock()
	unlock := ix.writers.lock(relPath)
	defer unlock()

	return ix.withBusyRetry(ctx, func() error {
		tx, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin index transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE path = ?`, relPath); err != nil {
			return fmt.Errorf("delete fts entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_meta WHERE path = ?`, relPath); err != nil {
			return fmt.Errorf("delete metadata row: %w", err)
		}
		return tx.Commit()
	})
}

// withBusyRetry retries fn with exponential backoff while SQLite reports
// the database as busy or locked.
func (ix *Index) withBusyRetry(ctx context.Context, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxInterval = 250 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(eb, 5), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			ix.logger.Warn().Err(err).Msg("index database busy, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

// pathLocks serializes writers per document path.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	m, ok := p.locks[path]
	if !ok {
		m = &sync.Mutex{}
		p.locks[path] = m
	}
	p.mu.Unlock()
	m.Lock()
	return m.Unlock
}
