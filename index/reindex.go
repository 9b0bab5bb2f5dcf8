package index

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/fsio"
)

// DocumentError records a per-document failure inside a batch operation.
// Batch passes collect these and continue; one malformed document never
// blocks the rest of the corpus.
type DocumentError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// ReindexReport summarizes a full rebuild.
type ReindexReport struct {
	Indexed int             `json:"indexed"`
	Errors  []DocumentError `json:"errors,omitempty"`
}

// ReindexAll clears both the searchable store and the metadata store,
// walks every leaf document on disk and indexes each one. It requires
// the whole index exclusively: two rebuilds cannot overlap, while reads
// may transiently observe a partially rebuilt index.
func (ix *Index) ReindexAll(ctx context.Context) (*ReindexReport, error) {
	ix.rebuild.Lock()
	defer ix.rebuild.Unlock()

	err := ix.withBusyRetry(ctx, func() error {
		tx, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rebuild transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts`); err != nil {
			return fmt.Errorf("clearing fts store: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_meta`); err != nil {
			return fmt.Errorf("clearing metadata store: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	report := &ReindexReport{}
	root := ix.layout.MemoriesRoot()
	walkErr := ix.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// an absent memories directory simply means an empty corpus
			if filepath.Clean(path) == filepath.Clean(root) {
				return fs.SkipAll
			}
			report.Errors = append(report.Errors, DocumentError{Path: path, Err: err.Error()})
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, format.MemoryExt) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			report.Errors = append(report.Errors, DocumentError{Path: path, Err: err.Error()})
			return nil
		}
		relPath := filepath.ToSlash(rel)

		mem, err := format.ReadMemory(ix.fs, path)
		if err != nil {
			report.Errors = append(report.Errors, DocumentError{Path: relPath, Err: err.Error()})
			return nil
		}
		if err := ix.upsert(ctx, relPath, mem); err != nil {
			report.Errors = append(report.Errors, DocumentError{Path: relPath, Err: err.Error()})
			return nil
		}
		report.Indexed++
		return nil
	})
	if walkErr != nil && !fsio.IsNotFound(walkErr) {
		return report, fmt.Errorf("walking memories directory: %w", walkErr)
	}

	ix.logger.Info().
		Int("indexed", report.Indexed).
		Int("errors", len(report.Errors)).
		Msg("full reindex completed")
	return report, nil
}
