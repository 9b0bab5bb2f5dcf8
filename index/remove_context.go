package index

import (
	"context"
	"fmt"
)

// RemoveContext drops every indexed document belonging to one context.
// Used by context removal cascades.
func (ix *Index) RemoveContext(ctx context.Context, name string) error {
	ix.rebuild.RLock()
	defer ix.rebuild.RUnlock()

	return ix.withBusyRetry(ctx, func() error {
		tx, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin index transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_fts WHERE path IN (SELECT path FROM memory_meta WHERE context = ?)`, name); err != nil {
			return fmt.Errorf("delete fts entries for context: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_meta WHERE context = ?`, name); err != nil {
			return fmt.Errorf("delete metadata rows for context: %w", err)
		}
		return tx.Commit()
	})
}
