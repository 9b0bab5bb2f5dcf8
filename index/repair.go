package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/memkeep/memkeep/format"
)

// RepairReport summarizes a tag-projection repair pass.
type RepairReport struct {
	Scanned  int             `json:"scanned"`
	Repaired int             `json:"repaired"`
	Errors   []DocumentError `json:"errors,omitempty"`
}

// ValidateAndRepair scans the metadata store for rows whose tag field is
// not the canonical encoding, re-encodes each recoverable row (treating
// the drifted field as a naive token list) and refreshes the fts copy so
// both projections agree again. The pass is idempotent and
// non-destructive: rows that already decode canonically are untouched.
func (ix *Index) ValidateAndRepair(ctx context.Context) (*RepairReport, error) {
	ix.rebuild.Lock()
	defer ix.rebuild.Unlock()

	rows, err := ix.db.QueryContext(ctx, `SELECT path, tags FROM memory_meta`)
	if err != nil {
		return nil, fmt.Errorf("scanning metadata store: %w", err)
	}

	type drifted struct {
		path string
		tags []string
	}
	report := &RepairReport{}
	var broken []drifted
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		report.Scanned++
		if _, err := format.DecodeTags(raw); err == nil {
			continue
		}
		broken = append(broken, drifted{path: path, tags: format.RepairTags(raw)})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("metadata row iteration: %w", err)
	}
	_ = rows.Close()

	for _, row := range broken {
		canonical := format.EncodeTags(row.tags)
		tagText := strings.Join(row.tags, " ")
		err := ix.withBusyRetry(ctx, func() error {
			tx, err := ix.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback() }()
			if _, err := tx.ExecContext(ctx,
				`UPDATE memory_meta SET tags = ? WHERE path = ?`, canonical, row.path); err != nil {
				return fmt.Errorf("rewriting metadata tags: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE memory_fts SET tags = ? WHERE path = ?`, tagText, row.path); err != nil {
				return fmt.Errorf("refreshing fts tag copy: %w", err)
			}
			return tx.Commit()
		})
		if err != nil {
			report.Errors = append(report.Errors, DocumentError{Path: row.path, Err: err.Error()})
			continue
		}
		report.Repaired++
		ix.logger.Info().Str("path", row.path).Strs("tags", row.tags).
			Msg("repaired drifted tag metadata")
	}
	return report, nil
}
