package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/memkeep/memkeep/format"
)

const defaultSimilarLimit = 5

// FindSimilar ranks other documents by similarity to the one at relPath.
// With tags present the ranking is tag-overlap driven through the text
// index; without tags it falls back to the weaker "same context, most
// recently updated" proxy. The source document is always excluded.
func (ix *Index) FindSimilar(ctx context.Context, relPath string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultSimilarLimit
	}

	var (
		tagsRaw string
		docCtx  string
	)
	err := ix.db.QueryRowContext(ctx,
		`SELECT tags, context FROM memory_meta WHERE path = ?`, relPath).
		Scan(&tagsRaw, &docCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, relPath)
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", relPath, err)
	}

	tags := decodeTagsLenient(ix, relPath, tagsRaw)
	if len(tags) > 0 {
		return ix.similarByTags(ctx, relPath, tags, limit)
	}
	return ix.similarByContext(ctx, relPath, docCtx, limit)
}

func (ix *Index) similarByTags(ctx context.Context, relPath string, tags []string, limit int) ([]Result, error) {
	terms := lo.Map(tags, func(tag string, _ int) string {
		return `tags:"` + strings.ReplaceAll(tag, `"`, `""`) + `"`
	})
	matchExpr := strings.Join(terms, " OR ")

	rows, err := ix.db.QueryContext(ctx, `
SELECT memory_fts.path, bm25(memory_fts) AS dist,
       m.id, m.title, m.context, m.subcontext, m.tags, m.importance, m.created_at, m.updated_at
FROM memory_fts
JOIN memory_meta m ON m.path = memory_fts.path
WHERE memory_fts MATCH ? AND memory_fts.path != ?
ORDER BY dist ASC, m.updated_at DESC, memory_fts.path ASC
LIMIT ?`, matchExpr, relPath, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	return ix.scanSimilarRows(rows, true)
}

func (ix *Index) similarByContext(ctx context.Context, relPath, docCtx string, limit int) ([]Result, error) {
	rows, err := ix.db.QueryContext(ctx, `
SELECT m.path, 0.0 AS dist,
       m.id, m.title, m.context, m.subcontext, m.tags, m.importance, m.created_at, m.updated_at
FROM memory_meta m
WHERE m.context = ? AND m.path != ?
ORDER BY m.updated_at DESC, m.path ASC
LIMIT ?`, docCtx, relPath, limit)
	if err != nil {
		return nil, fmt.Errorf("context similarity query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	return ix.scanSimilarRows(rows, false)
}

func (ix *Index) scanSimilarRows(rows *sql.Rows, scored bool) ([]Result, error) {
	results := []Result{}
	for rows.Next() {
		var (
			r                  Result
			dist               float64
			tagsRaw            string
			importance         string
			createdAt, updated int64
		)
		if err := rows.Scan(&r.Path, &dist, &r.ID, &r.Title, &r.Context, &r.Subcontext,
			&tagsRaw, &importance, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scanning similarity row: %w", err)
		}
		r.Tags = decodeTagsLenient(ix, r.Path, tagsRaw)
		r.Importance = format.Importance(importance)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		if scored {
			r.Score = -dist
			if r.Score < 0 {
				r.Score = 0
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity row iteration: %w", err)
	}
	return results, nil
}
