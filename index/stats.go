package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stats summarizes the index contents and its approximate on-disk size.
type Stats struct {
	Documents        int       `json:"documents"`
	Contexts         int       `json:"contexts"`
	Subcontexts      int       `json:"subcontexts"`
	AvgContentLength float64   `json:"avg_content_length"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
	DiskSizeBytes    int64     `json:"disk_size_bytes"`
}

// Stats reports aggregate counts over the metadata store.
func (ix *Index) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats     Stats
		avg       sql.NullFloat64
		maxUpdate sql.NullInt64
	)
	err := ix.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(DISTINCT context),
       COUNT(DISTINCT subcontext),
       AVG(content_length),
       MAX(updated_at)
FROM memory_meta`).
		Scan(&stats.Documents, &stats.Contexts, &stats.Subcontexts, &avg, &maxUpdate)
	if err != nil {
		return nil, fmt.Errorf("index stats query: %w", err)
	}
	if avg.Valid {
		stats.AvgContentLength = avg.Float64
	}
	if maxUpdate.Valid {
		stats.LastUpdatedAt = time.Unix(maxUpdate.Int64, 0).UTC()
	}

	if info, err := ix.fs.Stat(ix.layout.IndexPath()); err == nil {
		stats.DiskSizeBytes = info.Size()
	}
	return &stats, nil
}
