package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"

	"github.com/memkeep/memkeep/format"
)

// ErrEmptyQuery is returned when nothing searchable survives
// tokenization. An empty query is a caller mistake, not an empty match.
var ErrEmptyQuery = errors.New("search query is empty after tokenization")

const defaultSearchLimit = 20

// Options are the structural filters and pagination for Search. Filters
// combine conjunctively; a document must satisfy every populated filter.
// The tag filter requires all listed tags to be present.
type Options struct {
	Contexts    []string            `json:"contexts,omitempty"`
	Subcontexts []string            `json:"subcontexts,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Importance  []format.Importance `json:"importance,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
	Offset      int                 `json:"offset,omitempty"`
}

// Result is one ranked match.
type Result struct {
	Path       string            `json:"path"`
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Context    string            `json:"context"`
	Subcontext string            `json:"subcontext"`
	Tags       []string          `json:"tags"`
	Importance format.Importance `json:"importance"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Score      float64           `json:"score"`
	Snippet    string            `json:"snippet"`
}

// Facets are live counts over the query-matched set, not the corpus.
type Facets struct {
	Contexts    map[string]int `json:"contexts"`
	Subcontexts map[string]int `json:"subcontexts"`
	Importance  map[string]int `json:"importance"`
}

func emptyFacets() Facets {
	return Facets{
		Contexts:    map[string]int{},
		Subcontexts: map[string]int{},
		Importance:  map[string]int{},
	}
}

// Response is the full search outcome.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Facets  Facets   `json:"facets"`
}

var queryTokenPattern = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// buildMatch tokenizes a user query into an FTS5 MATCH expression.
// Quoted phrases are preserved verbatim; unquoted terms are OR-combined.
// Every token is re-quoted so FTS5 operator syntax in user input cannot
// change the query's meaning.
func buildMatch(query string) (string, error) {
	var parts []string
	for _, m := range queryTokenPattern.FindAllStringSubmatch(query, -1) {
		var token string
		if m[1] != "" || strings.HasPrefix(m[0], `"`) {
			token = strings.TrimSpace(m[1])
		} else {
			token = sanitizeTerm(m[2])
		}
		if token == "" {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(token, `"`, `""`)+`"`)
	}
	if len(parts) == 0 {
		return "", ErrEmptyQuery
	}
	return strings.Join(parts, " OR "), nil
}

func sanitizeTerm(term string) string {
	return strings.TrimFunc(term, func(r rune) bool {
		switch r {
		case '"', '\'', '(', ')', '*', ':', '^', '-', '+', ',', ';':
			return true
		}
		return false
	})
}

// Search runs a ranked full-text query with conjunctive structural
// filters. Ranking uses the bm25 distance of the FTS store: a lower
// distance means a better match and is surfaced as a higher, non-negative
// score. Ties break by most-recent update, then by path, which keeps
// pagination stable for a fixed corpus and query.
func (ix *Index) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	matchExpr, err := buildMatch(query)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	builder := sq.Select(
		"memory_fts.path",
		"bm25(memory_fts) AS dist",
		"snippet(memory_fts, -1, '[', ']', '…', 12) AS snip",
		"m.id", "m.title", "m.context", "m.subcontext",
		"m.tags", "m.importance", "m.created_at", "m.updated_at",
	).
		From("memory_fts").
		Join("memory_meta m ON m.path = memory_fts.path").
		Where(sq.Expr("memory_fts MATCH ?", matchExpr))

	if len(opts.Contexts) > 0 {
		builder = builder.Where(sq.Eq{"m.context": opts.Contexts})
	}
	if len(opts.Subcontexts) > 0 {
		builder = builder.Where(sq.Eq{"m.subcontext": opts.Subcontexts})
	}
	if len(opts.Importance) > 0 {
		values := lo.Map(opts.Importance, func(imp format.Importance, _ int) string { return string(imp) })
		builder = builder.Where(sq.Eq{"m.importance": values})
	}
	builder = builder.OrderBy("dist ASC", "m.updated_at DESC", "memory_fts.path ASC")

	queryStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search query: %w", err)
	}

	rows, err := ix.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	wantTags := format.NormalizeTags(opts.Tags)
	var matched []Result
	for rows.Next() {
		var (
			r                  Result
			dist               float64
			tagsRaw            string
			importance         string
			createdAt, updated int64
		)
		if err := rows.Scan(&r.Path, &dist, &r.Snippet, &r.ID, &r.Title,
			&r.Context, &r.Subcontext, &tagsRaw, &importance, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		r.Tags = decodeTagsLenient(ix, r.Path, tagsRaw)
		r.Importance = format.Importance(importance)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		r.Score = -dist
		if r.Score < 0 {
			r.Score = 0
		}
		if !hasAllTags(r.Tags, wantTags) {
			continue
		}
		matched = append(matched, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search row iteration: %w", err)
	}

	resp := &Response{
		Total:  len(matched),
		Facets: emptyFacets(),
	}
	for _, r := range matched {
		resp.Facets.Contexts[r.Context]++
		resp.Facets.Subcontexts[r.Subcontext]++
		resp.Facets.Importance[string(r.Importance)]++
	}

	if offset >= len(matched) {
		resp.Results = []Result{}
		return resp, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	resp.Results = matched[offset:end]

	ix.logger.Debug().
		Str("match", matchExpr).
		Int("total", resp.Total).
		Int("returned", len(resp.Results)).
		Msg("search completed")
	return resp, nil
}

// decodeTagsLenient decodes a metadata tag field, falling back to the
// naive token-split repair when the canonical decode fails. A drifted
// row must never fail a search; it is reported and left for
// ValidateAndRepair.
func decodeTagsLenient(ix *Index, path, raw string) []string {
	tags, err := format.DecodeTags(raw)
	if err != nil {
		ix.logger.Warn().Str("path", path).Err(err).
			Msg("tag metadata drifted from canonical encoding, using token-split fallback")
		return format.RepairTags(raw)
	}
	return tags
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := lo.SliceToMap(have, func(t string) (string, struct{}) { return t, struct{}{} })
	return lo.EveryBy(want, func(t string) bool {
		_, ok := set[t]
		return ok
	})
}
