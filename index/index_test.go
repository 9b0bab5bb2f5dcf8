package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep/format"
	"github.com/memkeep/memkeep/fsio"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(fsio.OS{}, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

type docSpec struct {
	context    string
	subcontext string
	title      string
	tags       []string
	importance format.Importance
	content    string
	updatedAt  time.Time
}

// writeDoc writes a leaf document under the memories root and returns
// its relative path.
func writeDoc(t *testing.T, ix *Index, spec docSpec) string {
	t.Helper()
	if spec.importance == "" {
		spec.importance = format.ImportanceMedium
	}
	if spec.updatedAt.IsZero() {
		spec.updatedAt = testTime
	}
	slug := format.Slugify(spec.title)
	rel := format.MemoryRelPath(spec.context, spec.subcontext, spec.updatedAt, slug)
	mem := &format.Memory{
		Frontmatter: format.Frontmatter{
			ID:         slug,
			Title:      spec.title,
			Context:    spec.context,
			Subcontext: spec.subcontext,
			CreatedAt:  spec.updatedAt,
			UpdatedAt:  spec.updatedAt,
			Tags:       spec.tags,
			Importance: spec.importance,
		},
		Content: spec.content,
	}
	require.NoError(t, format.WriteMemory(fsio.OS{}, ix.layout.MemoryPath(rel), mem))
	return rel
}

func indexDoc(t *testing.T, ix *Index, spec docSpec) string {
	t.Helper()
	rel := writeDoc(t, ix, spec)
	require.NoError(t, ix.IndexDocument(context.Background(), rel))
	return rel
}

func TestBuildMatch(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"api", `"api"`},
		{"api design", `"api" OR "design"`},
		{`"exact phrase" loose`, `"exact phrase" OR "loose"`},
		{`injected" OR evil`, `"injected" OR "OR" OR "evil"`},
		{"NEAR(x)", `"NEAR(x"`},
		{"-dash- (paren)", `"dash" OR "paren"`},
	}
	for _, tc := range cases {
		got, err := buildMatch(tc.query)
		require.NoError(t, err, "buildMatch(%q)", tc.query)
		assert.Equal(t, tc.want, got, "buildMatch(%q)", tc.query)
	}

	_, err := buildMatch("")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = buildMatch(`"" --- ,,,`)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchRanked(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	relA := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "API surface review",
		tags: []string{"api", "design"}, importance: format.ImportanceHigh,
		content: "The public API needs a stable surface. API versioning notes.",
	})
	relB := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "Design principles",
		tags: []string{"api", "design"},
		content: "Composition over inheritance. One mention of the api here.",
		updatedAt: testTime.Add(time.Hour),
	})
	indexDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "Rollout checklist",
		tags: []string{"ops"}, content: "Nothing about that topic at all.",
	})

	resp, err := ix.Search(ctx, "API", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Results, 2)

	paths := []string{resp.Results[0].Path, resp.Results[1].Path}
	assert.ElementsMatch(t, []string{relA, relB}, paths)
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.Equal(t, []string{"api", "design"}, r.Tags)
		assert.NotEmpty(t, r.Snippet)
	}
	// ranking is by bm25 distance; equal scores fall back to recency
	assert.GreaterOrEqual(t, resp.Results[0].Score, resp.Results[1].Score)

	assert.Equal(t, map[string]int{"general": 2}, resp.Facets.Contexts)
	assert.Equal(t, map[string]int{"design": 2}, resp.Facets.Subcontexts)
	assert.Equal(t, map[string]int{"high": 1, "medium": 1}, resp.Facets.Importance)
}

func TestSearchFilters(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "shared topic one",
		tags: []string{"api", "design"}, importance: format.ImportanceHigh,
		content: "keyword alpha",
	})
	indexDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "shared topic two",
		tags: []string{"api"}, content: "keyword alpha",
	})

	resp, err := ix.Search(ctx, "alpha", Options{Contexts: []string{"general"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "general", resp.Results[0].Context)

	resp, err = ix.Search(ctx, "alpha", Options{Importance: []format.Importance{format.ImportanceHigh}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)

	// tag filter is conjunctive: all listed tags must be present
	resp, err = ix.Search(ctx, "alpha", Options{Tags: []string{"api", "design"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "general", resp.Results[0].Context)

	resp, err = ix.Search(ctx, "alpha", Options{Tags: []string{"api"}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestSearchEmptyAndMiss(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Search(ctx, "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	indexDoc(t, ix, docSpec{
		context: "general", subcontext: "setup", title: "hello", content: "world",
	})
	resp, err := ix.Search(ctx, "zzznothing", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Facets.Contexts)
}

func TestSearchPagination(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		indexDoc(t, ix, docSpec{
			context: "general", subcontext: "log", title: "entry " + string(rune('a'+i)),
			content: "pagination body text", updatedAt: testTime.Add(time.Duration(i) * time.Minute),
		})
	}

	first, err := ix.Search(ctx, "pagination", Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	require.Len(t, first.Results, 2)

	second, err := ix.Search(ctx, "pagination", Options{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, second.Results, 2)

	third, err := ix.Search(ctx, "pagination", Options{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, third.Results, 1)

	seen := map[string]bool{}
	for _, r := range append(append(first.Results, second.Results...), third.Results...) {
		assert.False(t, seen[r.Path], "page overlap at %s", r.Path)
		seen[r.Path] = true
	}

	past, err := ix.Search(ctx, "pagination", Options{Limit: 2, Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, past.Results)
	assert.Equal(t, 5, past.Total)
}

func TestIndexDocumentIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	rel := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "setup", title: "once", content: "unique-term",
	})
	require.NoError(t, ix.IndexDocument(ctx, rel))
	require.NoError(t, ix.IndexDocument(ctx, rel))

	resp, err := ix.Search(ctx, "unique-term", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
}

func TestRemoveDocument(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	rel := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "setup", title: "gone soon", content: "ephemeral",
	})
	require.NoError(t, ix.RemoveDocument(ctx, rel))
	require.NoError(t, ix.RemoveDocument(ctx, "never/indexed/x.md"))

	resp, err := ix.Search(ctx, "ephemeral", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total)
}

func TestFindSimilar(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	src := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "source doc",
		tags: []string{"api", "design"}, content: "origin",
	})
	twin := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "twin doc",
		tags: []string{"api", "design"}, content: "close match",
	})
	indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "loose doc",
		tags: []string{"design"}, content: "partial overlap",
	})
	indexDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "unrelated doc",
		tags: []string{"ops"}, content: "different",
	})

	results, err := ix.FindSimilar(ctx, src, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, twin, results[0].Path)
	for _, r := range results {
		assert.NotEqual(t, src, r.Path)
	}

	_, err = ix.FindSimilar(ctx, "no/such/doc.md", 5)
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestFindSimilarContextFallback(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	src := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "log", title: "untagged source", content: "plain",
	})
	newer := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "log", title: "newer neighbor", content: "plain",
		updatedAt: testTime.Add(2 * time.Hour),
	})
	older := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "log", title: "older neighbor", content: "plain",
		updatedAt: testTime.Add(time.Hour),
	})
	indexDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "other context", content: "plain",
	})

	results, err := ix.FindSimilar(ctx, src, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, newer, results[0].Path)
	assert.Equal(t, older, results[1].Path)
}

func TestCorruptTagRowDoesNotFailSearch(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	rel := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "drifting doc",
		tags: []string{"api", "design"}, content: "searchable body",
	})
	// simulate the known projection defect: a non-canonical tag field
	// written by an older writer
	_, err := ix.db.ExecContext(ctx, `UPDATE memory_meta SET tags = ? WHERE path = ?`, "api design", rel)
	require.NoError(t, err)

	resp, err := ix.Search(ctx, "searchable", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, []string{"api", "design"}, resp.Results[0].Tags)

	// tag filtering still works through the lenient decode
	resp, err = ix.Search(ctx, "searchable", Options{Tags: []string{"api"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
}

func TestValidateAndRepair(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	good := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "healthy doc",
		tags: []string{"api"}, content: "fine",
	})
	bad := indexDoc(t, ix, docSpec{
		context: "general", subcontext: "design", title: "broken doc",
		tags: []string{"api", "design"}, content: "drifted",
	})
	_, err := ix.db.ExecContext(ctx, `UPDATE memory_meta SET tags = ? WHERE path = ?`, `["api", design]`, bad)
	require.NoError(t, err)

	report, err := ix.ValidateAndRepair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Repaired)
	assert.Empty(t, report.Errors)

	var repaired string
	require.NoError(t, ix.db.QueryRowContext(ctx, `SELECT tags FROM memory_meta WHERE path = ?`, bad).Scan(&repaired))
	assert.Equal(t, `["api","design"]`, repaired)

	var untouched string
	require.NoError(t, ix.db.QueryRowContext(ctx, `SELECT tags FROM memory_meta WHERE path = ?`, good).Scan(&untouched))
	assert.Equal(t, `["api"]`, untouched)

	// second pass finds nothing left to repair
	report, err = ix.ValidateAndRepair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Repaired)
}

func TestReindexAll(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	writeDoc(t, ix, docSpec{
		context: "general", subcontext: "setup", title: "doc one", content: "rebuild target",
	})
	writeDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "doc two", content: "rebuild target",
	})
	// a malformed document is reported, not fatal
	badPath := ix.layout.MemoryPath("general/setup/19990101T000000-broken.md")
	require.NoError(t, fsio.OS{}.WriteFile(badPath, []byte("not a memory document")))

	report, err := ix.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "general/setup/19990101T000000-broken.md", report.Errors[0].Path)

	resp, err := ix.Search(ctx, "rebuild", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)

	// rebuilding again yields the same state
	report, err = ix.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	resp, err = ix.Search(ctx, "rebuild", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
}

func TestReindexAllExcludesConcurrentWriters(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rel := writeDoc(t, ix, docSpec{
			context: "general", subcontext: "log", title: fmt.Sprintf("steady doc %d", i),
			content: "exclusive rebuild body",
		})
		require.NoError(t, ix.IndexDocument(ctx, rel))
	}
	extra := writeDoc(t, ix, docSpec{
		context: "general", subcontext: "log", title: "late arrival",
		content: "exclusive rebuild body",
	})

	// a per-document write must run either fully before or fully after
	// the rebuild, never inside it; both orders converge on the same
	// state because the document is already on disk
	done := make(chan error, 1)
	go func() {
		_, err := ix.ReindexAll(ctx)
		done <- err
	}()
	require.NoError(t, ix.IndexDocument(ctx, extra))
	require.NoError(t, <-done)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Documents)

	resp, err := ix.Search(ctx, "exclusive", Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Total)
}

func TestReindexAllEmptyCorpus(t *testing.T) {
	ix := newTestIndex(t)
	report, err := ix.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Empty(t, report.Errors)
}

func TestRemoveContext(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	indexDoc(t, ix, docSpec{
		context: "general", subcontext: "setup", title: "stays", content: "shared term",
	})
	indexDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "goes", content: "shared term",
	})

	require.NoError(t, ix.RemoveContext(ctx, "infra"))

	resp, err := ix.Search(ctx, "shared", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "general", resp.Results[0].Context)
}

func TestStats(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Documents)

	indexDoc(t, ix, docSpec{
		context: "general", subcontext: "setup", title: "one", content: "aaaa",
	})
	indexDoc(t, ix, docSpec{
		context: "infra", subcontext: "deploy", title: "two", content: "bbbbbbbb",
		updatedAt: testTime.Add(time.Hour),
	})

	stats, err = ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Contexts)
	assert.Equal(t, 2, stats.Subcontexts)
	assert.Equal(t, 6.0, stats.AvgContentLength)
	assert.Equal(t, testTime.Add(time.Hour), stats.LastUpdatedAt)
	assert.Greater(t, stats.DiskSizeBytes, int64(0))
}
