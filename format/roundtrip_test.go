package format

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep/fsio"
)

var testTime = time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)

func TestRootRoundTrip(t *testing.T) {
	fs := fsio.OS{}
	path := filepath.Join(t.TempDir(), RootFileName)

	root := NewRootMemory("demo", testTime)
	root.Architecture = "layered"
	root.Objectives = "remember everything"
	root.Contexts["general"] = Context{
		Description: "catch-all",
		Priority:    5,
		LinkTable:   "links/general" + LinkTableExt,
	}
	root.Counters = Counters{Contexts: 1, Links: 2, Submemories: 3, Memories: 4}

	require.NoError(t, WriteRoot(fs, path, root))

	got, err := ReadRoot(fs, path)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestReadRootMissing(t *testing.T) {
	_, err := ReadRoot(fsio.OS{}, filepath.Join(t.TempDir(), RootFileName))
	assert.True(t, fsio.IsNotFound(err))
}

func TestLinksRoundTrip(t *testing.T) {
	fs := fsio.OS{}
	path := filepath.Join(t.TempDir(), "general"+LinkTableExt)

	links := []Link{
		{Context: "general", Subcontext: "setup", Description: "first steps", DocumentPath: "general/setup/20250601T123045-hello.md"},
		{Context: "general", Subcontext: "setup", Description: "has\ttab and\nnewline", DocumentPath: "general/setup/20250601T123046-edge.md"},
	}
	require.NoError(t, WriteLinks(fs, path, links))

	got, err := ReadLinks(fs, path)
	require.NoError(t, err)
	assert.Equal(t, links, got)
}

func TestLinksEmptyTable(t *testing.T) {
	fs := fsio.OS{}
	path := filepath.Join(t.TempDir(), "empty"+LinkTableExt)

	require.NoError(t, WriteLinks(fs, path, nil))
	got, err := ReadLinks(fs, path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubmemoryRoundTrip(t *testing.T) {
	fs := fsio.OS{}
	path := filepath.Join(t.TempDir(), "design"+SubmemoryExt)

	sub := &Submemory{
		ID:         "0b6f9a2e",
		Context:    "general",
		Subcontext: "design",
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
		Tags:       []string{"api", "design"},
		Priority:   7,
		References: []MemoryReference{
			{Title: "Análise do Módulo", Path: "general/design/20250601T123045-analise-do-modulo.md", Summary: "módulo notes"},
		},
		RelatedContexts: []string{"infra"},
	}
	require.NoError(t, WriteSubmemory(fs, path, sub))

	got, err := ReadSubmemory(fs, path)
	require.NoError(t, err)
	assert.Equal(t, sub, got)
}

func TestMemoryRoundTrip(t *testing.T) {
	fs := fsio.OS{}
	path := filepath.Join(t.TempDir(), "doc"+MemoryExt)

	mem := &Memory{
		Frontmatter: Frontmatter{
			ID:         "b1946ac9",
			Title:      "Análise do Módulo",
			Context:    "general",
			Subcontext: "design",
			CreatedAt:  testTime,
			UpdatedAt:  testTime,
			Tags:       []string{"api", "design"},
			Importance: ImportanceHigh,
		},
		Content: "## Notes\n\nBody with unicode: ação, straße.\n",
	}
	require.NoError(t, WriteMemory(fs, path, mem))

	got, err := ReadMemory(fs, path)
	require.NoError(t, err)
	assert.Equal(t, mem, got)
}

func TestMemoryBodyRoundTripsVerbatim(t *testing.T) {
	fs := fsio.OS{}
	dir := t.TempDir()

	for i, content := range []string{"no trailing newline", "kept\n", "", "\nleading blank line\n"} {
		path := filepath.Join(dir, fmt.Sprintf("doc%d", i)+MemoryExt)
		mem := &Memory{
			Frontmatter: Frontmatter{
				ID: "b1946ac9", Title: "verbatim body", Context: "general", Subcontext: "design",
				CreatedAt: testTime, UpdatedAt: testTime, Importance: ImportanceLow,
			},
			Content: content,
		}
		require.NoError(t, WriteMemory(fs, path, mem))
		got, err := ReadMemory(fs, path)
		require.NoError(t, err)
		assert.Equal(t, content, got.Content, "content %q", content)
	}
}

func TestParseMemoryCRLFAndDelimiters(t *testing.T) {
	raw := "---\r\ntitle: crlf doc\r\nimportance: low\r\n---\r\nbody line\r\n"
	mem, err := ParseMemory([]byte(raw), "x.md")
	require.NoError(t, err)
	assert.Equal(t, "crlf doc", mem.Title)
	assert.Equal(t, "body line\n", mem.Content)

	_, err = ParseMemory([]byte("no frontmatter here"), "x.md")
	require.Error(t, err)

	_, err = ParseMemory([]byte("---\ntitle: open\n"), "x.md")
	require.Error(t, err)
}

func TestParseMemoryPreservesTags(t *testing.T) {
	raw := "---\ntitle: tagged\ntags: [API, api, Módulo]\nimportance: medium\n---\n"
	mem, err := ParseMemory([]byte(raw), "x.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"API", "api", "Módulo"}, mem.Tags)
}

func TestMemoryRelPath(t *testing.T) {
	rel := MemoryRelPath("general", "design", testTime, "analise-do-modulo")
	assert.Equal(t, "general/design/20250601T123045-analise-do-modulo.md", rel)
}
