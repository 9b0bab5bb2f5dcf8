package format

import (
	"path/filepath"
	"time"
)

// On-disk layout of a memory root:
//
//	memory.yaml                                    root document
//	links/<context>.tsv                            link tables
//	submemories/<context>/<subcontext>.yaml        submemory documents
//	memories/<context>/<subcontext>/<ts>-<slug>.md leaf documents
//	search.db                                      search index
const (
	RootFileName   = "memory.yaml"
	LinksDirName   = "links"
	SubsDirName    = "submemories"
	MemoriesDir    = "memories"
	IndexFileName  = "search.db"
	LinkTableExt   = ".tsv"
	SubmemoryExt   = ".yaml"
	MemoryExt      = ".md"
	fileTimeLayout = "20060102T150405"
)

// Layout resolves every relative and absolute path under a memory root.
// All name arguments are expected to be already normalized.
type Layout struct {
	Dir string
}

func (l Layout) RootPath() string {
	return filepath.Join(l.Dir, RootFileName)
}

func (l Layout) LinkTablePath(context string) string {
	return filepath.Join(l.Dir, LinksDirName, context+LinkTableExt)
}

func (l Layout) SubmemoryPath(context, subcontext string) string {
	return filepath.Join(l.Dir, SubsDirName, context, subcontext+SubmemoryExt)
}

// SubmemoryKey is the cache key for a submemory document.
func SubmemoryKey(context, subcontext string) string {
	return context + "/" + subcontext
}

func (l Layout) MemoriesRoot() string {
	return filepath.Join(l.Dir, MemoriesDir)
}

func (l Layout) MemoryDir(context, subcontext string) string {
	return filepath.Join(l.Dir, MemoriesDir, context, subcontext)
}

// MemoryPath resolves a document path relative to the memories root.
func (l Layout) MemoryPath(relative string) string {
	return filepath.Join(l.Dir, MemoriesDir, filepath.FromSlash(relative))
}

func (l Layout) IndexPath() string {
	return filepath.Join(l.Dir, IndexFileName)
}

// MemoryFileName builds a leaf document filename. The sortable timestamp
// prefix keeps lexicographic order equal to chronological order within a
// directory.
func MemoryFileName(at time.Time, titleSlug string) string {
	return at.UTC().Format(fileTimeLayout) + "-" + titleSlug + MemoryExt
}

// MemoryRelPath builds the slash-separated relative path a leaf document
// is addressed by everywhere in the system (cache, links, index).
func MemoryRelPath(context, subcontext string, at time.Time, titleSlug string) string {
	return context + "/" + subcontext + "/" + MemoryFileName(at, titleSlug)
}
