//go:build !sqlite_fts5

package index

// The search index is built on SQLite's FTS5 module, which
// mattn/go-sqlite3 only compiles in when the sqlite_fts5 build tag is
// set. Build and test with:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
//
// or use the Makefile targets, which carry the tag. Failing the build
// here keeps a default build from producing a binary whose search
// operations die at migration time with "no such module: fts5".
var _ = buildRequiresTheSqliteFts5Tag
