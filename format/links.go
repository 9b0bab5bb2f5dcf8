package format

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/memkeep/memkeep/fsio"
)

// Link is a short pointer record from a (context, subcontext) to a leaf
// document path. Links live in per-context ordered tables; a link whose
// document no longer exists is a detectable, repairable state, not a
// crash.
type Link struct {
	Context      string `json:"context"`
	Subcontext   string `json:"subcontext"`
	Description  string `json:"description"`
	DocumentPath string `json:"document_path"`
}

var linkHeader = []string{"context", "subcontext", "description", "document_path"}

// ReadLinks reads one context's tabular link file. The table is
// tab-separated with a header row; csv quoting keeps descriptions with
// tabs or newlines lossless.
func ReadLinks(fs fsio.FS, path string) ([]Link, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.FieldsPerRecord = len(linkHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decoding link table %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("decoding link table %s: missing header row", path)
	}

	links := make([]Link, 0, len(records)-1)
	for _, rec := range records[1:] {
		links = append(links, Link{
			Context:      rec[0],
			Subcontext:   rec[1],
			Description:  rec[2],
			DocumentPath: rec[3],
		})
	}
	return links, nil
}

// WriteLinks durably writes one context's link table, header included.
func WriteLinks(fs fsio.FS, path string, links []Link) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	if err := w.Write(linkHeader); err != nil {
		return fmt.Errorf("encoding link table header: %w", err)
	}
	for _, link := range links {
		rec := []string{link.Context, link.Subcontext, link.Description, link.DocumentPath}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("encoding link record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding link table: %w", err)
	}
	return fs.WriteFile(path, buf.Bytes())
}
