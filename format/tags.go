package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Tags are projected into two places: the searchable text of the index
// (tokenization only) and the metadata store (structured). The functions
// in this file are the single encode/decode boundary for the structured
// form; nothing else in the repository serializes tags.

// NormalizeTags lowercases, slugifies and de-duplicates tags while
// preserving first-seen order. Empty results are dropped.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	return lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		slug := Slugify(tag)
		if slug == "" {
			return "", false
		}
		if _, dup := seen[slug]; dup {
			return "", false
		}
		seen[slug] = struct{}{}
		return slug, true
	})
}

// EncodeTags produces the canonical on-disk tag encoding: a JSON array of
// normalized tags. An empty set encodes as "[]", never as "".
func EncodeTags(tags []string) string {
	normalized := NormalizeTags(tags)
	if normalized == nil {
		normalized = []string{}
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		// a []string cannot fail to marshal
		return "[]"
	}
	return string(data)
}

// DecodeTags strictly decodes the canonical encoding. Callers that can
// tolerate drifted rows should fall back to RepairTags on error instead
// of swallowing it.
func DecodeTags(encoded string) ([]string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil, fmt.Errorf("tag field is not a canonical JSON array: %w", err)
	}
	return NormalizeTags(tags), nil
}

// RepairTags recovers tags from a drifted field by treating it as a naive
// token list (whitespace or comma separated, stray brackets and quotes
// stripped) and re-normalizing. It is the supported repair path for the
// known tag-projection defect class.
func RepairTags(raw string) []string {
	cleaned := strings.NewReplacer("[", " ", "]", " ", `"`, " ", "'", " ", ",", " ").Replace(raw)
	return NormalizeTags(strings.Fields(cleaned))
}
