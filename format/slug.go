package format

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameKind labels what a normalized identifier is used for, so
// NormalizeName can report which rule was violated.
type NameKind string

const (
	KindContext    NameKind = "context"
	KindSubcontext NameKind = "subcontext"
	KindTitle      NameKind = "title"
	KindTag        NameKind = "tag"
)

// foldTransformer strips combining marks after NFD decomposition, which
// turns "á" into "a", "ç" into "c", "ñ" into "n", etc.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ligatures covers letters that NFD does not decompose into a base
// letter plus combining mark.
var ligatures = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"đ", "d",
	"ð", "d",
	"þ", "th",
	"ł", "l",
)

// Slugify maps an arbitrary user-supplied name to a filesystem-safe
// identifier: lowercase, diacritics folded to ASCII, whitespace collapsed
// to single dashes, every other character outside [a-z0-9_-] dropped.
// It is idempotent: Slugify(Slugify(s)) == Slugify(s). The same function
// runs at write time and at lookup time so a name can never be stored
// under one spelling and looked up under another.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = ligatures.Replace(s)
	if folded, _, err := transform.String(foldTransformer, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	lastDash := true // swallow leading separators
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case r == '_':
			b.WriteByte('_')
			lastDash = false
		case unicode.IsSpace(r), r == '-', r == '.', r == '/', r == '\\', r == ':':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		default:
			// dropped
		}
	}
	return strings.Trim(b.String(), "-_")
}

// NormalizeName slugifies name and fails when nothing identifier-legal
// survives the folding.
func NormalizeName(name string, kind NameKind) (string, error) {
	slug := Slugify(name)
	if slug == "" {
		return "", fmt.Errorf("%s name %q normalizes to an empty identifier", kind, name)
	}
	return slug, nil
}
