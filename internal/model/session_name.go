package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SessionName derives the deterministic vendor session name for a tenant:
// "wa-<slug>-<tenantID>". Accents are folded before slugging so "João" and
// "Joao" map to the same slug.
func SessionName(username, tenantID string) string {
	return "wa-" + Slug(username) + "-" + tenantID
}

// Slug lowercases s, removes combining marks and collapses every run of
// characters outside [a-z0-9] into a single '-'. An empty result becomes "user".
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "user"
	}
	return out
}
