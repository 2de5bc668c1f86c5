// Package parser extracts [[wikilinks]] from note content, derives slugs from
// titles, and reads and writes the vault's document formats.
package parser

import (
	"regexp"
	"strings"
	"unicode"
)

var wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)

// Link is a forward reference found in note content.
type Link struct {
	Target  string
	Context string
}

// ExtractLinks returns every [[wikilink]] in content in order of appearance.
// Repeated targets are kept; Context holds the matched span including brackets.
func ExtractLinks(content string) []Link {
	matches := wikilinkRe.FindAllStringSubmatch(content, -1)
	out := make([]Link, 0, len(matches))
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		out = append(out, Link{Target: target, Context: m[0]})
	}
	return out
}

// Slug derives a note id from a title: lowercase, runs of whitespace and "-"
// collapsed to a single "-", anything other than letters, digits and "_"
// dropped.
// Distinct titles may map to the same slug.
func Slug(title string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingSep = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
