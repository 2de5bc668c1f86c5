package index

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultSearchLimit = 50
	previewLen         = 200
)

// preview returns the first previewLen characters of content, with an
// ellipsis when it was cut.
func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLen]) + "..."
}

// tagFilter returns a predicate on notes alias n keeping rows that carry at
// least one of tags.
func tagFilter(tags []string) (string, []any) {
	if len(tags) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(tags))
	args := make([]any, len(tags))
	for i, t := range tags {
		placeholders[i] = "?"
		args[i] = t
	}
	return ` AND EXISTS (SELECT 1 FROM json_each(n.tags) WHERE json_each.value IN (` +
		strings.Join(placeholders, ", ") + `))`, args
}
