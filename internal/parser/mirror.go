package parser

import (
	"strings"
)

// MirrorExt is the extension of document mirror files in the vault.
const MirrorExt = ".md"

// MirrorFilename returns the vault file name for a note id.
func MirrorFilename(id string) string {
	return id + MirrorExt
}

// RenderMirror renders the human-editable document mirror of a note: a
// heading with the title, an optional line of #tags, a blank line and the
// raw content.
func RenderMirror(title string, tags []string, content string) []byte {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteByte('\n')
	if len(tags) > 0 {
		for i, t := range tags {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte('#')
			b.WriteString(t)
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(content)
	return []byte(b.String())
}

// ParseMirror reads the heading and tag line written by RenderMirror. It
// reports false when data does not start with a "# " heading followed by an
// optional line of #tags and a blank line.
func ParseMirror(data []byte) (Header, bool) {
	text := string(data)
	first, rest, ok := strings.Cut(text, "\n")
	first = strings.TrimRight(first, "\r")
	if !ok || !strings.HasPrefix(first, "# ") {
		return Header{}, false
	}
	title := strings.TrimSpace(strings.TrimPrefix(first, "# "))
	if title == "" {
		return Header{}, false
	}

	line, body, ok := strings.Cut(rest, "\n")
	line = strings.TrimRight(line, "\r")
	if !ok && line != "" {
		return Header{}, false
	}
	var tags []string
	if line != "" {
		if tags = tagLine(line); tags == nil {
			return Header{}, false
		}
		line, body, ok = strings.Cut(body, "\n")
		if strings.TrimRight(line, "\r") != "" || (!ok && line != "") {
			return Header{}, false
		}
	}
	return Header{Found: true, Title: title, Tags: tags, Body: body}, true
}

// tagLine returns the tags of a line made only of "#tag" words, or nil.
func tagLine(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimPrefix(f, "#")
		if t == f || t == "" || strings.HasPrefix(t, "#") {
			return nil
		}
		tags = append(tags, t)
	}
	return tags
}
