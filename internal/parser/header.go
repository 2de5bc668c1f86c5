package parser

import (
	"strings"
)

const headerDelim = "---"

// Header is the optional metadata block at the top of an imported file.
type Header struct {
	Found bool
	Title string
	Tags  []string
	// Body is the file content after the header, or the whole file when no
	// header is present.
	Body string
}

// ParseHeader splits an optional "---" delimited header from data. Inside the
// header only "title:" and "tags:" lines are recognised; tags may be written
// as "[a, b]" or "a, b". Values are trimmed and stripped of quotes.
func ParseHeader(data []byte) Header {
	text := string(data)
	lines := strings.Split(text, "\n")
	if len(lines) < 2 || strings.TrimRight(lines[0], "\r ") != headerDelim {
		return Header{Body: text}
	}

	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r ") == headerDelim {
			closing = i
			break
		}
	}
	if closing < 0 {
		return Header{Body: text}
	}

	h := Header{Found: true}
	for _, line := range lines[1:closing] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "title":
			h.Title = unquote(value)
		case "tags":
			h.Tags = splitTags(value)
		}
	}
	h.Body = strings.TrimLeft(strings.Join(lines[closing+1:], "\n"), "\r\n")
	return h
}

func splitTags(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")

	var out []string
	for _, part := range strings.Split(value, ",") {
		if t := unquote(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
