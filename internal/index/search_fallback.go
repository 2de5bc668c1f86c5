//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"

	"github.com/starford/mimir/internal/models"
)

// Without FTS5 the search entry keeps a space-delimited list of stemmed terms
// in document order and queries match against it with LIKE.
func initSearch(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS search_entries (
			id      TEXT PRIMARY KEY,
			title   TEXT NOT NULL,
			content TEXT NOT NULL,
			terms   TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

func searchUpsert(t *Tx, id, title, content string) error {
	terms := " " + strings.Join(stemAll(title), " ") + " " + fieldBreak + " " +
		strings.Join(stemAll(content), " ") + " "
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO search_entries (id, title, content, terms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title   = excluded.title,
			content = excluded.content,
			terms   = excluded.terms
	`, id, title, content, terms)
	if err != nil {
		return fmt.Errorf("index: upsert search entry: %w", err)
	}
	return nil
}

func searchDelete(t *Tx, id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM search_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete search entry: %w", err)
	}
	return nil
}

// SearchEntryCount returns how many search entries exist for id.
func (db *DB) SearchEntryCount(ctx context.Context, id string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM search_entries WHERE id = ?`, id).Scan(&n)
	return n, err
}

// fieldBreak separates title terms from content terms so a phrase cannot span
// the two. It never equals a stem.
const fieldBreak = "|"

// queryTerm is one word or one quoted phrase. A phrase holds its stems joined
// by single spaces, matching the layout of the stored terms.
type queryTerm struct {
	stem   string
	prefix bool
}

// needle is the substring of the stored terms this term matches.
func (qt queryTerm) needle() string {
	if qt.prefix {
		return " " + qt.stem
	}
	return " " + qt.stem + " "
}

// Search returns notes containing every query term, best match first. A
// quoted run matches as a phrase, a trailing "*" makes a word or phrase a
// prefix match, and the FTS operators AND, OR and NOT are ignored.
func (db *DB) Search(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits := []models.SearchHit{}
	terms := parseQuery(query)
	if len(terms) == 0 {
		return hits, nil
	}

	var (
		where []string
		args  []any
	)
	for _, qt := range terms {
		pattern := "%" + escapeLike(qt.needle()) + "%"
		where = append(where, `s.terms LIKE ? ESCAPE '\'`)
		args = append(args, pattern)
	}
	tagSQL, tagArgs := tagFilter(tags)
	args = append(args, tagArgs...)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT s.id, s.title, s.content, s.terms
		FROM search_entries s
		JOIN notes n ON n.id = s.id
		WHERE `+strings.Join(where, " AND ")+tagSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, title, content, stored string
		if err := rows.Scan(&id, &title, &content, &stored); err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{
			NoteID:  id,
			Title:   title,
			Preview: preview(content),
			Score:   score(stored, terms),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].NoteID < hits[j].NoteID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// parseQuery splits a query into words and quoted phrases. An unclosed quote
// runs to the end of the query.
func parseQuery(query string) []queryTerm {
	var out []queryTerm
	for query != "" {
		open := strings.IndexByte(query, '"')
		if open < 0 {
			return appendWords(out, query)
		}
		out = appendWords(out, query[:open])

		phrase, rest := query[open+1:], ""
		if end := strings.IndexByte(phrase, '"'); end >= 0 {
			phrase, rest = phrase[:end], phrase[end+1:]
		}
		prefix := strings.HasPrefix(rest, "*")
		out = appendPhrase(out, phrase, prefix)
		query = strings.TrimPrefix(rest, "*")
	}
	return out
}

func appendWords(out []queryTerm, text string) []queryTerm {
	for _, field := range strings.Fields(text) {
		switch field {
		case "AND", "OR", "NOT":
			continue
		}
		prefix := strings.HasSuffix(field, "*")
		words := tokenize(field)
		for i, w := range words {
			qt := queryTerm{stem: english.Stem(w, false)}
			if prefix && i == len(words)-1 {
				qt = queryTerm{stem: w, prefix: true}
			}
			out = append(out, qt)
		}
	}
	return out
}

// appendPhrase adds a quoted run as a single term. With prefix set the last
// word is left unstemmed and matched as a prefix.
func appendPhrase(out []queryTerm, phrase string, prefix bool) []queryTerm {
	words := tokenize(phrase)
	if len(words) == 0 {
		return out
	}
	for i, w := range words {
		if prefix && i == len(words)-1 {
			continue
		}
		words[i] = english.Stem(w, false)
	}
	return append(out, queryTerm{stem: strings.Join(words, " "), prefix: prefix})
}

// score counts the occurrences of every term in the stored terms. A phrase
// occurrence counts once.
func score(stored string, terms []queryTerm) float64 {
	var hits float64
	for _, qt := range terms {
		hits += float64(countOverlapping(stored, qt.needle()))
	}
	return hits
}

func countOverlapping(s, sub string) int {
	n := 0
	for {
		i := strings.Index(s, sub)
		if i < 0 {
			return n
		}
		n++
		s = s[i+1:]
	}
}

func stemAll(text string) []string {
	words := tokenize(text)
	for i, w := range words {
		words[i] = english.Stem(w, false)
	}
	return words
}

// tokenize lowercases text and splits it on anything that is not a letter or
// a digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
