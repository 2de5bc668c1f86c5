//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/mimir/internal/models"
)

func initSearch(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS search_entries USING fts5(
			id UNINDEXED,
			title,
			content,
			tokenize = 'porter unicode61'
		);
	`)
	return err
}

func searchUpsert(t *Tx, id, title, content string) error {
	if err := searchDelete(t, id); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO search_entries (id, title, content) VALUES (?, ?, ?)`,
		id, title, content)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func searchDelete(t *Tx, id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM search_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// SearchEntryCount returns how many search entries exist for id.
func (db *DB) SearchEntryCount(ctx context.Context, id string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM search_entries WHERE id = ?`, id).Scan(&n)
	return n, err
}

// Search runs an FTS5 MATCH query ranked by bm25. A failed query is retried
// once as a quoted phrase; if the parser rejects that too the result is empty.
func (db *DB) Search(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchHit{}, nil
	}

	hits, err := db.match(ctx, query, tags, limit)
	if err == nil {
		return hits, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("index: search: %w", ctxErr)
	}

	hits, err = db.match(ctx, `"`+strings.ReplaceAll(query, `"`, `""`)+`"`, tags, limit)
	if err != nil {
		if isMatchSyntaxError(err) {
			return []models.SearchHit{}, nil
		}
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return hits, nil
}

func (db *DB) match(ctx context.Context, expr string, tags []string, limit int) ([]models.SearchHit, error) {
	tagSQL, tagArgs := tagFilter(tags)
	args := append([]any{expr}, tagArgs...)
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT search_entries.id,
		       search_entries.title,
		       search_entries.content,
		       bm25(search_entries)
		FROM search_entries
		JOIN notes n ON n.id = search_entries.id
		WHERE search_entries MATCH ?`+tagSQL+`
		ORDER BY bm25(search_entries)
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []models.SearchHit{}
	for rows.Next() {
		var (
			h       models.SearchHit
			content string
			rank    float64
		)
		if err := rows.Scan(&h.NoteID, &h.Title, &content, &rank); err != nil {
			return nil, err
		}
		h.Preview = preview(content)
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func isMatchSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5") ||
		strings.Contains(msg, "syntax error") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "unterminated string")
}
