package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
)

const noteColumns = `id, title, content, path, tags, created, modified`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanNote maps one notes row to the domain type. Every read of the notes
// table goes through here.
func scanNote(sc scanner) (*models.Note, error) {
	var (
		n                 models.Note
		tagsJSON          string
		created, modified int64
	)
	if err := sc.Scan(&n.ID, &n.Title, &n.Content, &n.Path, &tagsJSON, &created, &modified); err != nil {
		return nil, err
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return nil, fmt.Errorf("index: note %s: %w", n.ID, err)
	}
	n.Tags = tags
	n.Created = time.Unix(0, created).UTC()
	n.Modified = time.Unix(0, modified).UTC()
	return &n, nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// GetNote returns the note with the given id or apperr.ErrNotFound.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	return getNote(db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
}

// GetNoteByPath returns the note mirrored at path or apperr.ErrNotFound.
func (db *DB) GetNoteByPath(ctx context.Context, path string) (*models.Note, error) {
	return getNote(db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE path = ?`, path))
}

func getNote(row *sql.Row) (*models.Note, error) {
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns every note without content, most recently modified first.
func (db *DB) ListNotes(ctx context.Context) ([]models.NoteSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, '', path, tags, created, modified
		FROM notes
		ORDER BY modified DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.NoteSummary{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("index: list notes: %w", err)
		}
		out = append(out, models.NoteSummary{
			ID:       n.ID,
			Title:    n.Title,
			Path:     n.Path,
			Tags:     n.Tags,
			Created:  n.Created,
			Modified: n.Modified,
		})
	}
	return out, rows.Err()
}

// AllPaths returns the mirror path of every note.
func (db *DB) AllPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// GetNote reads a note inside the transaction.
func (t *Tx) GetNote(id string) (*models.Note, error) {
	return getNote(t.tx.QueryRowContext(t.ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
}

// GetNoteByPath reads the note mirrored at path inside the transaction.
func (t *Tx) GetNoteByPath(path string) (*models.Note, error) {
	return getNote(t.tx.QueryRowContext(t.ctx, `SELECT `+noteColumns+` FROM notes WHERE path = ?`, path))
}

// InsertNote stores a new note row and derives its links and search entry.
// refs are the note's forward references in content order.
func (t *Tx) InsertNote(n *models.Note, refs []models.Link) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO notes (id, title, content, path, tags, created, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Title, n.Content, n.Path, encodeTags(n.Tags), n.Created.UnixNano(), n.Modified.UnixNano())
	if err != nil {
		return fmt.Errorf("index: insert note: %w", err)
	}
	return t.derive(n, refs)
}

// UpdateNote rewrites an existing note row and re-derives its links and
// search entry. id, path and created are never changed.
func (t *Tx) UpdateNote(n *models.Note, refs []models.Link) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE notes SET title = ?, content = ?, tags = ?, modified = ?
		WHERE id = ?
	`, n.Title, n.Content, encodeTags(n.Tags), n.Modified.UnixNano(), n.ID)
	if err != nil {
		return fmt.Errorf("index: update note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperr.ErrNotFound
	}
	return t.derive(n, refs)
}

// DeleteNote removes a note with its links and search entry. It reports
// false when no such note exists.
func (t *Tx) DeleteNote(id string) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("index: delete note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return false, nil
	}
	if err := t.deleteLinks(id); err != nil {
		return false, err
	}
	if err := searchDelete(t, id); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tx) derive(n *models.Note, refs []models.Link) error {
	if err := t.replaceLinks(n.ID, refs); err != nil {
		return err
	}
	return searchUpsert(t, n.ID, n.Title, n.Content)
}
