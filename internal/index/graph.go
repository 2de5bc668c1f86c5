package index

import (
	"context"
	"fmt"

	"github.com/starford/mimir/internal/models"
)

// replaceLinks drops every edge the note originates and writes its current
// references in order, followed by one backlink per distinct target.
// Backlinks are stored even when the target note does not exist yet.
func (t *Tx) replaceLinks(source string, refs []models.Link) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM links WHERE source = ?`, source); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(refs) == 0 {
		return nil
	}

	refStmt, err := t.tx.PrepareContext(t.ctx, `
		INSERT INTO links (source, target, target_id, kind, context, position)
		VALUES (?, ?, ?, 'reference', ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare link insert: %w", err)
	}
	defer refStmt.Close()

	backStmt, err := t.tx.PrepareContext(t.ctx, `
		INSERT OR IGNORE INTO links (source, target, target_id, kind, context, position)
		VALUES (?, ?, ?, 'backlink', ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare backlink insert: %w", err)
	}
	defer backStmt.Close()

	for i, l := range refs {
		if _, err := refStmt.ExecContext(t.ctx, source, l.Target, l.TargetID, l.Context, i); err != nil {
			return fmt.Errorf("index: insert link: %w", err)
		}
	}
	for i, l := range refs {
		if _, err := backStmt.ExecContext(t.ctx, source, l.Target, l.TargetID, l.Context, i); err != nil {
			return fmt.Errorf("index: insert backlink: %w", err)
		}
	}
	return nil
}

// deleteLinks removes every edge where the note is the origin or the target.
func (t *Tx) deleteLinks(id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM links WHERE source = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	return nil
}

// Links answers a graph query for a note id. Outgoing edges are the note's
// references; incoming edges are backlinks recorded against it. "both" is the
// outgoing rows followed by the incoming ones, truncated to limit.
func (db *DB) Links(ctx context.Context, id string, dir models.Direction, limit int) (*models.LinkResult, error) {
	if limit <= 0 {
		limit = 100
	}

	var all []models.Link
	if dir == models.DirectionOutgoing || dir == models.DirectionBoth {
		out, err := db.queryLinks(ctx, `
			SELECT source, target, target_id, kind, context FROM links
			WHERE source = ? AND kind = 'reference'
			ORDER BY position
		`, id)
		if err != nil {
			return nil, err
		}
		all = append(all, out...)
	}
	if dir == models.DirectionIncoming || dir == models.DirectionBoth {
		in, err := db.queryLinks(ctx, `
			SELECT source, target, target_id, kind, context FROM links
			WHERE target_id = ? AND kind = 'backlink'
			ORDER BY source
		`, id)
		if err != nil {
			return nil, err
		}
		all = append(all, in...)
	}

	res := &models.LinkResult{Links: []models.Link{}, TotalCount: len(all)}
	if len(all) > limit {
		all = all[:limit]
	}
	res.Links = append(res.Links, all...)
	return res, nil
}

func (db *DB) queryLinks(ctx context.Context, query string, args ...any) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var (
			l    models.Link
			kind string
		)
		if err := rows.Scan(&l.Source, &l.Target, &l.TargetID, &kind, &l.Context); err != nil {
			return nil, err
		}
		l.Kind = models.LinkKind(kind)
		out = append(out, l)
	}
	return out, rows.Err()
}
