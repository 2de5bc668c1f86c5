// Package noteservice is the note store: it keeps the canonical note row, the
// link graph, the search entry and the vault mirror file of every note in step.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/index"
	"github.com/starford/mimir/internal/metrics"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/parser"
	"github.com/starford/mimir/internal/storage"
)

// Event kinds passed to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

const defaultLinkLimit = 100

// EventCallback is called after a mutation has committed.
type EventCallback func(kind, id string)

// NotePatch carries the fields of an update. Nil fields are left unchanged.
type NotePatch struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// Service coordinates storage and index operations.
type Service struct {
	store    storage.Provider
	db       index.NoteIndex
	logger   *slog.Logger
	pattern  string
	excluded map[string]struct{}
	onEvent  EventCallback
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithVaultPattern sets the glob used by vault scans (default "*.md").
func WithVaultPattern(pattern string) Option {
	return func(s *Service) {
		if pattern != "" {
			s.pattern = pattern
		}
	}
}

// WithExcludedFiles keeps the given absolute paths out of vault scans. The
// SQLite file and its journal siblings are excluded this way.
func WithExcludedFiles(paths ...string) Option {
	return func(s *Service) {
		for _, p := range paths {
			s.excluded[p] = struct{}{}
		}
	}
}

// WithEventCallback registers a callback for committed mutations.
func WithEventCallback(cb EventCallback) Option {
	return func(s *Service) { s.onEvent = cb }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, opts ...Option) *Service {
	s := &Service{
		store:    store,
		db:       db,
		logger:   slog.Default(),
		pattern:  "*" + parser.MirrorExt,
		excluded: make(map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateNote creates a note whose id is the slug of title. The mirror file is
// written before the transaction commits; if it cannot be written nothing is
// stored.
func (s *Service) CreateNote(ctx context.Context, title, content string, tags []string) (*models.Note, error) {
	start := time.Now()
	n, err := s.create(ctx, title, content, tags, "")
	metrics.ObserveOperation("create", start, err)
	return n, err
}

// create stores a new note. A non-empty adoptPath names an existing vault
// file that becomes the note's mirror as-is.
func (s *Service) create(ctx context.Context, title, content string, tags []string, adoptPath string) (*models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrInvalid)
	}
	id := parser.Slug(title)
	if id == "" {
		return nil, fmt.Errorf("%w: title %q has no usable characters", apperr.ErrInvalid, title)
	}

	now := s.now().UTC()
	n := &models.Note{
		ID:       id,
		Title:    title,
		Content:  content,
		Path:     adoptPath,
		Tags:     normalizeTags(tags),
		Created:  now,
		Modified: now,
	}
	if n.Path == "" {
		n.Path = parser.MirrorFilename(id)
	}

	mirrorWritten := false
	err := s.db.WithTx(ctx, func(tx *index.Tx) error {
		if err := ensureAbsent(tx.GetNote(id)); err != nil {
			return fmt.Errorf("%w: id %q", err, id)
		}
		if err := ensureAbsent(tx.GetNoteByPath(n.Path)); err != nil {
			return fmt.Errorf("%w: path %q", err, n.Path)
		}
		if adoptPath == "" {
			if err := s.store.Write(n.Path, mirrorOf(n)); err != nil {
				return fmt.Errorf("%w: %w", apperr.ErrMirrorIO, err)
			}
			mirrorWritten = true
		}
		return tx.InsertNote(n, references(n))
	})
	if err != nil {
		if mirrorWritten {
			if rmErr := s.store.Delete(n.Path); rmErr != nil {
				s.logger.Warn("create: orphan mirror not removed",
					slog.String("path", n.Path), slog.String("error", rmErr.Error()))
			}
		}
		return nil, err
	}

	s.logger.Debug("note created", slog.String("id", n.ID), slog.String("path", n.Path))
	s.emit(EventCreated, n.ID)
	return n, nil
}

// ensureAbsent turns a successful lookup into ErrDuplicateNote and a missing
// row into nil.
func ensureAbsent(_ *models.Note, err error) error {
	switch {
	case err == nil:
		return apperr.ErrDuplicateNote
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return err
	}
}

// ReadNote returns the note with id, or apperr.ErrNotFound. Links are not
// populated; use GetLinks.
func (s *Service) ReadNote(ctx context.Context, id string) (*models.Note, error) {
	start := time.Now()
	n, err := s.db.GetNote(ctx, id)
	metrics.ObserveOperation("read", start, err)
	return n, err
}

// ReadNoteByPath returns the note mirrored at path, or apperr.ErrNotFound.
func (s *Service) ReadNoteByPath(ctx context.Context, path string) (*models.Note, error) {
	start := time.Now()
	n, err := s.db.GetNoteByPath(ctx, path)
	metrics.ObserveOperation("read", start, err)
	return n, err
}

// UpdateNote merges patch over the stored note and re-derives its links and
// search entry. id, path and created never change.
func (s *Service) UpdateNote(ctx context.Context, id string, patch NotePatch) (*models.Note, error) {
	start := time.Now()
	n, err := s.update(ctx, id, patch)
	metrics.ObserveOperation("update", start, err)
	return n, err
}

func (s *Service) update(ctx context.Context, id string, patch NotePatch) (*models.Note, error) {
	var (
		updated       *models.Note
		mirrorPath    string
		previous      []byte
		hadPrevious   bool
		mirrorWritten bool
	)
	err := s.db.WithTx(ctx, func(tx *index.Tx) error {
		cur, err := tx.GetNote(id)
		if err != nil {
			return err
		}

		next := *cur
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return fmt.Errorf("%w: title is required", apperr.ErrInvalid)
			}
			next.Title = title
		}
		if patch.Content != nil {
			next.Content = *patch.Content
		}
		if patch.Tags != nil {
			next.Tags = normalizeTags(*patch.Tags)
		}
		next.Modified = s.now().UTC()
		if next.Modified.Before(cur.Modified) {
			next.Modified = cur.Modified
		}

		mirrorPath = next.Path
		if data, readErr := s.store.Read(next.Path); readErr == nil {
			previous, hadPrevious = data, true
		}
		if err := s.store.Write(next.Path, mirrorOf(&next)); err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrMirrorIO, err)
		}
		mirrorWritten = true

		if err := tx.UpdateNote(&next, references(&next)); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		if mirrorWritten {
			s.restoreMirror(mirrorPath, previous, hadPrevious)
		}
		return nil, err
	}

	s.logger.Debug("note updated", slog.String("id", updated.ID))
	s.emit(EventUpdated, updated.ID)
	return updated, nil
}

// restoreMirror puts back the mirror bytes seen before a failed update, or
// removes the file when there were none.
func (s *Service) restoreMirror(path string, data []byte, existed bool) {
	var err error
	if existed {
		err = s.store.Write(path, data)
	} else {
		err = s.store.Delete(path)
	}
	if err != nil {
		s.logger.Warn("update: mirror not restored after failed commit",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// DeleteNote removes a note, its edges and its search entry, then removes
// the mirror file. It returns false when the note does not exist. A mirror
// removal failure is logged and does not fail the call.
func (s *Service) DeleteNote(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := s.delete(ctx, id)
	metrics.ObserveOperation("delete", start, err)
	return ok, err
}

func (s *Service) delete(ctx context.Context, id string) (bool, error) {
	var removed *models.Note
	err := s.db.WithTx(ctx, func(tx *index.Tx) error {
		cur, err := tx.GetNote(id)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok, err := tx.DeleteNote(id)
		if err != nil {
			return err
		}
		if ok {
			removed = cur
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed == nil {
		return false, nil
	}

	if err := s.store.Delete(removed.Path); err != nil {
		s.logger.Warn("delete: mirror removal failed",
			slog.String("id", id),
			slog.String("path", removed.Path),
			slog.String("error", fmt.Errorf("%w: %w", apperr.ErrMirrorIO, err).Error()))
	}
	s.logger.Debug("note deleted", slog.String("id", id))
	s.emit(EventDeleted, id)
	return true, nil
}

// ListNotes returns lightweight records, most recently modified first.
func (s *Service) ListNotes(ctx context.Context) ([]models.NoteSummary, error) {
	start := time.Now()
	list, err := s.db.ListNotes(ctx)
	metrics.ObserveOperation("list", start, err)
	return list, err
}

// Search runs a ranked full-text query. Tags, when given, keep notes that
// carry at least one of them.
func (s *Service) Search(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error) {
	start := time.Now()
	hits, err := s.db.Search(ctx, query, normalizeTags(tags), limit)
	metrics.ObserveOperation("search", start, err)
	return hits, err
}

// GetLinks returns the edges of a note. An empty direction means outgoing.
func (s *Service) GetLinks(ctx context.Context, id string, dir models.Direction, limit int) (*models.LinkResult, error) {
	start := time.Now()
	if dir == "" {
		dir = models.DirectionOutgoing
	}
	if limit <= 0 {
		limit = defaultLinkLimit
	}
	var (
		res *models.LinkResult
		err error
	)
	if !dir.Valid() {
		err = fmt.Errorf("%w: unknown direction %q", apperr.ErrInvalid, dir)
	} else {
		res, err = s.db.Links(ctx, id, dir, limit)
	}
	metrics.ObserveOperation("links", start, err)
	return res, err
}

func (s *Service) emit(kind, id string) {
	if s.onEvent != nil {
		s.onEvent(kind, id)
	}
}

// references extracts the forward links of a note's content.
func references(n *models.Note) []models.Link {
	found := parser.ExtractLinks(n.Content)
	out := make([]models.Link, len(found))
	for i, l := range found {
		out[i] = models.Link{
			Source:   n.ID,
			Target:   l.Target,
			TargetID: parser.Slug(l.Target),
			Kind:     models.LinkReference,
			Context:  l.Context,
		}
	}
	return out
}

func mirrorOf(n *models.Note) []byte {
	return parser.RenderMirror(n.Title, n.Tags, n.Content)
}

// normalizeTags trims tags and drops blanks and repeats, keeping first
// occurrence order.
func normalizeTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
