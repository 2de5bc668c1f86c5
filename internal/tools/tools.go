// Package tools is the narrow facade used by automated callers: read, write,
// search and query-graph, delegating to the note store.
package tools

import (
	"context"
	"path"
	"strings"

	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/noteservice"
	"github.com/starford/mimir/internal/parser"
)

// NoteStore is the subset of the note service the facade relies on.
type NoteStore interface {
	CreateNote(ctx context.Context, title, content string, tags []string) (*models.Note, error)
	ReadNote(ctx context.Context, id string) (*models.Note, error)
	ReadNoteByPath(ctx context.Context, path string) (*models.Note, error)
	UpdateNote(ctx context.Context, id string, patch noteservice.NotePatch) (*models.Note, error)
	Search(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error)
	GetLinks(ctx context.Context, id string, dir models.Direction, limit int) (*models.LinkResult, error)
}

var _ NoteStore = (*noteservice.Service)(nil)

// WriteRequest creates a note when ID is empty and updates it otherwise.
// On update nil fields are left unchanged.
type WriteRequest struct {
	ID      string
	Title   *string
	Content *string
	Tags    *[]string
}

// Facade exposes the agent-oriented operations.
type Facade struct {
	store NoteStore
}

// New creates a Facade over store.
func New(store NoteStore) *Facade {
	return &Facade{store: store}
}

// ReadNote reads by mirror path when idOrPath looks like one, otherwise by id.
func (f *Facade) ReadNote(ctx context.Context, idOrPath string) (*models.Note, error) {
	if isPath(idOrPath) {
		return f.store.ReadNoteByPath(ctx, idOrPath)
	}
	return f.store.ReadNote(ctx, idOrPath)
}

func isPath(s string) bool {
	return strings.ContainsAny(s, `/\`) || path.Ext(s) == parser.MirrorExt
}

// WriteNote dispatches to update when an id is supplied, else to create.
func (f *Facade) WriteNote(ctx context.Context, req WriteRequest) (*models.Note, error) {
	if req.ID != "" {
		return f.store.UpdateNote(ctx, req.ID, noteservice.NotePatch{
			Title:   req.Title,
			Content: req.Content,
			Tags:    req.Tags,
		})
	}
	var (
		title, content string
		tags           []string
	)
	if req.Title != nil {
		title = *req.Title
	}
	if req.Content != nil {
		content = *req.Content
	}
	if req.Tags != nil {
		tags = *req.Tags
	}
	return f.store.CreateNote(ctx, title, content, tags)
}

// SearchNotes runs a ranked full-text search.
func (f *Facade) SearchNotes(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error) {
	return f.store.Search(ctx, query, tags, limit)
}

// QueryGraph returns the edges of id. An empty id yields an empty result.
func (f *Facade) QueryGraph(ctx context.Context, id string, dir models.Direction, limit int) (*models.LinkResult, error) {
	if id == "" {
		return &models.LinkResult{Links: []models.Link{}}, nil
	}
	return f.store.GetLinks(ctx, id, dir, limit)
}
