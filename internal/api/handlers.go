package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/noteservice"
)

// NoteService is the note store as seen by the HTTP handlers.
type NoteService interface {
	CreateNote(ctx context.Context, title, content string, tags []string) (*models.Note, error)
	ReadNote(ctx context.Context, id string) (*models.Note, error)
	UpdateNote(ctx context.Context, id string, patch noteservice.NotePatch) (*models.Note, error)
	DeleteNote(ctx context.Context, id string) (bool, error)
	ListNotes(ctx context.Context) ([]models.NoteSummary, error)
	Search(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error)
	GetLinks(ctx context.Context, id string, dir models.Direction, limit int) (*models.LinkResult, error)
	ScanAndIndexVault(ctx context.Context, pathOverride string) (noteservice.ScanReport, error)
}

var _ NoteService = (*noteservice.Service)(nil)

// Handler holds API route handlers.
type Handler struct {
	svc NoteService
}

// NewHandler creates a new Handler.
func NewHandler(svc NoteService) *Handler {
	return &Handler{svc: svc}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently modified first
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListNotes(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	if items == nil {
		items = []models.NoteSummary{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id		path		string	true	"Note id"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.ReadNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Title, req.Content, req.Tags)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PATCH /api/notes/{id}.
//
//	@Summary		Update fields of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note id"
//	@Param			body	body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id		path	string	true	"Note id"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.svc.DeleteNote(r.Context(), id)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLinks handles GET /api/notes/{id}/links.
//
//	@Summary		Graph edges of a note
//	@Tags			graph
//	@Produce		json
//	@Param			id			path		string	true	"Note id"
//	@Param			direction	query		string	false	"Edge direction"	Enums(outgoing, incoming, both)
//	@Param			limit		query		int		false	"Max edges"
//	@Success		200			{object}	models.LinkResult
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/links [get]
func (h *Handler) GetLinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := h.svc.GetLinks(r.Context(), chi.URLParam(r, "id"), models.Direction(q.Get("direction")), limit)
	if err != nil {
		writeError(w, "get links", err)
		return
	}
	if res.Links == nil {
		res.Links = []models.Link{}
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			tag		query		string	false	"Tag filter, repeatable or comma separated (match any)"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if strings.TrimSpace(query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	var tags []string
	for _, v := range q["tag"] {
		tags = append(tags, strings.Split(v, ",")...)
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	results, err := h.svc.Search(r.Context(), query, tags, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ScanVault handles POST /api/vault/scan.
//
//	@Summary		Import vault files that are not yet notes
//	@Tags			vault
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	false	"Directory relative to the vault root"
//	@Success		200		{object}	noteservice.ScanReport
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/scan [post]
func (h *Handler) ScanVault(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	report, err := h.svc.ScanAndIndexVault(r.Context(), req.Path)
	if err != nil {
		slog.Warn("vault scan failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
