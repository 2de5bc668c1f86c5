package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string   `json:"title" example:"Hello World"`
	Content string   `json:"content" example:"See [[Other Note]]"`
	Tags    []string `json:"tags" example:"tag1,tag2"`
}

// Validate validates the create request.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 512)),
		validation.Field(&r.Tags, validation.Each(validation.Length(1, 128))),
	)
}

// UpdateNoteRequest is the request body for PATCH /notes/{id}. Omitted fields
// are left unchanged.
type UpdateNoteRequest struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

// Validate validates the update request.
func (r UpdateNoteRequest) Validate() error {
	if r.Title == nil && r.Content == nil && r.Tags == nil {
		return validation.NewError("validation_empty_patch", "at least one of title, content or tags is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.Length(1, 512)),
	)
}

func (r UpdateNoteRequest) patch() noteservice.NotePatch {
	return noteservice.NotePatch{Title: r.Title, Content: r.Content, Tags: r.Tags}
}

// ScanRequest is the optional body of POST /vault/scan.
type ScanRequest struct {
	Path string `json:"path" example:"inbox"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.NoteSummary `json:"notes"`
	Total int                  `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.SearchHit `json:"results"`
}
