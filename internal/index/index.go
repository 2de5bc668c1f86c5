package index

import (
	"context"

	"github.com/starford/mimir/internal/models"
)

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	WithTx(ctx context.Context, fn func(tx *Tx) error) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	GetNoteByPath(ctx context.Context, path string) (*models.Note, error)
	ListNotes(ctx context.Context) ([]models.NoteSummary, error)
	AllPaths(ctx context.Context) (map[string]struct{}, error)
	Links(ctx context.Context, id string, dir models.Direction, limit int) (*models.LinkResult, error)
	Search(ctx context.Context, query string, tags []string, limit int) ([]models.SearchHit, error)
	SearchEntryCount(ctx context.Context, id string) (int, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
