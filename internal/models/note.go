// Package models defines the domain types for Mimir.
package models

import "time"

// Note is the canonical record of a note. Links are a derived view and are
// never populated on the plain read path.
type Note struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Path     string    `json:"path"`
	Tags     []string  `json:"tags"`
	Links    []Link    `json:"links,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// NoteSummary is a lightweight representation returned by list operations.
type NoteSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Path     string    `json:"path"`
	Tags     []string  `json:"tags"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// LinkKind distinguishes extracted references from materialized backlinks.
type LinkKind string

const (
	LinkReference LinkKind = "reference"
	LinkBacklink  LinkKind = "backlink"
)

// Link represents a directed edge between two notes. Source is the id of the
// note whose content holds the reference; Target is the title as written and
// may not resolve to an existing note.
type Link struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	TargetID string   `json:"target_id"`
	Kind     LinkKind `json:"kind"`
	Context  string   `json:"context"`
}

// Direction selects which edges a graph query returns.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return true
	}
	return false
}

// LinkResult is the answer to a graph query.
type LinkResult struct {
	Links      []Link `json:"links"`
	TotalCount int    `json:"total_count"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	NoteID  string  `json:"note_id"`
	Title   string  `json:"title"`
	Preview string  `json:"preview"`
	Score   float64 `json:"score"`
}
