package index

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "mimir-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ref(target, targetID string) models.Link {
	return models.Link{Target: target, TargetID: targetID, Kind: models.LinkReference, Context: "[[" + target + "]]"}
}

func insert(t *testing.T, db *DB, n *models.Note, refs ...models.Link) {
	t.Helper()
	if n.Path == "" {
		n.Path = n.ID + ".md"
	}
	if n.Created.IsZero() {
		n.Created = time.Now()
		n.Modified = n.Created
	}
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertNote(n, refs)
	})
	if err != nil {
		t.Fatalf("InsertNote(%s): %v", n.ID, err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "links", "search_entries"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestInsertAndGetNote(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	insert(t, db, &models.Note{ID: "hello", Title: "Hello", Content: "world", Tags: []string{"go", "kb"}, Created: now, Modified: now})

	n, err := db.GetNote(ctx, "hello")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if n.Title != "Hello" || n.Content != "world" || n.Path != "hello.md" {
		t.Errorf("note = %+v", n)
	}
	if len(n.Tags) != 2 || n.Tags[0] != "go" || n.Tags[1] != "kb" {
		t.Errorf("tags = %v", n.Tags)
	}
	if !n.Created.Equal(now) || !n.Modified.Equal(now) {
		t.Errorf("timestamps = %v / %v, want %v", n.Created, n.Modified, now)
	}

	byPath, err := db.GetNoteByPath(ctx, "hello.md")
	if err != nil || byPath.ID != "hello" {
		t.Errorf("GetNoteByPath = %+v, %v", byPath, err)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetNote(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertDuplicateRollsBack(t *testing.T) {
	db := testDB(t)
	insert(t, db, &models.Note{ID: "dup", Title: "Dup", Content: "first"})

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		now := time.Now()
		return tx.InsertNote(&models.Note{ID: "dup", Title: "Dup", Path: "other.md", Content: "second", Created: now, Modified: now}, nil)
	})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
	n, _ := db.GetNote(context.Background(), "dup")
	if n.Content != "first" {
		t.Errorf("content = %q, original row should survive", n.Content)
	}
}

func TestWithTx_ErrorRollsBackAllRelations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *Tx) error {
		now := time.Now()
		if err := tx.InsertNote(&models.Note{ID: "ghost", Title: "Ghost", Path: "ghost.md", Content: "boo", Created: now, Modified: now},
			[]models.Link{ref("Target", "target")}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := db.GetNote(ctx, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("note row should be rolled back")
	}
	if c, _ := db.SearchEntryCount(ctx, "ghost"); c != 0 {
		t.Errorf("search entries = %d, want 0", c)
	}
	res, _ := db.Links(ctx, "target", models.DirectionIncoming, 10)
	if res.TotalCount != 0 {
		t.Errorf("backlinks = %d, want 0", res.TotalCount)
	}
}

func TestLinks_OutgoingOrderAndDuplicates(t *testing.T) {
	db := testDB(t)
	insert(t, db, &models.Note{ID: "a", Title: "A", Content: "[[B]] [[C]] [[B]]"},
		ref("B", "b"), ref("C", "c"), ref("B", "b"))

	res, err := db.Links(context.Background(), "a", models.DirectionOutgoing, 100)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if res.TotalCount != 3 || len(res.Links) != 3 {
		t.Fatalf("links = %+v", res)
	}
	want := []string{"B", "C", "B"}
	for i, l := range res.Links {
		if l.Target != want[i] || l.Kind != models.LinkReference || l.Source != "a" {
			t.Errorf("links[%d] = %+v", i, l)
		}
	}
}

func TestLinks_BacklinksDedupedAndDangling(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	insert(t, db, &models.Note{ID: "a", Title: "A"}, ref("B", "b"), ref("B", "b"))
	insert(t, db, &models.Note{ID: "c", Title: "C"}, ref("B", "b"))

	res, err := db.Links(ctx, "b", models.DirectionIncoming, 100)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("expected 2 backlinks, got %+v", res.Links)
	}
	if res.Links[0].Source != "a" || res.Links[1].Source != "c" {
		t.Errorf("backlink sources = %q, %q", res.Links[0].Source, res.Links[1].Source)
	}
	for _, l := range res.Links {
		if l.Kind != models.LinkBacklink {
			t.Errorf("kind = %q", l.Kind)
		}
	}
}

func TestLinks_BothAndLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	insert(t, db, &models.Note{ID: "a", Title: "A"}, ref("B", "b"))
	insert(t, db, &models.Note{ID: "b", Title: "B"}, ref("A", "a"), ref("C", "c"))

	res, _ := db.Links(ctx, "b", models.DirectionBoth, 100)
	if res.TotalCount != 3 {
		t.Fatalf("both = %+v, want 2 outgoing + 1 incoming", res.Links)
	}
	if res.Links[0].Kind != models.LinkReference || res.Links[2].Kind != models.LinkBacklink {
		t.Errorf("outgoing rows should precede incoming rows: %+v", res.Links)
	}

	res, _ = db.Links(ctx, "b", models.DirectionBoth, 2)
	if len(res.Links) != 2 || res.TotalCount != 3 {
		t.Errorf("limited = %d links, total %d", len(res.Links), res.TotalCount)
	}
}

func TestUpdateReplacesLinks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := &models.Note{ID: "up", Title: "Up", Content: "[[X]]"}
	insert(t, db, n, ref("X", "x"))

	n.Content = "[[Y]]"
	n.Modified = time.Now()
	err := db.WithTx(ctx, func(tx *Tx) error { return tx.UpdateNote(n, []models.Link{ref("Y", "y")}) })
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	if res, _ := db.Links(ctx, "x", models.DirectionIncoming, 10); res.TotalCount != 0 {
		t.Error("old backlink should be removed on update")
	}
	if res, _ := db.Links(ctx, "y", models.DirectionIncoming, 10); res.TotalCount != 1 {
		t.Error("new backlink should exist")
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	db := testDB(t)
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		return tx.UpdateNote(&models.Note{ID: "missing", Modified: time.Now()}, nil)
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteNoteCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	insert(t, db, &models.Note{ID: "del", Title: "Del"}, ref("Target", "target"))
	insert(t, db, &models.Note{ID: "other", Title: "Other"}, ref("Del", "del"))

	var deleted bool
	err := db.WithTx(ctx, func(tx *Tx) error {
		var err error
		deleted, err = tx.DeleteNote("del")
		return err
	})
	if err != nil || !deleted {
		t.Fatalf("DeleteNote = %v, %v", deleted, err)
	}
	if c, _ := db.SearchEntryCount(ctx, "del"); c != 0 {
		t.Errorf("search entries = %d, want 0", c)
	}
	if res, _ := db.Links(ctx, "target", models.DirectionIncoming, 10); res.TotalCount != 0 {
		t.Error("outgoing edges of deleted note should be gone")
	}
	if res, _ := db.Links(ctx, "del", models.DirectionIncoming, 10); res.TotalCount != 0 {
		t.Error("incoming edges of deleted note should be gone")
	}
	if res, _ := db.Links(ctx, "other", models.DirectionOutgoing, 10); res.TotalCount != 0 {
		t.Error("references targeting deleted note should be gone")
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		var err error
		deleted, err = tx.DeleteNote("del")
		return err
	})
	if err != nil || deleted {
		t.Errorf("second delete = %v, %v, want false", deleted, err)
	}
}

func TestListNotesOrderedByModified(t *testing.T) {
	db := testDB(t)
	base := time.Now()
	insert(t, db, &models.Note{ID: "t1", Title: "T1", Content: "x", Created: base, Modified: base})
	insert(t, db, &models.Note{ID: "t3", Title: "T3", Content: "x", Created: base, Modified: base.Add(2 * time.Second)})
	insert(t, db, &models.Note{ID: "t2", Title: "T2", Content: "x", Created: base, Modified: base.Add(time.Second)})

	list, err := db.ListNotes(context.Background())
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(list) != 3 || list[0].ID != "t3" || list[1].ID != "t2" || list[2].ID != "t1" {
		t.Errorf("order = %+v", list)
	}
}

func TestAllPaths(t *testing.T) {
	db := testDB(t)
	insert(t, db, &models.Note{ID: "p", Title: "P", Path: "inbox/p.md"})
	paths, err := db.AllPaths(context.Background())
	if err != nil {
		t.Fatalf("AllPaths: %v", err)
	}
	if _, ok := paths["inbox/p.md"]; !ok || len(paths) != 1 {
		t.Errorf("paths = %v", paths)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	insert(t, db, &models.Note{ID: "s", Title: "Search Me", Content: "uniqueword appears here"})

	results, err := db.Search(context.Background(), "uniqueword", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "s" || results[0].Title != "Search Me" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
}

func TestSearch_NoMatchIsEmpty(t *testing.T) {
	db := testDB(t)
	insert(t, db, &models.Note{ID: "s", Title: "S", Content: "something"})

	for _, q := range []string{"no-such-token", "", `"unbalanced`, "col:umn", "*", `""`} {
		results, err := db.Search(context.Background(), q, nil, 10)
		if err != nil {
			t.Errorf("Search(%q) error: %v", q, err)
		}
		if results == nil || len(results) != 0 {
			t.Errorf("Search(%q) = %v, want empty slice", q, results)
		}
	}
}

func TestSearch_Stemming(t *testing.T) {
	db := testDB(t)
	insert(t, db, &models.Note{ID: "run", Title: "Exercise", Content: "I went running yesterday"})

	results, err := db.Search(context.Background(), "runs", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "run" {
		t.Errorf("stemmed search = %+v", results)
	}
}

func TestSearch_Phrase(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	insert(t, db, &models.Note{ID: "one", Title: "One", Content: "the red apple and a blue car"})
	insert(t, db, &models.Note{ID: "two", Title: "Two", Content: "a red car"})
	insert(t, db, &models.Note{ID: "three", Title: "Red", Content: "car park"})

	results, err := db.Search(ctx, `"red car"`, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "two" {
		t.Errorf("phrase results = %+v, want only two", results)
	}

	results, err = db.Search(ctx, `"red ca"*`, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "two" {
		t.Errorf("phrase prefix results = %+v, want only two", results)
	}

	results, err = db.Search(ctx, `apple "blue cars"`, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "one" {
		t.Errorf("word and stemmed phrase results = %+v, want only one", results)
	}
}

func TestSearch_TagFilterMatchesAny(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	insert(t, db, &models.Note{ID: "a", Title: "A", Content: "shared word", Tags: []string{"x"}})
	insert(t, db, &models.Note{ID: "b", Title: "B", Content: "shared word", Tags: []string{"y"}})
	insert(t, db, &models.Note{ID: "c", Title: "C", Content: "shared word", Tags: []string{"z"}})

	results, err := db.Search(ctx, "shared", []string{"x", "y"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want a and b", results)
	}
	for _, r := range results {
		if r.NoteID == "c" {
			t.Error("note without a requested tag should be filtered out")
		}
	}
}

func TestSearch_RankAndLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	insert(t, db, &models.Note{ID: "weak", Title: "Weak", Content: "apple and other fruit, pears, plums, grapes"})
	insert(t, db, &models.Note{ID: "strong", Title: "Apple", Content: "apple apple apple"})

	results, err := db.Search(ctx, "apple", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].NoteID != "strong" {
		t.Errorf("rank order = %+v", results)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %+v", results)
	}

	results, _ = db.Search(ctx, "apple", nil, 1)
	if len(results) != 1 {
		t.Errorf("limit ignored: %d results", len(results))
	}
}

func TestSearch_Preview(t *testing.T) {
	db := testDB(t)
	long := ""
	for len(long) < 300 {
		long += "lorem ipsum "
	}
	insert(t, db, &models.Note{ID: "long", Title: "Long", Content: long})

	results, _ := db.Search(context.Background(), "lorem", nil, 10)
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	want := long[:200] + "..."
	if results[0].Preview != want {
		t.Errorf("preview = %q", results[0].Preview)
	}
}

func TestSearchEntryReplacedOnUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := &models.Note{ID: "evo", Title: "Old", Content: "original text"}
	insert(t, db, n)

	n.Title, n.Content, n.Modified = "New", "replacement text", time.Now()
	if err := db.WithTx(ctx, func(tx *Tx) error { return tx.UpdateNote(n, nil) }); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	if c, _ := db.SearchEntryCount(ctx, "evo"); c != 1 {
		t.Errorf("search entries = %d, want 1", c)
	}
	results, _ := db.Search(ctx, "original", nil, 10)
	if len(results) != 0 {
		t.Error("old search content should be gone")
	}
	results, _ = db.Search(ctx, "replacement", nil, 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("search entry not updated: %+v", results)
	}
}
