package noteservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/models"
	"github.com/starford/mimir/internal/testutil"
)

func writeVaultFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestScan_ImportsThenSkips(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	writeVaultFile(t, e.vault, "X.md", "x body")
	writeVaultFile(t, e.vault, "Y.md", "y body links [[X]]")

	report, err := e.svc.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Imported: 2}, report)

	list, err := e.svc.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	report, err = e.svc.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Skipped: 2}, report)

	in, err := e.svc.GetLinks(ctx, "x", models.DirectionIncoming, 0)
	require.NoError(t, err)
	require.Len(t, in.Links, 1)
	assert.Equal(t, "y", in.Links[0].Source)
}

func TestScan_HeaderAndAdoptedMirror(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	raw := "---\ntitle: Project Plan\ntags: [work, \"q3\"]\n---\n\nShip it.\n"
	writeVaultFile(t, e.vault, "plan.md", raw)

	_, err := e.svc.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)

	n, err := e.svc.ReadNote(ctx, "project-plan")
	require.NoError(t, err)
	assert.Equal(t, "Project Plan", n.Title)
	assert.Equal(t, "plan.md", n.Path)
	assert.Equal(t, []string{"work", "q3"}, n.Tags)
	assert.Equal(t, "Ship it.\n", n.Content)

	data, err := os.ReadFile(filepath.Join(e.vault, "plan.md"))
	require.NoError(t, err)
	assert.Equal(t, raw, string(data), "imported file must not be rewritten")

	hits, err := e.svc.Search(ctx, "ship", nil, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "project-plan", hits[0].NoteID)
}

func TestScan_RebuildsFromOwnMirrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateNote(ctx, "My Note", "body [[X]]", []string{"t1"})
	require.NoError(t, err)

	fresh := NewService(e.store, testutil.TestDB(t), WithLogger(quietLogger()))
	report, err := fresh.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Imported: 1}, report)

	n, err := fresh.ReadNote(ctx, "my-note")
	require.NoError(t, err)
	assert.Equal(t, "My Note", n.Title)
	assert.Equal(t, []string{"t1"}, n.Tags)
	assert.Equal(t, "body [[X]]", n.Content)

	out, err := fresh.GetLinks(ctx, "my-note", models.DirectionOutgoing, 0)
	require.NoError(t, err)
	require.Len(t, out.Links, 1)
	assert.Equal(t, "x", out.Links[0].TargetID)

	_, err = fresh.UpdateNote(ctx, "my-note", NotePatch{Content: strPtr("v2")})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(e.vault, "my-note.md"))
	require.NoError(t, err)
	assert.Equal(t, "# My Note\n#t1\n\nv2", string(data))
}

func TestScan_SkipsCreatedMirrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateNote(ctx, "Existing", "body", nil)
	require.NoError(t, err)

	report, err := e.svc.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Skipped: 1}, report)
}

func TestScan_FailuresDoNotAbort(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Both stems slug to "a-b": the second one collides.
	writeVaultFile(t, e.vault, "A b.md", "first")
	writeVaultFile(t, e.vault, "a-b.md", "second")
	writeVaultFile(t, e.vault, "c.md", "third")

	report, err := e.svc.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Failed)

	_, err = e.svc.ReadNote(ctx, "c")
	assert.NoError(t, err)
}

func TestScan_ImportErrorWrapsCause(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateNote(ctx, "Taken", "body", nil)
	require.NoError(t, err)
	writeVaultFile(t, e.vault, "other.md", "---\ntitle: Taken\n---\nbody")

	files, err := e.store.List("", "*.md")
	require.NoError(t, err)
	var other bool
	for _, f := range files {
		if f.Path != "other.md" {
			continue
		}
		other = true
		err := e.svc.importFile(ctx, f)
		assert.ErrorIs(t, err, apperr.ErrImport)
		assert.ErrorIs(t, err, apperr.ErrDuplicateNote)
	}
	assert.True(t, other)
}

func TestScan_PatternOverrideAndExclusions(t *testing.T) {
	e := newEnv(t, WithVaultPattern("*"))
	ctx := context.Background()

	writeVaultFile(t, e.vault, "keep.txt", "plain")
	writeVaultFile(t, e.vault, "store.db", "binary")
	writeVaultFile(t, filepath.Join(e.vault, "sub"), "nested.md", "nested")

	abs, err := e.store.Abs("store.db")
	require.NoError(t, err)
	WithExcludedFiles(abs)(e.svc)

	report, err := e.svc.ScanAndIndexVault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Imported: 1}, report)

	n, err := e.svc.ReadNote(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "keep.txt", n.Path)

	report, err = e.svc.ScanAndIndexVault(ctx, "sub")
	require.NoError(t, err)
	assert.Equal(t, ScanReport{Imported: 1}, report)

	n, err = e.svc.ReadNoteByPath(ctx, "sub/nested.md")
	require.NoError(t, err)
	assert.Equal(t, "nested", n.ID)
}

func TestScan_DirectoryOutsideVault(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ScanAndIndexVault(context.Background(), "../elsewhere")
	assert.ErrorIs(t, err, apperr.ErrImport)
}

func TestWatchVaultIsNoop(t *testing.T) {
	e := newEnv(t)
	assert.NoError(t, e.svc.WatchVault(context.Background(), ""))
}
