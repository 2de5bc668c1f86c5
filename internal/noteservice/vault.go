package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/metrics"
	"github.com/starford/mimir/internal/parser"
	"github.com/starford/mimir/internal/storage"
)

// ScanReport summarizes one vault scan.
type ScanReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ScanAndIndexVault imports the files directly inside the vault directory (or
// pathOverride, relative to the vault root) that are not yet mirrors of a
// known note. Each imported file becomes the mirror of its new note and is
// not rewritten. Per-file failures are logged and counted; the returned
// error is non-nil only when the directory cannot be listed.
func (s *Service) ScanAndIndexVault(ctx context.Context, pathOverride string) (ScanReport, error) {
	var report ScanReport
	start := time.Now()

	files, err := s.store.List(pathOverride, s.pattern)
	if err != nil {
		return report, fmt.Errorf("%w: list %q: %w", apperr.ErrImport, pathOverride, err)
	}
	known, err := s.db.AllPaths(ctx)
	if err != nil {
		return report, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if s.isExcluded(f.Path) {
			continue
		}
		if _, ok := known[f.Path]; ok {
			report.Skipped++
			metrics.ObserveImport(metrics.ImportSkipped)
			continue
		}
		if err := s.importFile(ctx, f); err != nil {
			report.Failed++
			metrics.ObserveImport(metrics.ImportFailed)
			s.logger.Warn("vault: import failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		report.Imported++
		metrics.ObserveImport(metrics.ImportImported)
	}

	s.logger.Info("vault: scan complete",
		slog.String("dir", pathOverride),
		slog.Int("imported", report.Imported),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

// importFile creates a note from one vault file. A "---" header or a mirror
// heading supplies title and tags; the title otherwise defaults to the file
// stem.
func (s *Service) importFile(ctx context.Context, f storage.File) error {
	data, err := s.store.Read(f.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperr.ErrImport, f.Path, err)
	}

	h := parser.ParseHeader(data)
	if !h.Found {
		if m, ok := parser.ParseMirror(data); ok {
			h = m
		}
	}
	title := strings.TrimSpace(h.Title)
	if title == "" {
		base := path.Base(f.Path)
		title = strings.TrimSuffix(base, path.Ext(base))
	}

	if _, err := s.create(ctx, title, h.Body, h.Tags, f.Path); err != nil {
		return fmt.Errorf("%w: %s: %w", apperr.ErrImport, f.Path, err)
	}
	return nil
}

func (s *Service) isExcluded(rel string) bool {
	if len(s.excluded) == 0 {
		return false
	}
	abs, err := s.store.Abs(rel)
	if err != nil {
		return false
	}
	_, ok := s.excluded[abs]
	return ok
}

// WatchVault is reserved for live reindexing inside the store. Live changes
// are fed in from outside by the watcher package, so this does nothing.
func (s *Service) WatchVault(_ context.Context, _ string) error {
	return nil
}
