// Package watcher turns fsnotify events on a vault directory into an ordered,
// debounced stream of change batches. It knows nothing about notes; callers
// decide how to apply a batch.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed for a file.
type Op string

const (
	OpCreated Op = "created"
	OpWritten Op = "written"
	OpRemoved Op = "removed"
	OpRenamed Op = "renamed"
)

// Event is one file change. Path is relative to the watched root and uses
// forward slashes.
type Event struct {
	Path string
	Op   Op
}

const defaultDebounce = 200 * time.Millisecond

// tempPrefix marks the storage layer's in-flight atomic writes.
const tempPrefix = ".mimir-tmp-"

type options struct {
	pattern  string
	debounce time.Duration
	logger   *slog.Logger
}

// Option configures Watch.
type Option func(*options)

// WithPattern limits events to base names matching a doublestar pattern.
func WithPattern(pattern string) Option {
	return func(o *options) { o.pattern = pattern }
}

// WithDebounce sets how long the stream stays quiet before a batch is sent.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Watch starts watching root (not its sub-directories) and returns a channel
// of batches. Within a batch paths appear in first-seen order and each path
// carries its latest op. The channel is closed when ctx is cancelled or the
// underlying watcher fails.
func Watch(ctx context.Context, root string, opts ...Option) (<-chan []Event, error) {
	o := options{pattern: "*.md", debounce: defaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if !doublestar.ValidatePattern(o.pattern) {
		return nil, fmt.Errorf("watcher: invalid pattern %q", o.pattern)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve root: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watcher: add %s: %w", abs, err)
	}

	out := make(chan []Event)
	go loop(ctx, fw, abs, o, out)
	o.logger.Info("watcher: started", slog.String("root", abs))
	return out, nil
}

func loop(ctx context.Context, fw *fsnotify.Watcher, root string, o options, out chan<- []Event) {
	defer close(out)
	defer fw.Close()

	var (
		pending []Event
		index   = map[string]int{}
		timer   *time.Timer
		fire    <-chan time.Time
	)

	flush := func() bool {
		batch := pending
		pending, index = nil, map[string]int{}
		fire = nil
		select {
		case out <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			o.logger.Info("watcher: stopped")
			return

		case <-fire:
			if !flush() {
				return
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			e, keep := translate(root, o.pattern, ev)
			if !keep {
				continue
			}
			if i, seen := index[e.Path]; seen {
				pending[i].Op = e.Op
			} else {
				index[e.Path] = len(pending)
				pending = append(pending, e)
			}
			if timer == nil {
				timer = time.NewTimer(o.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(o.debounce)
			}
			fire = timer.C

		case werr, ok := <-fw.Errors:
			if !ok {
				return
			}
			o.logger.Error("watcher: error", slog.String("error", werr.Error()))
		}
	}
}

// translate maps an fsnotify event to an Event, reporting false for events
// outside the pattern, in sub-directories or on temp files.
func translate(root, pattern string, ev fsnotify.Event) (Event, bool) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return Event{}, false
	}
	rel = filepath.ToSlash(rel)
	if strings.Contains(rel, "/") || strings.HasPrefix(rel, tempPrefix) {
		return Event{}, false
	}
	if ok, _ := doublestar.Match(pattern, rel); !ok {
		return Event{}, false
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Remove):
		op = OpRemoved
	case ev.Has(fsnotify.Rename):
		op = OpRenamed
	case ev.Has(fsnotify.Create):
		op = OpCreated
	case ev.Has(fsnotify.Write):
		op = OpWritten
	default:
		return Event{}, false
	}
	return Event{Path: rel, Op: op}, true
}
