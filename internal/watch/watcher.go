package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"eyeparse/internal/infrastructure"
)

// DefaultDebounce is how long the folder must stay quiet before a rebuild
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher
type Options struct {
	// Extension limits events to files with this suffix, including the dot
	Extension string
	Debounce  time.Duration
	Logger    *slog.Logger
}

// RebuildFunc is called after a burst of changes has settled
type RebuildFunc func(ctx context.Context) error

// Watcher triggers a rebuild whenever log files in one folder change.
// Rapid saves are collapsed into a single rebuild.
type Watcher struct {
	folder   string
	ext      string
	debounce time.Duration
	rebuild  RebuildFunc
	logger   *slog.Logger

	events   atomic.Int64
	rebuilds atomic.Int64
	failures atomic.Int64
}

// Stats counts watcher activity
type Stats struct {
	Events   int64
	Rebuilds int64
	Failures int64
}

// New creates a watcher for folder
func New(folder string, rebuild RebuildFunc, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		folder:   folder,
		ext:      strings.ToLower(opts.Extension),
		debounce: opts.Debounce,
		rebuild:  rebuild,
		logger:   infrastructure.WithComponent(opts.Logger, "watch").With(slog.String("folder", folder)),
	}
}

// Stats returns a snapshot of the counters
func (w *Watcher) Stats() Stats {
	return Stats{
		Events:   w.events.Load(),
		Rebuilds: w.rebuilds.Load(),
		Failures: w.failures.Load(),
	}
}

// Run watches until ctx is cancelled. A failed rebuild is logged and the
// watch continues.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.folder); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.folder, err)
	}
	w.logger.InfoContext(ctx, "watching folder", slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "watch stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.events.Add(1)
			w.logger.DebugContext(ctx, "change detected",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "watch error", slog.String("error", err.Error()))

		case <-timer.C:
			w.rebuilds.Add(1)
			start := time.Now()
			if err := w.rebuild(ctx); err != nil {
				w.failures.Add(1)
				w.logger.ErrorContext(ctx, "rebuild failed", slog.String("error", err.Error()))
				continue
			}
			w.logger.InfoContext(ctx, "rebuild complete", slog.Duration("duration", time.Since(start)))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if w.ext == "" {
		return true
	}
	return strings.ToLower(filepath.Ext(event.Name)) == w.ext
}
