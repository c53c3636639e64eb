package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"eyeparse/internal/assembler"
	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/files"
	"eyeparse/internal/infrastructure"
)

const entryExt = ".json"

// entry is the on-disk layout of one cached dataset
type entry struct {
	Key     string             `json:"key"`
	Created time.Time          `json:"created"`
	Dataset *assembler.Dataset `json:"dataset"`
	Files   []FileSummary      `json:"files,omitempty"`
}

// FileSummary is the stored outcome of one input file
type FileSummary struct {
	Path        string   `json:"path"`
	Trials      int      `json:"trials"`
	Skipped     int      `json:"skipped"`
	ErrorType   string   `json:"error_type,omitempty"`
	Error       string   `json:"error,omitempty"`
	TrialErrors []string `json:"trial_errors,omitempty"`
}

// Entry is a dataset together with the per-file outcomes that built it
type Entry struct {
	Dataset *assembler.Dataset
	Files   []FileSummary
}

// Stats reports cache usage
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Options configures a Store
type Options struct {
	Dir     string
	Logger  *slog.Logger
	Metrics *infrastructure.PipelineMetrics
}

// Store keeps datasets on disk under their content-addressed key
type Store struct {
	dir     string
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// New opens a store, creating the directory when needed
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, apperrors.NewConfigError("cache directory is empty", nil)
	}
	if err := files.EnsureDirectory(opts.Dir); err != nil {
		return nil, apperrors.NewStorageError("failed to create cache directory", err)
	}
	return &Store{
		dir:     opts.Dir,
		logger:  infrastructure.WithComponent(opts.Logger, "cache"),
		metrics: opts.Metrics,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the cache directory
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+entryExt)
}

// lock returns the writer lock of one key
func (s *Store) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Get loads the dataset stored under key. A missing entry is reported as
// ok == false without error.
func (s *Store) Get(ctx context.Context, key string) (*assembler.Dataset, bool, error) {
	e, ok, err := s.GetEntry(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return e.Dataset, true, nil
}

// GetEntry is Get including the stored file outcomes
func (s *Store) GetEntry(ctx context.Context, key string) (*Entry, bool, error) {
	e, ok, err := s.load(ctx, key)
	if err == nil {
		s.record(ctx, ok)
	}
	return e, ok, err
}

func (s *Store) load(ctx context.Context, key string) (*Entry, bool, error) {
	if !ValidKey(key) {
		return nil, false, apperrors.NewAppValidationError(fmt.Sprintf("invalid cache key %q", key))
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewStorageError("failed to read cache entry", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Dataset == nil {
		// a corrupt entry is a miss; the next Put replaces it
		s.logger.WarnContext(ctx, "discarding unreadable cache entry",
			slog.String("key", key),
			slog.Any("error", err))
		return nil, false, nil
	}
	return &Entry{Dataset: e.Dataset, Files: e.Files}, true, nil
}

// Put stores ds under key. Writers of the same key are serialized and the
// entry is replaced atomically.
func (s *Store) Put(ctx context.Context, key string, ds *assembler.Dataset) error {
	return s.PutEntry(ctx, key, &Entry{Dataset: ds})
}

// PutEntry stores a dataset and its file outcomes under key
func (s *Store) PutEntry(ctx context.Context, key string, e *Entry) error {
	if !ValidKey(key) {
		return apperrors.NewAppValidationError(fmt.Sprintf("invalid cache key %q", key))
	}
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	data, err := json.Marshal(entry{Key: key, Created: time.Now().UTC(), Dataset: e.Dataset, Files: e.Files})
	if err != nil {
		return apperrors.NewStorageError("failed to encode cache entry", err)
	}

	err = files.WriteAtomic(s.path(key), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return apperrors.NewStorageError("failed to write cache entry", err)
	}

	s.logger.DebugContext(ctx, "cache entry written",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
		slog.Int("rows", e.Dataset.Len()),
		slog.Int("files", len(e.Files)))
	return nil
}

// BuildFunc produces an entry on a cache miss. keep reports whether the
// result may be stored.
type BuildFunc func(ctx context.Context) (e *Entry, keep bool, err error)

// GetOrBuild returns the cached entry for key or builds and stores it.
// Concurrent calls for the same key share one build and its file outcomes.
// hit reports whether the entry came from disk.
func (s *Store) GetOrBuild(ctx context.Context, key string, build BuildFunc) (e *Entry, hit bool, err error) {
	if e, ok, err := s.GetEntry(ctx, key); err != nil || ok {
		return e, ok, err
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// another caller may have finished the build meanwhile
		if e, ok, err := s.load(ctx, key); err != nil || ok {
			return e, err
		}
		e, keep, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if !keep {
			s.logger.DebugContext(ctx, "build result not cached", slog.String("key", key))
			return e, nil
		}
		if err := s.PutEntry(ctx, key, e); err != nil {
			return nil, err
		}
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Invalidate removes one entry. Removing a missing entry is not an error.
func (s *Store) Invalidate(key string) error {
	if !ValidKey(key) {
		return apperrors.NewAppValidationError(fmt.Sprintf("invalid cache key %q", key))
	}
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewStorageError("failed to remove cache entry", err)
	}
	return nil
}

// Purge removes entries last written more than olderThan ago and returns
// how many were removed. A zero duration removes everything.
func (s *Store) Purge(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := s.walk(func(key string, info fs.FileInfo) error {
		if olderThan > 0 && info.ModTime().After(cutoff) {
			return nil
		}
		if err := s.Invalidate(key); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	s.logger.Info("cache purged",
		slog.Int("removed", removed),
		slog.Duration("older_than", olderThan))
	return removed, nil
}

// Stats counts the stored entries and the hits and misses of this process
func (s *Store) Stats() (Stats, error) {
	st := Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
	err := s.walk(func(_ string, info fs.FileInfo) error {
		st.Entries++
		st.Bytes += info.Size()
		return nil
	})
	return st, err
}

// walk visits every committed entry
func (s *Store) walk(fn func(key string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return apperrors.NewStorageError("failed to list cache directory", err)
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		key := strings.TrimSuffix(name, entryExt)
		if !ValidKey(key) {
			continue
		}
		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return apperrors.NewStorageError("failed to stat cache entry", err)
		}
		if err := fn(key, info); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) record(ctx context.Context, hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	s.metrics.RecordCache(ctx, hit)
}
