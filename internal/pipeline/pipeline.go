package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"eyeparse/internal/assembler"
	"eyeparse/internal/cache"
	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/files"
	"eyeparse/internal/infrastructure"
	"eyeparse/internal/segmenter"
	"eyeparse/pkg/contracts/domain"
)

// TrialProcessor turns segmented trials into processed trials
type TrialProcessor interface {
	Process(trial *domain.Trial) (*domain.Trial, error)
	// Canonical identifies the configuration for cache keys
	Canonical() string
}

// FileResult is the outcome of one input file
type FileResult struct {
	Path    string `json:"path"`
	Trials  int    `json:"trials"`
	Skipped int    `json:"skipped"`

	// Err is set when the file contributed no trials
	Err error `json:"-"`

	// TrialErrors lists trials dropped during processing
	TrialErrors []error `json:"-"`
}

// Result is the outcome of a Parse call
type Result struct {
	Dataset  *assembler.Dataset
	Files    []FileResult
	CacheKey string
	Cached   bool
	Duration time.Duration
}

// Failed returns the files that contributed no trials because of an error
func (r *Result) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Parse reads every log in folder, processes its trials and assembles one
// dataset ordered by file name and then trial order. A file that fails to
// tokenize or segment contributes no trials; a trial that fails processing
// is dropped alone. Assembly conflicts and cancellation abort the call.
func Parse(ctx context.Context, folder string, processor TrialProcessor, options ...Option) (*Result, error) {
	opts := newOptionValues(options...)
	start := time.Now()

	ctx = infrastructure.EnsureTraceID(ctx)
	logger := infrastructure.LoggerWithContext(ctx, infrastructure.WithComponent(opts.logger, "pipeline"))
	ctx, span := opts.tracer.Start(ctx, "pipeline.Parse",
		trace.WithAttributes(attribute.String("folder", folder)))
	defer span.End()

	found, err := files.NewDiscovery("").FindLogs(folder, opts.extension)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("folder " + folder)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to list %s", folder), err)
	}
	paths := files.Paths(found)
	span.SetAttributes(attribute.Int("files", len(paths)))

	logger.InfoContext(ctx, "parse started",
		slog.String("folder", folder),
		slog.Int("files", len(paths)),
		slog.Int("workers", opts.workers))
	opts.emit(Event{Type: EventParseStarted, Folder: folder, Files: len(paths)})

	result := &Result{}
	build := func(ctx context.Context) (*cache.Entry, bool, error) {
		ds, fileResults, err := run(ctx, folder, paths, processor, opts)
		result.Files = fileResults
		if err != nil {
			return nil, false, err
		}
		keep := true
		for _, f := range fileResults {
			if apperrors.IsRetryable(f.Err) {
				keep = false
			}
		}
		return &cache.Entry{Dataset: ds, Files: summarize(fileResults)}, keep, nil
	}

	if opts.cache != nil {
		key, err := cache.Key(processor.Canonical(), opts.canonical(), paths)
		if err != nil {
			return nil, apperrors.NewStorageError("failed to derive cache key", err)
		}
		result.CacheKey = key
		entry, cached, err := opts.cache.GetOrBuild(ctx, key, build)
		if err != nil {
			infrastructure.RecordError(ctx, err)
			return nil, err
		}
		result.Dataset, result.Cached = entry.Dataset, cached
		// hits and callers that joined another build get the stored outcomes
		if result.Files == nil {
			result.Files = restore(entry.Files)
		}
		if result.Cached {
			logger.InfoContext(ctx, "dataset loaded from cache", slog.String("key", key))
			opts.emit(Event{Type: EventCacheHit, Folder: folder, Files: len(paths), Trials: result.Dataset.Len()})
		}
	} else {
		entry, _, err := build(ctx)
		if err != nil {
			infrastructure.RecordError(ctx, err)
			return nil, err
		}
		result.Dataset = entry.Dataset
	}

	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("rows", result.Dataset.Len()), attribute.Bool("cached", result.Cached))
	logger.InfoContext(ctx, "parse complete",
		slog.String("folder", folder),
		slog.Int("rows", result.Dataset.Len()),
		slog.Int("failed_files", len(result.Failed())),
		slog.Bool("cached", result.Cached),
		slog.Duration("duration", result.Duration))
	opts.emit(Event{Type: EventParseDone, Folder: folder, Files: len(paths), Trials: result.Dataset.Len()})
	return result, nil
}

// run parses files in parallel and merges them in file order
func run(ctx context.Context, folder string, paths []string, processor TrialProcessor, opts *optionsValues) (*assembler.Dataset, []FileResult, error) {
	trials := make([][]*domain.Trial, len(paths))
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			opts.emit(Event{Type: EventFileStarted, Folder: folder, Path: path})
			trials[i], results[i] = parseFile(gctx, path, processor, opts)

			// cancellation aborts the whole parse rather than one file
			if err := results[i].Err; err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return err
			}
			ev := Event{Type: EventFileDone, Folder: folder, Path: path, Trials: results[i].Trials}
			if results[i].Err != nil {
				ev.Error = results[i].Err.Error()
			}
			opts.emit(ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, results, err
	}

	b := assembler.NewBuilder(assembler.Options{StrictAlignment: opts.strictAlignment, Logger: opts.logger})
	for _, ts := range trials {
		if err := b.AddAll(ts); err != nil {
			return nil, results, err
		}
	}
	return b.Build(), results, nil
}

// parseFile tokenizes, segments and processes one file, retrying
// transient read failures
func parseFile(ctx context.Context, path string, processor TrialProcessor, opts *optionsValues) ([]*domain.Trial, FileResult) {
	logger := infrastructure.LoggerWithContext(ctx, infrastructure.WithComponent(opts.logger, "pipeline")).
		With(slog.String("path", path))
	ctx, span := opts.tracer.Start(ctx, "pipeline.parseFile",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	start := time.Now()

	seg := segmenter.New(segmenter.Options{
		StartMarker: opts.startMarker,
		EndMarker:   opts.endMarker,
		VarMarker:   opts.varMarker,
		Eye:         opts.eye,
		TrialTraces: opts.trialTraces,
		Logger:      opts.logger,
	})

	res := FileResult{Path: path}
	var segmented []*domain.Trial
	for attempt := 0; ; attempt++ {
		src := opts.source(path, opts.policy, opts.logger)
		var err error
		segmented, err = seg.Segment(ctx, path, src.Records(ctx))
		res.Skipped = src.Skipped()
		if err == nil {
			break
		}
		if !apperrors.IsRetryable(err) || attempt >= opts.readRetries {
			res.Err = err
			break
		}
		logger.WarnContext(ctx, "read failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
		case <-time.After(opts.retryDelay):
		}
		if res.Err != nil {
			break
		}
	}

	if res.Err != nil {
		infrastructure.RecordError(ctx, res.Err)
		infrastructure.WithError(logger, res.Err).ErrorContext(ctx, "file failed",
			slog.String("error_type", string(apperrors.TypeOf(res.Err))))
		opts.metrics.RecordFile(ctx, path, 0, time.Since(start), errorType(res.Err))
		return nil, res
	}

	processed := make([]*domain.Trial, 0, len(segmented))
	for _, t := range segmented {
		out, err := processor.Process(t)
		if err != nil {
			logger.WarnContext(ctx, "trial dropped",
				slog.String("trial", t.ID),
				slog.Any("error", err))
			res.TrialErrors = append(res.TrialErrors, err)
			opts.metrics.RecordTrialError(ctx, errorType(err))
			continue
		}
		// records are not part of the dataset
		out.Records = nil
		processed = append(processed, out)
	}
	res.Trials = len(processed)

	span.SetAttributes(attribute.Int("trials", res.Trials), attribute.Int("skipped", res.Skipped))
	logger.DebugContext(ctx, "file parsed",
		slog.Int("trials", res.Trials),
		slog.Int("dropped", len(res.TrialErrors)),
		slog.Int("skipped_lines", res.Skipped))
	opts.metrics.RecordFile(ctx, path, res.Trials, time.Since(start), "")
	return processed, res
}

// summarize flattens file results for storage next to a cached dataset
func summarize(results []FileResult) []cache.FileSummary {
	if len(results) == 0 {
		return nil
	}
	out := make([]cache.FileSummary, len(results))
	for i, r := range results {
		out[i] = cache.FileSummary{Path: r.Path, Trials: r.Trials, Skipped: r.Skipped}
		if r.Err != nil {
			out[i].ErrorType = string(apperrors.TypeOf(r.Err))
			out[i].Error = r.Err.Error()
		}
		for _, err := range r.TrialErrors {
			out[i].TrialErrors = append(out[i].TrialErrors, err.Error())
		}
	}
	return out
}

// restore is the inverse of summarize. Errors come back as
// RecordedError values carrying the stored type and message.
func restore(summaries []cache.FileSummary) []FileResult {
	if len(summaries) == 0 {
		return nil
	}
	out := make([]FileResult, len(summaries))
	for i, s := range summaries {
		out[i] = FileResult{Path: s.Path, Trials: s.Trials, Skipped: s.Skipped}
		if s.Error != "" {
			out[i].Err = &apperrors.RecordedError{Type: apperrors.ErrorType(s.ErrorType), Message: s.Error}
		}
		for _, msg := range s.TrialErrors {
			out[i].TrialErrors = append(out[i].TrialErrors,
				&apperrors.RecordedError{Type: apperrors.ErrTypeProcessing, Message: msg})
		}
	}
	return out
}

func errorType(err error) string {
	if t := apperrors.TypeOf(err); t != "" {
		return string(t)
	}
	return "UNKNOWN"
}
