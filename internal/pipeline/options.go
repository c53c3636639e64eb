package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"eyeparse/internal/cache"
	"eyeparse/internal/config"
	"eyeparse/internal/infrastructure"
	"eyeparse/internal/tokenizer"
	"eyeparse/pkg/contracts/domain"
)

// RecordSource streams the records of one log file
type RecordSource interface {
	Records(ctx context.Context) iter.Seq2[domain.RawRecord, error]
	Skipped() int
}

// SourceFactory opens the record source of a file
type SourceFactory func(path string, policy tokenizer.MalformedPolicy, logger *slog.Logger) RecordSource

func tokenizerSource(path string, policy tokenizer.MalformedPolicy, logger *slog.Logger) RecordSource {
	return tokenizer.New(path, tokenizer.Options{Policy: policy, Logger: logger})
}

type optionsValues struct {
	extension       string
	startMarker     string
	endMarker       string
	varMarker       string
	policy          tokenizer.MalformedPolicy
	eye             string
	trialTraces     bool
	strictAlignment bool
	workers         int
	readRetries     int
	retryDelay      time.Duration

	cache    *cache.Store
	logger   *slog.Logger
	metrics  *infrastructure.PipelineMetrics
	tracer   trace.Tracer
	source   SourceFactory
	progress func(Event)
}

func newOptionValues(options ...Option) *optionsValues {
	values := &optionsValues{
		extension:   config.DefaultExtension,
		startMarker: config.DefaultStartMarker,
		endMarker:   config.DefaultEndMarker,
		varMarker:   config.DefaultVarMarker,
		policy:      tokenizer.PolicyAbort,
		eye:         "left",
		trialTraces: true,
		workers:     runtime.NumCPU(),
		readRetries: config.DefaultReadRetries,
		retryDelay:  config.DefaultRetryDelay,
		source:      tokenizerSource,
	}
	for _, option := range options {
		option(values)
	}
	if values.logger == nil {
		values.logger = slog.Default()
	}
	if values.tracer == nil {
		values.tracer = otel.Tracer(infrastructure.InstrumentationName)
	}
	return values
}

// canonical renders the options that change the dataset, for cache keys
func (o *optionsValues) canonical() string {
	return fmt.Sprintf("ext=%s;start=%s;end=%s;var=%s;policy=%s;eye=%s;trialtraces=%t;strict=%t",
		o.extension, o.startMarker, o.endMarker, o.varMarker, o.policy, o.eye, o.trialTraces, o.strictAlignment)
}

// Option configures a Parse call
type Option func(opts *optionsValues)

// WithParserConfig applies a parser configuration section
func WithParserConfig(cfg config.ParserConfig) Option {
	return func(opts *optionsValues) {
		opts.extension = cfg.Extension
		opts.startMarker = cfg.StartMarker
		opts.endMarker = cfg.EndMarker
		opts.varMarker = cfg.VarMarker
		opts.policy = tokenizer.MalformedPolicy(cfg.MalformedPolicy)
		opts.eye = cfg.Eye
		opts.trialTraces = cfg.TrialTraces
		opts.strictAlignment = cfg.StrictAlignment
		WithWorkers(cfg.Workers)(opts)
		WithReadRetries(cfg.ReadRetries, cfg.RetryDelay)(opts)
	}
}

// WithExtension selects the log file extension, including the dot
func WithExtension(ext string) Option {
	return func(opts *optionsValues) {
		opts.extension = ext
	}
}

// WithMarkers sets the trial start, trial end and property messages
func WithMarkers(start, end, variable string) Option {
	return func(opts *optionsValues) {
		opts.startMarker = start
		opts.endMarker = end
		opts.varMarker = variable
	}
}

// WithMalformedPolicy chooses between aborting a file and skipping bad lines
func WithMalformedPolicy(policy tokenizer.MalformedPolicy) Option {
	return func(opts *optionsValues) {
		opts.policy = policy
	}
}

// WithEye selects the eye used for binocular recordings
func WithEye(eye string) Option {
	return func(opts *optionsValues) {
		opts.eye = eye
	}
}

// WithTrialTraces toggles the traces spanning whole trials
func WithTrialTraces(enabled bool) Option {
	return func(opts *optionsValues) {
		opts.trialTraces = enabled
	}
}

// WithStrictAlignment requires equal series lengths within a column
func WithStrictAlignment(strict bool) Option {
	return func(opts *optionsValues) {
		opts.strictAlignment = strict
	}
}

// WithWorkers limits how many files are parsed at once. Values below 1
// mean one worker.
func WithWorkers(count int) Option {
	return func(opts *optionsValues) {
		opts.workers = max(count, 1)
	}
}

// WithReadRetries sets how often a failed file read is retried
func WithReadRetries(retries int, delay time.Duration) Option {
	return func(opts *optionsValues) {
		opts.readRetries = max(retries, 0)
		opts.retryDelay = delay
	}
}

// WithCache memoizes datasets in store
func WithCache(store *cache.Store) Option {
	return func(opts *optionsValues) {
		opts.cache = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(opts *optionsValues) {
		opts.logger = logger
	}
}

// WithMetrics records file and trial counters
func WithMetrics(metrics *infrastructure.PipelineMetrics) Option {
	return func(opts *optionsValues) {
		opts.metrics = metrics
	}
}

// WithTracer sets the tracer used for parse spans
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *optionsValues) {
		opts.tracer = tracer
	}
}

// WithSourceFactory replaces the tokenizer, mainly for tests
func WithSourceFactory(factory SourceFactory) Option {
	return func(opts *optionsValues) {
		opts.source = factory
	}
}

// WithProgress receives progress events. fn is called from worker
// goroutines and must be safe for concurrent use.
func WithProgress(fn func(Event)) Option {
	return func(opts *optionsValues) {
		opts.progress = fn
	}
}
