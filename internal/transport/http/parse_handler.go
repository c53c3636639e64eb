package http

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"eyeparse/internal/assembler"
	"eyeparse/internal/cache"
	"eyeparse/internal/config"
	apierrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	custommw "eyeparse/internal/middleware"
	"eyeparse/internal/pipeline"
	"eyeparse/internal/traceprocessor"
)

// ProgressPublisher receives pipeline progress events
type ProgressPublisher interface {
	PublishEvent(e pipeline.Event)
}

// ParseRequest is the body of POST /api/v1/parse. Omitted options fall back
// to the processor configuration.
type ParseRequest struct {
	Folder           string `json:"folder" validate:"required,folder"`
	BlinkReconstruct *bool  `json:"blinkreconstruct,omitempty"`
	Downsample       int    `json:"downsample,omitempty" validate:"omitempty,min=1"`
	Mode             string `json:"mode,omitempty" validate:"omitempty,oneof=basic advanced"`
	Eye              string `json:"eye,omitempty" validate:"omitempty,oneof=left right"`
	NoCache          bool   `json:"no_cache,omitempty"`
}

// FailedFile describes a log that contributed no trials
type FailedFile struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ParseResponse summarizes a parse. The dataset itself is fetched by key.
type ParseResponse struct {
	CacheKey   string                 `json:"cache_key,omitempty"`
	Cached     bool                   `json:"cached"`
	Rows       int                    `json:"rows"`
	Columns    []assembler.ColumnInfo `json:"columns"`
	Files      []pipeline.FileResult  `json:"files,omitempty"`
	Failed     []FailedFile           `json:"failed,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Processor  map[string]interface{} `json:"processor"`
}

// ParseHandler runs the pipeline on folders below a data root
type ParseHandler struct {
	root         string
	parser       config.ParserConfig
	processor    config.ProcessorConfig
	cache        *cache.Store
	progress     ProgressPublisher
	metrics      *infrastructure.PipelineMetrics
	validator    *custommw.Validator
	errorHandler *apierrors.ErrorHandler
	baseLogger   *slog.Logger
	logger       *slog.Logger
}

// NewParseHandler creates the parse handler. cache and progress may be nil.
func NewParseHandler(deps Deps) *ParseHandler {
	return &ParseHandler{
		root:         deps.Config.Server.DataDir,
		parser:       deps.Config.Parser,
		processor:    deps.Config.Processor,
		cache:        deps.Cache,
		progress:     deps.Progress,
		metrics:      deps.Metrics,
		validator:    custommw.NewValidator(deps.Logger),
		errorHandler: deps.ErrorHandler,
		baseLogger:   deps.Logger,
		logger:       infrastructure.WithComponent(deps.Logger, "parse_handler"),
	}
}

// Parse handles POST /api/v1/parse
func (h *ParseHandler) Parse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ParseRequest
	if err := h.validator.Decode(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	folder := filepath.Join(h.root, filepath.FromSlash(req.Folder))
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("folder "+req.Folder))
		return
	}
	proc := traceprocessor.New(h.processorOptions(req))

	logger := infrastructure.LoggerWithContext(ctx, h.logger)
	opts := []pipeline.Option{
		pipeline.WithParserConfig(h.parser),
		pipeline.WithLogger(h.baseLogger),
		pipeline.WithMetrics(h.metrics),
	}
	if req.Eye != "" {
		opts = append(opts, pipeline.WithEye(req.Eye))
	}
	if h.cache != nil && !req.NoCache {
		opts = append(opts, pipeline.WithCache(h.cache))
	}
	if h.progress != nil {
		opts = append(opts, pipeline.WithProgress(h.progress.PublishEvent))
	}

	logger.InfoContext(ctx, "parse requested",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("folder", folder),
		slog.String("processor", proc.Canonical()))

	result, err := pipeline.Parse(ctx, folder, proc, opts...)
	if err != nil {
		// conflicting trials abort the whole dataset
		if apierrors.TypeOf(err) == apierrors.ErrTypeAssembly {
			err = apierrors.ErrParseFailed(err)
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if failed := result.Failed(); len(failed) > 0 {
		logger.WarnContext(ctx, "parse finished with failed files",
			slog.Int("failed", len(failed)),
			slog.Bool("cached", result.Cached))
	}

	render.JSON(w, r, h.summarize(result, proc.Options()))
}

func (h *ParseHandler) processorOptions(req ParseRequest) traceprocessor.Options {
	opts := traceprocessor.OptionsFromConfig(h.processor)
	opts.Logger = h.baseLogger
	if req.BlinkReconstruct != nil {
		opts.BlinkReconstruct = *req.BlinkReconstruct
	}
	if req.Downsample > 0 {
		opts.Downsample = req.Downsample
	}
	if req.Mode != "" {
		opts.Mode = traceprocessor.Mode(req.Mode)
	}
	return opts
}

func (h *ParseHandler) summarize(result *pipeline.Result, opts traceprocessor.Options) ParseResponse {
	resp := ParseResponse{
		CacheKey:   result.CacheKey,
		Cached:     result.Cached,
		Rows:       result.Dataset.Len(),
		Columns:    result.Dataset.Describe(),
		Files:      result.Files,
		DurationMS: result.Duration.Round(time.Millisecond).Milliseconds(),
		Processor: map[string]interface{}{
			"blinkreconstruct": opts.BlinkReconstruct,
			"downsample":       opts.Downsample,
			"mode":             opts.Mode,
			"method":           opts.Method,
		},
	}
	for _, f := range result.Failed() {
		resp.Failed = append(resp.Failed, FailedFile{
			Path:  f.Path,
			Type:  string(apierrors.TypeOf(f.Err)),
			Error: f.Err.Error(),
		})
	}
	return resp
}
