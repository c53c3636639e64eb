package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"eyeparse/internal/assembler"
	"eyeparse/internal/cache"
	apierrors "eyeparse/internal/errors"
	"eyeparse/internal/exporter"
	"eyeparse/internal/infrastructure"
)

type datasetKey struct{}

// DatasetHandler serves cached datasets by key
type DatasetHandler struct {
	cache        *cache.Store
	exporter     *exporter.Exporter
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewDatasetHandler creates the dataset handler. A nil cache makes every
// route answer 503.
func NewDatasetHandler(deps Deps) *DatasetHandler {
	return &DatasetHandler{
		cache:        deps.Cache,
		exporter:     exporter.New(exporter.Options{Logger: deps.Logger}),
		errorHandler: deps.ErrorHandler,
		logger:       infrastructure.WithComponent(deps.Logger, "dataset_handler"),
	}
}

// Routes returns the dataset routes
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", h.Stats)
	r.Route("/{key}", func(r chi.Router) {
		r.Delete("/", h.Delete)
		r.Group(func(r chi.Router) {
			r.Use(h.DatasetCtx)
			r.Get("/", h.Get)
			r.Get("/columns", h.Columns)
			r.Get("/columns/{name}", h.Column)
		})
	})
	return r
}

// DatasetCtx loads the dataset named by the key URL parameter
func (h *DatasetHandler) DatasetCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cache == nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrCacheDisabled)
			return
		}
		key := chi.URLParam(r, "key")
		if !cache.ValidKey(key) {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("key", "Key must be a 64 character hex digest"))
			return
		}

		ds, ok, err := h.cache.Get(r.Context(), key)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		if !ok {
			h.errorHandler.HandleError(w, r, apierrors.ErrDatasetNotFound)
			return
		}

		ctx := context.WithValue(r.Context(), datasetKey{}, ds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func datasetFrom(r *http.Request) *assembler.Dataset {
	return r.Context().Value(datasetKey{}).(*assembler.Dataset)
}

// Get handles GET /api/v1/datasets/{key}. With ?format=csv the dataset is
// streamed as CSV instead of JSON.
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	ds := datasetFrom(r)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+chi.URLParam(r, "key")+`.csv"`)
		if err := h.exporter.EncodeCSV(ds, w); err != nil {
			infrastructure.WithError(infrastructure.LoggerWithContext(r.Context(), h.logger), err).
				ErrorContext(r.Context(), "failed to stream csv")
		}
		return
	}

	if cols := r.URL.Query()["column"]; len(cols) > 0 {
		sel, err := ds.Select(cols...)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		ds = sel
	}
	render.JSON(w, r, ds)
}

// Columns handles GET /api/v1/datasets/{key}/columns
func (h *DatasetHandler) Columns(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, datasetFrom(r).Describe())
}

// Column handles GET /api/v1/datasets/{key}/columns/{name}
func (h *DatasetHandler) Column(w http.ResponseWriter, r *http.Request) {
	ds := datasetFrom(r)
	name := chi.URLParam(r, "name")

	values, err := ds.Column(name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	kind, _ := ds.Kind(name)
	depth, _ := ds.Depth(name)
	render.JSON(w, r, map[string]interface{}{
		"name":   name,
		"kind":   kind.String(),
		"depth":  depth,
		"values": values,
	})
}

// Delete handles DELETE /api/v1/datasets/{key}
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrCacheDisabled)
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.cache.Invalidate(key); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	infrastructure.LoggerWithContext(r.Context(), h.logger).
		InfoContext(r.Context(), "cache entry removed", slog.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/datasets/stats
func (h *DatasetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrCacheDisabled)
		return
	}
	stats, err := h.cache.Stats()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}
