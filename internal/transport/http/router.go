package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eyeparse/internal/cache"
	"eyeparse/internal/config"
	apierrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	custommw "eyeparse/internal/middleware"
	"eyeparse/internal/websocket"
)

// Deps are the collaborators the router wires into its handlers. Only
// Config is required.
type Deps struct {
	Config       *config.Config
	Cache        *cache.Store
	Hub          *websocket.Hub
	Progress     ProgressPublisher
	OTel         *infrastructure.OTelProviders
	Metrics      *infrastructure.PipelineMetrics
	ErrorHandler *apierrors.ErrorHandler
	Logger       *slog.Logger
}

// NewRouter builds the HTTP API:
//
//	POST   /api/v1/parse
//	GET    /api/v1/datasets/stats
//	GET    /api/v1/datasets/{key}
//	DELETE /api/v1/datasets/{key}
//	GET    /api/v1/datasets/{key}/columns
//	GET    /api/v1/datasets/{key}/columns/{name}
//	GET    /api/v1/version
//	GET    /healthz
//	GET    /metrics
//	GET    /ws
func NewRouter(deps Deps) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ErrorHandler == nil {
		deps.ErrorHandler = apierrors.NewErrorHandler(deps.Logger, false)
	}
	if deps.Progress == nil && deps.Hub != nil {
		deps.Progress = deps.Hub
	}
	if deps.Metrics == nil && deps.OTel != nil {
		deps.Metrics = deps.OTel.Metrics
	}

	r := chi.NewRouter()
	r.Use(custommw.RequestID)
	r.Use(middleware.RealIP)

	// The websocket route skips the response-wrapping middleware so the
	// connection can be hijacked.
	health := NewHealthHandler(deps.Hub)
	r.Get("/healthz", health.Health)
	if deps.Hub != nil {
		r.Handle("/ws", websocket.NewHandler(deps.Hub, deps.Logger))
	}
	if deps.OTel != nil && deps.OTel.PrometheusHTTP != nil {
		r.Handle("/metrics", deps.OTel.PrometheusHTTP)
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	var otelHandler *custommw.OTel
	if deps.OTel != nil {
		var err error
		otelHandler, err = custommw.NewOTel(deps.OTel.Tracer, deps.OTel.Meter)
		if err != nil {
			return nil, err
		}
	}

	r.Group(func(r chi.Router) {
		if otelHandler != nil {
			r.Use(otelHandler.Handler)
		}
		r.Use(custommw.StructuredLogger(deps.Logger))
		r.Use(custommw.Recoverer(deps.Logger))
		r.Use(custommw.SecurityHeaders)
		if rl := deps.Config.Server.RateLimit; rl.Enabled {
			r.Use(custommw.NewRateLimiter(rl.RPS, rl.Burst, deps.Logger).Handler)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.NotFound(deps.ErrorHandler.NotFound)
			r.MethodNotAllowed(deps.ErrorHandler.MethodNotAllowed)

			r.Get("/version", health.Version)
			r.Post("/parse", NewParseHandler(deps).Parse)
			r.Mount("/datasets", NewDatasetHandler(deps).Routes())
		})
	})

	r.NotFound(deps.ErrorHandler.NotFound)
	r.MethodNotAllowed(deps.ErrorHandler.MethodNotAllowed)
	return r, nil
}
