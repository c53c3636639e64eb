// Package http exposes the parse pipeline and the dataset cache over a
// chi router.
//
// Handlers stay thin: they decode and validate the request, call the
// pipeline or the cache, and render either a JSON body or an RFC 7807
// problem through errors.ErrorHandler.
//
// # Routes
//
// POST /api/v1/parse parses a folder below the configured data directory
// and returns a summary with the cache key. The dataset itself is read back
// with GET /api/v1/datasets/{key}, or one column at a time with
// GET /api/v1/datasets/{key}/columns/{name}. Progress events for running
// parses are pushed to every client connected on /ws.
//
// # Middleware order
//
//	RequestID → RealIP → OTel → StructuredLogger → Recoverer → SecurityHeaders → RateLimiter
//
// /ws, /healthz and /metrics only get RequestID and RealIP.
package http
