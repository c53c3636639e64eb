// Package app assembles the eyeparse server: configuration, telemetry, the
// dataset cache, the websocket progress hub and the HTTP router, and runs
// them until the context is cancelled.
//
// # Lifecycle
//
//	app, err := app.NewApplication(cfg, logger)
//	...
//	err = app.Run(ctx) // Start, wait for ctx, Stop
//
// Stop shuts the HTTP server down first so in-flight parses can finish,
// then closes websocket clients and flushes telemetry.
package app
