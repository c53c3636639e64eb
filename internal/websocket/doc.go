// Package websocket streams parse progress to browser clients.
//
// A Hub owns the set of connected clients and fans messages out to them;
// Handler upgrades HTTP requests and attaches the resulting clients to the
// hub. Hub.PublishEvent can be passed to pipeline.WithProgress directly.
package websocket
