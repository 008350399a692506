// Package http provides HTTP handlers and routing for the rappd REST API.
//
// This package implements all request endpoints using the Gin framework,
// covering platform identity, catalog listings, application lifecycle and
// control handoff.
//
// Endpoints:
//   - Health: / and /health
//   - Platform: /platform_info
//   - Catalog: /apps/installed and /apps/runnable
//   - Lifecycle: /status, /apps/start, /apps/stop
//   - Control: /invite
//
// Service outcomes (a refused invitation, a start conflict, a stop with
// nothing running) are payload results, not transport errors: they return
// HTTP 200 with the outcome in the body. Only malformed requests produce
// 4xx responses.
//
// Example Usage:
//
//	handlers := http.NewHandlers(platform, registry, controller, arbiter, metrics, version)
//	handlers.Register(router)
package http
