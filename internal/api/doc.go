// Package api implements the HTTP REST API and WebSocket server for DeskPilot.
//
// This package provides:
//   - Trigger endpoints that play action and browser step scripts
//   - Read access to the result cache as JSON, HTML tables or CSV
//   - Browser pool and system metrics
//   - WebSocket hub pushing notifications and cache updates
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	POST /api/v1/actions/{name}/play
//	POST /api/v1/steps/{name}/play
//	GET  /api/v1/cache
//	GET  /api/v1/cache/{group}/{key}?format=json|html|csv
//	GET  /api/v1/scripts
//	GET  /api/v1/browsers
//	GET  /api/v1/ws
//
// Trigger endpoints block until the run finishes and answer with the run's
// Result: 200 when it succeeded, 422 when it failed.
//
// # Security
//
// There is no authentication. The API is meant for the desk it runs on and
// binds to 127.0.0.1 by default.
package api
