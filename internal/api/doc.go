// Package api implements the hub's HTTP REST API and WebSocket event
// stream.
//
// This package provides:
//   - REST endpoints for items, their states and actions
//   - module status, configuration reload and health endpoints
//   - scene activation and state history when those modules are loaded
//   - a WebSocket hub relaying bus events to subscribed clients
//   - a Prometheus scrape endpoint at /metrics
//
// # Architecture
//
// The server is a module. It claims the "api" domain, listens during Init
// and shuts down in Stop:
//
//	api:
//	  host: 0.0.0.0
//	  port: 8080
//	  allowed_origins: ["http://panel.local"]
//
// Writes from HTTP handlers run on the scheduler's worker pool, so a slow
// device setter holds a worker rather than an unbounded goroutine.
//
// # WebSocket
//
// Clients connect to /api/v1/ws and subscribe to event names, or to "*"
// for every event:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["state_change"]}}
//
// Initial subscriptions may also be passed as ?events=a,b.
package api
