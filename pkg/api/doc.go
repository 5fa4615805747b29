/*
Package api is the thin HTTP layer in front of the Client Surface
(pkg/client): a chi router that turns JSON requests into
client.Client calls and the Client Surface's plain Go values back into
JSON responses. It owns no orchestration logic of its own — every
handler is a few lines of request decoding, one client.Client call, and
response encoding.

# Architecture

	┌────────────────────── HTTP CLIENT ──────────────────────┐
	│  POST /api/v1/instances {"user_name": "alice", ...}      │
	└──────────────────────────┬────────────────────────────────┘
	                           │ HTTP/JSON
	┌──────────────────────────▼──── pkg/api ───────────────────┐
	│  chi.Mux: request-id, zerolog access log, recover, metrics │
	│  Server.createInstance → client.StartOrchestration(...)    │
	└──────────────────────────┬────────────────────────────────┘
	                           │ direct call
	┌──────────────────────────▼──── pkg/client ─────────────────┐
	│               Client Surface over history.Store            │
	└──────────────────────────────────────────────────────────────┘

# Endpoints

	GET    /healthz                                liveness
	GET    /readyz                                  readiness (Raft leader + store reachable)
	GET    /metrics                                 Prometheus exposition
	POST   /api/v1/instances                        start CreateInstance
	GET    /api/v1/instances                        list instance ids
	GET    /api/v1/instances/{id}                    instance status/output
	DELETE /api/v1/instances/{id}                    start DeleteInstance
	POST   /api/v1/instances/{id}/events             raise an external event
	GET    /api/v1/instances/{id}/executions          list execution ids
	GET    /api/v1/instances/{id}/executions/{execID}/history   read one execution's event log
	GET    /api/v1/cluster/summary                    supplemented cluster-wide diagnostic

# Error handling

Handlers never panic on a client.Client error: every error is logged and
translated into a JSON errorResponse with an appropriate status code.
The Recoverer middleware is a last-resort backstop, not the primary
error path.

# See also

  - pkg/client for the Client Surface this package wraps
  - cmd/toygres for the `serve` command that wires this package's Server
    into a listening http.Server
*/
package api
