// Package api hosts the HTTP server, middleware, and REST handlers that
// trigger crawls and read back the stored graph. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/{github,linkedin}/create and /sync/{username} to queue runs.
//   - GET /v1/runs/{run_id} to poll a run.
//   - GET /v1/github/users, /repositories, /resolve and /v1/linkedin/users,
//     /organizations for graph reads.
//   - GET /v1/network for the co-membership view around a user.
package api
