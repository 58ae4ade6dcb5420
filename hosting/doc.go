// Package hosting connects the bus to the outside world: gin handlers that bind HTTP
// requests into commands and queries, bearer token authentication, and a Host that
// runs background services (HTTP server, outbox relay, cron, transport consumers)
// until the process is asked to stop.
package hosting
