// Package httpx is the synchronous bridge between services.
//
// A Server mounts POST /app-events/{event} on a chi router. Requests must
// carry the shared secret in the "token" header; the body is handed to the
// registry handler for the event and its result is written back verbatim.
//
// A Client calls another service's endpoint by service name, resolving the
// base URL from a static host table. Any failure (unknown service, network
// error, non-2xx status, unreadable body) yields the uniform error result
// {"type":"error"} rather than an error value, so callers branch on
// Result.IsError. Calls are never retried.
package httpx
