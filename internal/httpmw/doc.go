// Package httpmw holds the HTTP middleware shared by the site and admin
// listeners.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP, the site rate limiter, OTEL,
// trace response headers, metrics, the request-scoped logger, access log and
// body limit, then the chi router.
//
// Query strings, user agents and Authorization headers are kept out of
// logs.
package httpmw
