// Package http exposes the upload service over a chi router: account
// endpoints under /api/auth, bearer-protected file endpoints under /api/app,
// plus /healthz and /metrics.
package http
