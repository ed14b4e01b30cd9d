// Package httputil centralizes the HTTP response surface: JSON
// encoding, the status-code mapping used across the API (400 with
// structured field errors, 401/403/404/409, generic 500), and request
// parsing helpers for mux path and query parameters.
package httputil
