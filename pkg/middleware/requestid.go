package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/plumbline/plumbline/pkg/contextkeys"
)

// RequestIDHeader is the header carrying the request correlation id
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request a correlation id. An incoming
// X-Request-ID is honored so ids survive proxy hops; otherwise a new UUID
// is generated. The id is echoed on the response and placed on the context
// for loggers and the audit trail.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
