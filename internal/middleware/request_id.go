package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-ID"

// requestIDHeaders are checked in order for a client supplied ID.
var requestIDHeaders = []string{RequestIDHeader, "Request-Id"}

// RequestIDMiddleware makes sure every request carries an ID. A client
// supplied ID is kept; otherwise a random UUID is assigned. The ID is echoed
// on the response.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := extractRequestID(r)
			if id == "" {
				id = uuid.NewString()
			}
			r.Header.Set(RequestIDHeader, id)
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

func extractRequestID(r *http.Request) string {
	for _, h := range requestIDHeaders {
		if v := r.Header.Get(h); v != "" && len(v) <= 128 {
			return v
		}
	}
	return ""
}
