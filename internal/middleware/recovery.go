package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoveryMiddleware turns a panicking handler into a 500 response and logs
// the panic with its stack.
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				// Let net/http abort the connection as it would without us.
				if v == http.ErrAbortHandler {
					panic(v)
				}

				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("%v", v)
				}
				logger.WithFields(logrus.Fields{
					"path":       r.URL.Path,
					"method":     r.Method,
					"request_id": r.Header.Get(RequestIDHeader),
					"stack":      string(debug.Stack()),
				}).WithError(err).Error("Recovered from panic")

				writeJSONError(w, http.StatusInternalServerError, "InternalError", "We encountered an internal error. Please try again.")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
