package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/shortclick/shortclick/internal/telemetry"
)

// Recoverer turns a handler panic into a 500 JSON response.
func Recoverer(logger *slog.Logger, sink telemetry.Sink) func(http.Handler) http.Handler {
	if sink == nil {
		sink = telemetry.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				sink.Log(r.Context(), telemetry.LevelFatal, telemetry.PackageMiddleware,
					fmt.Sprintf("panic serving %s %s", r.Method, r.URL.Path))

				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes the JSON error shape shared with the handlers.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":%q,"code":%q}`, message, code)
}
