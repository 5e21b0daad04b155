package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// PanicHandler writes the response for a request whose handler panicked
type PanicHandler func(w http.ResponseWriter, r *http.Request, recovered any)

// LogPanic records a recovered panic with its stack. It is shared by the
// HTTP middleware, the TCP request handler and the worker pool.
func LogPanic(logger *slog.Logger, msg string, recovered any, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args,
		slog.String("panic", fmt.Sprint(recovered)),
		slog.String("stack", string(debug.Stack())),
	)
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Error(msg, args...)
}

// Recovery turns a panicking HTTP handler into a response written by onPanic
func Recovery(logger *slog.Logger, onPanic PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					LogPanic(logger, "panic in http handler", rec,
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					onPanic(w, r, rec)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultPanicHandler answers 500 with a plain text body
func DefaultPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
