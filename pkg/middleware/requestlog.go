package middleware

import (
	"net"
	"net/http"

	"github.com/platinummonkey/corefacility/pkg/contextkeys"
	"github.com/platinummonkey/corefacility/pkg/logbook"
	"github.com/platinummonkey/corefacility/pkg/observability"
)

// ClientIPMiddleware fills the client address slot every later layer
// reads from.
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithClientIP(r.Context(), ip)))
	})
}

// statusRecorder captures the final response code for the audit row.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogMiddleware opens one audit log per request and closes it
// with the response status. The open log id rides on the context, so
// handlers can append records through the store.
func RequestLogMiddleware(store *logbook.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, l, err := store.Open(r.Context(), r.URL.Path, r.Method, "")
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("failed to open request log")
				next.ServeHTTP(w, r)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			if err := store.Close(ctx, l.ID, rec.status); err != nil {
				observability.FromContext(ctx).WithError(err).Warn("failed to close request log")
			}
		})
	}
}
