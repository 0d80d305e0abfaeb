package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns a request logging middleware using zerolog. Upgraded
// socket requests are marked; for those the logged latency spans the whole
// connection, not a single exchange, and status/bytes are meaningless once
// the connection is hijacked.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				evt := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)
				if isUpgrade(r) {
					evt.Bool("websocket", true).Msg("socket connection closed")
					return
				}
				evt.Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
