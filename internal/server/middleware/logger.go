package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger logs each request on arrival and again once its handler
// returns. For websocket upgrades the second line marks the end of the session.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				reqLogger = logger.With(slog.String("requestID", reqMeta.RequestID))
				reqLogger.Info("Incoming HTTP request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("ip", reqMeta.IP),
					slog.String("userAgent", reqMeta.UserAgent),
				)
			}
			start := time.Now()
			next.ServeHTTP(w, r)
			reqLogger.Debug("HTTP request finished",
				slog.String("path", r.URL.Path),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
