package middleware

import (
	"log/slog"
	"net/http"

	"github.com/a-essam23/go-pulse/pkg/config"
)

type UserPresenceChecker func(userID string) bool

// NewConnectionLimiter refuses a handshake early when the duplicate policy is
// reject and the user already has a live connection. The other policies are
// applied once the connection is registered.
func NewConnectionLimiter(logger *slog.Logger, isOnline UserPresenceChecker, policy config.DuplicatePolicy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy != config.DuplicateReject {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if reqMeta.UserID == "" {
				logger.Warn("Connection limiter could not determine userID from metadata; blocking request for safety.")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if isOnline(reqMeta.UserID) {
				logger.Warn("User already connected", slog.String("userID", reqMeta.UserID))
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
