package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const reqMetaKey = contextKey("r-metadata")

// RequestMetadata travels with a handshake through the chain. Auth fills UserID.
type RequestMetadata struct {
	RequestID string
	IP        string
	UserAgent string
	UserID    string
}

func ReqMetadataFrom(ctx context.Context) (*RequestMetadata, bool) {
	reqMeta, ok := ctx.Value(reqMetaKey).(*RequestMetadata)
	return reqMeta, ok
}

// RequestMetadataMiddleware must be the first middleware in the chain.
// A caller-supplied X-Request-ID is kept so logs can be correlated upstream.
func RequestMetadataMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqMeta := &RequestMetadata{
				RequestID: requestID,
				IP:        ip,
				UserAgent: r.UserAgent(),
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), reqMetaKey, reqMeta)))
		})
	}
}
