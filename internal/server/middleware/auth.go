package middleware

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var errNoToken = errors.New("no token presented")

// NewAuthMiddleware resolves the user behind a handshake.
//
// With an empty jwtSecret the identity is taken from the userId query
// parameter as-is. Otherwise a HMAC-signed JWT must be presented in the
// session-token cookie, an Authorization bearer header or the token query
// parameter, and its subject becomes the user identity.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if jwtSecret == "" {
				userID := strings.TrimSpace(r.URL.Query().Get("userId"))
				if userID == "" {
					logger.Warn("Handshake without userId", slog.String("ip", reqMeta.IP))
					http.Error(w, "Missing userId", http.StatusBadRequest)
					return
				}
				reqMeta.UserID = userID
				next.ServeHTTP(w, r)
				return
			}

			tokenString, err := tokenFrom(r)
			if err != nil {
				logger.Warn("JWT token missing in request", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid JWT token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				logger.Warn("Valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.UserID = claims.Subject
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFrom(r *http.Request) (string, error) {
	if cookie, err := r.Cookie("session-token"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); tok != "" {
			return tok, nil
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", errNoToken
}

// NewTokenGuard protects internal endpoints with a static bearer token.
// An empty token leaves them open.
func NewTokenGuard(logger *slog.Logger, token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			presented := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(presented, []byte("Bearer "+token)) != 1 {
				logger.Warn("Rejected internal API call", slog.String("path", r.URL.Path), slog.String("remoteAddr", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
