package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

const anonymousUser = "anonymous"

type userKey struct{}

func withUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// requestUser returns the verified user id for this request, or the
// anonymous marker on unauthenticated chat requests.
func requestUser(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.From(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestId", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

// auth resolves the bearer token to a user id through the external
// credential service. A present-but-invalid token is always rejected;
// a missing token passes only where optional is true.
func (s *Server) auth(optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				if optional {
					next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), anonymousUser)))
					return
				}
				writeJSON(w, http.StatusUnauthorized, errorBody{
					Error: "unauthorized", Message: "missing bearer token",
				})
				return
			}

			userID, err := s.verifier.Verify(r.Context(), token)
			if err != nil {
				logging.From(r.Context()).Info("token rejected", "error", err)
				writeJSON(w, http.StatusUnauthorized, errorBody{
					Error: "unauthorized", Message: "token rejected",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				// Credentials only for explicit origins. Echoing a wildcard
				// origin with credentials enabled opens CSRF.
				for _, o := range allowedOrigins {
					if o != "*" && o == origin {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
						break
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
