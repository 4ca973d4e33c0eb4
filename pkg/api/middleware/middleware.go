package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	authproviders "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/providers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
)

type ContextKey int

const (
	// UserContextKey is the key used to store the user in the request context
	UserContextKey ContextKey = iota
)

// AccessTokenQueryParam carries the token for clients that cannot set headers
// on a WebSocket upgrade.
const AccessTokenQueryParam = "access_token"

func NewAuthMiddleware(authProvider authproviders.AuthProvider, repository repositories.Repository) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearerToken, err := parseBearerToken(r)
			if err != nil {
				log.Error("failed to parse bearer token: %v", err)
				http.Error(w, "failed to parse bearer token", http.StatusUnauthorized)
				return
			}

			token, err := authProvider.VerifyToken(r.Context(), bearerToken)
			if err != nil {
				log.Error("failed to verify ID token: %v", err)
				http.Error(w, "failed to verify ID token", http.StatusUnauthorized)
				return
			}

			user, err := repository.CreateUser(r.Context(), token.UID)
			if err != nil {
				log.Error("failed to create user: %v", err)
				http.Error(w, "failed to create user", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user stored by the auth middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// UserIDFromContext returns the id of the user stored by the auth middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return "", false
	}
	return user.ID, true
}

// NewCORSMiddleware allows browser clients from any origin.
func NewCORSMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseBearerToken parses the bearer token from the Authorization header,
// falling back to the access_token query parameter
func parseBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(AccessTokenQueryParam); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header is missing")
	}

	// Check if the Authorization header has the Bearer scheme
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	return parts[1], nil
}
